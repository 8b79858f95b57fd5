package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"raffles/src/boot"
	"raffles/src/common"
	"raffles/src/config"
	"raffles/src/middlewares"
	"raffles/src/types"
	"syscall"
	"time"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	apiPrefix string = "/api/v1"
)

var Version = "dev"

// stripeWebhook verifies Stripe deliveries and extracts the PaymentIntent id.
type stripeWebhook interface {
	ParseWebhook(payload []byte, signature string) (string, error)
}

// App is what the HTTP handlers need from the booted process.
type App struct {
	cfg      *config.Config
	svc      *common.Service
	verifier middlewares.TokenVerifier
	stripe   stripeWebhook
}

var futureDateValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	datetime, err := types.ParseDate(date)
	if err != nil {
		return false
	}
	return datetime.After(time.Now())
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("futuredate", futureDateValidatorFunc)
	}
}

func maintenanceModeMiddleware(g *gin.Engine, enabled bool) *gin.Engine {
	g.Use(func(ctx *gin.Context) {
		if enabled {
			err := errors.New("server is under maintenance")
			log.Println(err.Error())
			ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error(), "code": "unavailable"})
			return
		}
	})
	return g
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	if cfg.IsLocal() {
		return cors.Default()
	}
	cc := cors.DefaultConfig()
	cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PUT", "DELETE", "HEAD")
	cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
	cc.AllowOrigins = cfg.AllowedOrigins
	cc.AllowCredentials = true
	return cors.New(cc)
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

func setupRouter(app *App) *gin.Engine {
	registerValidators()
	router := gin.Default()
	router.Use(corsMiddleware(app.cfg))
	router = maintenanceModeMiddleware(router, app.cfg.Maintenance)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})

	publicRaffleRoutes(router, app)
	webhookRoutes(router, app)

	authorized := apiv1Group(router)
	authorized.Use(middlewares.Authenticate(app.verifier))
	userRoutes(authorized, app)
	orderRoutes(authorized, app)

	admin := apiv1Group(router)
	admin.Use(middlewares.Authenticate(app.verifier), middlewares.RequireAdmin)
	adminRaffleRoutes(admin, app)
	adminOrderRoutes(admin, app)

	return router
}

func initLogger(logFile string) {
	if logFile == "" {
		return
	}
	if !path.IsAbs(logFile) {
		cwd, _ := os.Getwd()
		logFile = path.Join(cwd, logFile)
	}
	gin.ForceConsoleColor()
	rotating := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	}
	gin.DefaultWriter = io.MultiWriter(rotating, os.Stdout)
	log.SetOutput(io.MultiWriter(rotating, os.Stderr))
}

func loadConfig(configPath string) (*config.Config, error) {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" || appEnv == string(types.Local) {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	config.Set(cfg)
	return cfg, nil
}

// bootService opens the store and assembles the service around it.
func bootService(ctx context.Context, cfg *config.Config) (*common.Service, stripeWebhook, error) {
	s, err := boot.InitStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	provider, stripeProvider := boot.InitProvider(cfg)
	svc := boot.InitService(s, provider, boot.InitPublisher(ctx, cfg), cfg)
	if stripeProvider == nil {
		return svc, nil, nil
	}
	return svc, stripeProvider, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			initLogger(cfg.LogFile)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, stripe, err := bootService(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Store().Close()
			verifier, err := boot.InitVerifier(cfg)
			if err != nil {
				return err
			}

			boot.InitScheduler(svc, cfg)
			defer boot.StopScheduler()

			router := setupRouter(&App{cfg: cfg, svc: svc, verifier: verifier, stripe: stripe})
			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Printf("Listening on %s\n", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("failed to start server: %w", err)
				}
			case <-ctx.Done():
				log.Println("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Printf("Error shutting down server: %s\n", err.Error())
				}
			}
			svc.Wait()
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the relational schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			s, err := boot.InitStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (%s)\n", cfg.StoreDriver)
			return s.Close()
		},
	}
}

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire reserved orders past their deadline once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			svc, _, err := bootService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer svc.Store().Close()
			expired, err := svc.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d orders\n", expired)
			return nil
		},
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	serve := serveCmd(&configPath)
	rootCmd := &cobra.Command{
		Use:     "raffles",
		Short:   "Raffle ticket reservation, PIX settlement and drawing API",
		Version: Version,
		RunE:    serve.RunE,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Optional config file (yaml, json, toml or env)")

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
