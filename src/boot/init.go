package boot

import (
	"context"
	"fmt"
	"log"
	"raffles/src/common"
	"raffles/src/config"
	"raffles/src/db"
	"raffles/src/lib"
	awslib "raffles/src/lib/aws"
	"raffles/src/middlewares"
	"raffles/src/store"
)

// InitStore opens the backend selected by STORE_DRIVER and migrates relational schemas.
func InitStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Println("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	case "firestore":
		client, err := lib.GetFirestore(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewFirestoreStore(client), nil
	}
	gdb, err := db.Open(cfg.StoreDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.StoreDriver, err)
	}
	db.NewDB(gdb)
	s := store.NewGormStore(gdb)
	if err := s.Migrate(); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return s, nil
}

// InitProvider returns the payment gateway selected by PAYMENT_PROVIDER, or nil for "none".
func InitProvider(cfg *config.Config) (common.PaymentProvider, *lib.StripeProvider) {
	switch cfg.PaymentProvider {
	case "stripe":
		p := lib.NewStripeProvider(lib.GetStripeClient(), cfg.StripeWebhookSecret)
		return p, p
	case "mercadopago":
		if cfg.MPAccessToken == "" {
			log.Println("MP_ACCESS_TOKEN is not set; payment creation will fail")
		}
		return lib.NewMercadoPagoProvider(cfg.MPBaseURL, cfg.MPAccessToken), nil
	}
	return nil, nil
}

// InitPublisher assembles the notification channels that are configured.
func InitPublisher(ctx context.Context, cfg *config.Config) common.Publisher {
	var pub lib.MultiPublisher
	if cfg.SNSTopicARN != "" {
		sns, err := awslib.NewSNSPublisher(ctx, cfg.SNSTopicARN)
		if err != nil {
			log.Printf("SNS publisher disabled: %s\n", err.Error())
		} else {
			pub = append(pub, sns)
		}
	}
	if cfg.SMTPHost != "" {
		client, err := lib.GetSMTPClient()
		if err != nil {
			log.Printf("Mail publisher disabled: %s\n", err.Error())
		} else {
			pub = append(pub, lib.NewMailPublisher(client, cfg.SMTPFrom))
		}
	}
	if cfg.FCMTopic != "" {
		fcm, err := lib.GetFirebaseMessaging()
		if err != nil {
			log.Printf("FCM publisher disabled: %s\n", err.Error())
		} else {
			pub = append(pub, lib.NewFCMPublisher(fcm, cfg.FCMTopic))
		}
	}
	return pub
}

// InitVerifier returns the token verifier selected by AUTH_PROVIDER.
func InitVerifier(cfg *config.Config) (middlewares.TokenVerifier, error) {
	if cfg.AuthProvider == "jwt" {
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required when AUTH_PROVIDER=jwt")
		}
		return middlewares.NewJWTVerifier(cfg.JWTSecret), nil
	}
	client, err := lib.GetFirebaseAuth()
	if err != nil {
		return nil, err
	}
	return middlewares.NewFirebaseVerifier(client), nil
}

func InitService(s store.Store, provider common.PaymentProvider, pub common.Publisher, cfg *config.Config) *common.Service {
	return common.NewService(s, common.Options{
		Provider:        provider,
		Publisher:       pub,
		ReservationTTL:  cfg.ReservationTTL,
		BatchLimit:      cfg.BatchLimit,
		MaxTickets:      cfg.MaxTickets,
		ClaimRetries:    cfg.ClaimRetries,
		NotificationURL: cfg.NotificationURL,
	})
}

// InitScheduler starts the expiry sweep. Its first run happens right away.
func InitScheduler(svc *common.Service, cfg *config.Config) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	if _, err := lib.CreateSweepJob(sched, cfg.SweepInterval, svc.Sweep); err != nil {
		log.Printf("Error scheduling sweep: %s\n", err.Error())
		return
	}
	log.Println("Jobs in queue:", len(sched.Jobs()))
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Error stopping Scheduler: %s\n", err.Error())
	}
}
