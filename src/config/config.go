package config

import (
	"fmt"
	"raffles/src/types"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// const dsn = "host=localhost user=postgres password=password dbname=rafflesdb port=5432 sslmode=disable TimeZone=America/Sao_Paulo"

type Config struct {
	Env            string
	Port           string
	AllowedOrigins []string
	Maintenance    bool
	LogFile        string

	StoreDriver       string
	DatabaseURL       string
	DatabaseHost      string
	DatabasePort      string
	DatabaseSSLMode   string
	DatabaseTimezone  string
	DatabaseUser      string
	DatabasePassword  string
	DatabaseName      string
	FirebaseProjectID string
	SecretsDir        string

	AuthProvider string
	JWTSecret    string

	PaymentProvider     string
	MPAccessToken       string
	MPBaseURL           string
	MPWebhookSecret     string
	StripeSecretKey     string
	StripeWebhookSecret string
	NotificationURL     string

	BatchLimit     int
	MaxTickets     int
	ClaimRetries   int
	ReservationTTL time.Duration
	SweepInterval  time.Duration
	RedisURL       string

	SNSTopicARN  string
	FCMTopic     string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "local")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("MAINTENANCE", false)
	v.SetDefault("LOG_FILE", "logs/raffles.log")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_TIMEZONE", "UTC")
	v.SetDefault("SECRETS_DIR", "/secrets")
	v.SetDefault("AUTH_PROVIDER", "firebase")
	v.SetDefault("PAYMENT_PROVIDER", "mercadopago")
	v.SetDefault("MP_BASE_URL", "https://api.mercadopago.com")
	v.SetDefault("BATCH_LIMIT", 500)
	v.SetDefault("MAX_TICKETS", 100000)
	v.SetDefault("CLAIM_RETRIES", 5)
	v.SetDefault("RESERVATION_TTL", "30m")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("SMTP_PORT", 587)
}

// Load reads configuration from the environment, optionally layered over a config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Env:            v.GetString("APP_ENV"),
		Port:           v.GetString("PORT"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		Maintenance:    v.GetBool("MAINTENANCE"),
		LogFile:        v.GetString("LOG_FILE"),

		StoreDriver:       strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		DatabaseHost:      v.GetString("DATABASE_HOST"),
		DatabasePort:      v.GetString("DATABASE_PORT"),
		DatabaseSSLMode:   v.GetString("DATABASE_SSLMODE"),
		DatabaseTimezone:  v.GetString("DATABASE_TIMEZONE"),
		DatabaseUser:      v.GetString("DATABASE_USER"),
		DatabasePassword:  v.GetString("DATABASE_PASSWORD"),
		DatabaseName:      v.GetString("DATABASE_NAME"),
		FirebaseProjectID: v.GetString("FIREBASE_PROJECT_ID"),
		SecretsDir:        v.GetString("SECRETS_DIR"),

		AuthProvider: strings.ToLower(v.GetString("AUTH_PROVIDER")),
		JWTSecret:    v.GetString("JWT_SECRET"),

		PaymentProvider:     strings.ToLower(v.GetString("PAYMENT_PROVIDER")),
		MPAccessToken:       v.GetString("MP_ACCESS_TOKEN"),
		MPBaseURL:           v.GetString("MP_BASE_URL"),
		MPWebhookSecret:     v.GetString("MP_WEBHOOK_SECRET"),
		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		NotificationURL:     v.GetString("NOTIFICATION_URL"),

		BatchLimit:     v.GetInt("BATCH_LIMIT"),
		MaxTickets:     v.GetInt("MAX_TICKETS"),
		ClaimRetries:   v.GetInt("CLAIM_RETRIES"),
		ReservationTTL: v.GetDuration("RESERVATION_TTL"),
		SweepInterval:  v.GetDuration("SWEEP_INTERVAL"),
		RedisURL:       v.GetString("REDIS_URL"),

		SNSTopicARN:  v.GetString("SNS_TOPIC_ARN"),
		FCMTopic:     v.GetString("FCM_TOPIC"),
		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUser:     v.GetString("SMTP_USER"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),
		SMTPFrom:     v.GetString("SMTP_FROM"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres", "sqlite", "firestore", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AuthProvider {
	case "firebase", "jwt":
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.AuthProvider)
	}
	switch c.PaymentProvider {
	case "mercadopago", "stripe", "none":
	default:
		return fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	if c.BatchLimit < 3 || c.BatchLimit > 500 {
		return fmt.Errorf("BATCH_LIMIT must be between 3 and 500, got %d", c.BatchLimit)
	}
	if c.ReservationTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("RESERVATION_TTL and SWEEP_INTERVAL must be positive")
	}
	return nil
}

func splitList(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) IsLocal() bool {
	return types.Environment(c.Env) == types.Local
}

// DSN is DATABASE_URL when set, otherwise the Postgres DSN built from its parts,
// or a local file for sqlite.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.StoreDriver == "sqlite" {
		return "file:raffles.db?cache=shared"
	}
	return c.GetDSN()
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", c.DatabaseHost, c.DatabaseUser, c.DatabasePassword, c.DatabaseName, c.DatabasePort, c.DatabaseSSLMode, c.DatabaseTimezone)
}

var current *Config

// Get returns the process configuration, loading it from the environment on first use.
func Get() *Config {
	if current != nil {
		return current
	}
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	current = cfg
	return cfg
}

func Set(c *Config) {
	current = c
}
