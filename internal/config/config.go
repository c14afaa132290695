package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full process configuration, loaded once in main and passed
// into constructors. Nothing else in the tree reads the environment.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	MidtransServerKey    string `envconfig:"MIDTRANS_SERVER_KEY"`
	MidtransClientKey    string `envconfig:"MIDTRANS_CLIENT_KEY"`
	MidtransIsProduction bool   `envconfig:"MIDTRANS_IS_PRODUCTION" default:"false"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`
	SMTPFrom string `envconfig:"SMTP_FROM"`

	Currency string `envconfig:"CURRENCY" default:"USD"`

	// ReminderWindowDays is how far ahead the invoice.upcoming reminder
	// looks; StalePaymentCutoffHours bounds the sweep job.
	ReminderWindowDays      int `envconfig:"REMINDER_WINDOW_DAYS" default:"3"`
	StalePaymentCutoffHours int `envconfig:"STALE_PAYMENT_CUTOFF_HOURS" default:"24"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
