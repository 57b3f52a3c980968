package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	Port        int    `env:"PORT" envDefault:"4010"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	// Billing collaborator (external recurring-billing system).
	BillingBaseURL string        `env:"BILLING_BASE_URL"`
	BillingTimeout time.Duration `env:"BILLING_TIMEOUT" envDefault:"2s"`

	// PaymentWebhookSecret authenticates purchase-settled callbacks.
	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET,required"`

	// AMQPURL enables the notification publisher; empty means
	// notifications are logged and dropped.
	AMQPURL        string `env:"AMQP_URL"`
	NotifyExchange string `env:"NOTIFY_EXCHANGE" envDefault:"songforge.notifications"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Business rule knobs.
	TransferCooldown time.Duration `env:"TRANSFER_COOLDOWN" envDefault:"360h"` // 15 days
	TransferTTL      time.Duration `env:"TRANSFER_TTL" envDefault:"168h"`      // 7 days
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
