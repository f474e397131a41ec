package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, populated from the environment.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"/app/data/runstake.db"`

	StravaClientID     string `env:"STRAVA_CLIENT_ID"`
	StravaClientSecret string `env:"STRAVA_CLIENT_SECRET"`
	StravaRedirectURI  string `env:"STRAVA_REDIRECT_URI" envDefault:"http://localhost:8080/api/auth/callback"`

	JWTSecret string `env:"JWT_SECRET"`

	LedgerURL string `env:"LEDGER_URL"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChannelID        string `env:"CHANNEL_ID"`

	// SettlementCron is a standard 5-field cron spec in server local time.
	SettlementCron string `env:"SETTLEMENT_CRON" envDefault:"0 * * * *"`
}

// Load reads .env (if present) and parses the environment into a Config.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}
