package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	AgendaInterval time.Duration
	Timezone       *time.Location
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AgendaInterval: parseInterval(strings.TrimSpace(os.Getenv("AGENDA_INTERVAL_HOURS"))),
		Timezone:       parseTimezone(strings.TrimSpace(os.Getenv("TZ_NAME"))),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "remindcal.db"
	}

	if cfg.AgendaInterval == 0 {
		cfg.AgendaInterval = 24 * time.Hour
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

// parseTimezone falls back to the host's local zone; calendar-day bucketing
// always uses the viewing location.
func parseTimezone(raw string) *time.Location {
	if raw == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		return time.Local
	}
	return loc
}
