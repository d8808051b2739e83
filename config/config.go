package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the bridge. Everything comes from
// the environment so the same binary runs locally and on the host platform.
type Config struct {
	Port       string
	BackendURL string

	// SessionDBPath is the SQLite file holding the WhatsApp credentials.
	// Deleting it forces a fresh QR pairing on the next start.
	SessionDBPath string

	// DefaultCountryCode is prepended to recipient numbers that arrive
	// without one and match LocalNumberLength digits.
	DefaultCountryCode string
	LocalNumberLength  int

	// BulkSendDelay is the minimum gap between messages in a bulk send.
	BulkSendDelay time.Duration

	// ReconnectDelay is the flat backoff before re-dialing after an
	// unexpected connection loss.
	ReconnectDelay time.Duration

	ReminderInterval time.Duration

	LogLevel string
}

func Load() Config {
	return Config{
		Port:               getEnv("PORT", "8002"),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8001"),
		SessionDBPath:      getEnv("SESSION_DB_PATH", "store/whatsapp.db"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "51"),
		LocalNumberLength:  getEnvInt("LOCAL_NUMBER_LENGTH", 9),
		BulkSendDelay:      getEnvDuration("BULK_SEND_DELAY", time.Second),
		ReconnectDelay:     getEnvDuration("RECONNECT_DELAY", 5*time.Second),
		ReminderInterval:   getEnvDuration("REMINDER_INTERVAL", time.Hour),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
