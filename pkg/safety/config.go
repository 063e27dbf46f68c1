package safety

import (
	"os"
	"strconv"
	"time"
)

// Config controls safety check behavior.
type Config struct {
	MinConfidence float64       // Confidence threshold below which the check fails. Default 0.8.
	RecencyWindow time.Duration // Accesses inside this window fail the recency check. Default 30 days.
	Concurrency   int           // Max elements checked concurrently. Default 5.
	RetryAttempts int           // Attempts per catalog lookup. Checks are read-only, so retry is safe here. Default 2.
}

// DefaultConfig returns the default safety check configuration.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.8,
		RecencyWindow: 30 * 24 * time.Hour,
		Concurrency:   5,
		RetryAttempts: 2,
	}
}

// ConfigFromEnv loads config from environment variables.
// DEPREC_SAFETY_MIN_CONFIDENCE, DEPREC_SAFETY_RECENCY_DAYS,
// DEPREC_SAFETY_CONCURRENCY, DEPREC_SAFETY_RETRY_ATTEMPTS
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DEPREC_SAFETY_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.MinConfidence = f
		}
	}

	if v := os.Getenv("DEPREC_SAFETY_RECENCY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RecencyWindow = time.Duration(n) * 24 * time.Hour
		}
	}

	if v := os.Getenv("DEPREC_SAFETY_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	if v := os.Getenv("DEPREC_SAFETY_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetryAttempts = n
		}
	}

	return cfg
}
