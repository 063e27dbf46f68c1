package monitor

import (
	"os"
	"strconv"
	"time"
)

// Config controls the monitoring subsystem.
type Config struct {
	QueueSize     int           // Bounded event queue capacity. Default 1024.
	BatchSize     int           // Max events per store flush. Default 64.
	FlushInterval time.Duration // Max time a queued event waits before flushing. Default 1s.
	SoakWindow    time.Duration // Zero-access window before removal candidacy. Default 14 days.
	ScanInterval  time.Duration // How often the soak scanner runs. Default 1h.
	AlertWindow   time.Duration // Dedup window per element for alerts. Default 15m.
}

// DefaultConfig returns the default monitoring configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:     1024,
		BatchSize:     64,
		FlushInterval: time.Second,
		SoakWindow:    14 * 24 * time.Hour,
		ScanInterval:  time.Hour,
		AlertWindow:   15 * time.Minute,
	}
}

// ConfigFromEnv loads config from environment variables.
// DEPREC_MONITOR_QUEUE_SIZE, DEPREC_MONITOR_BATCH_SIZE,
// DEPREC_MONITOR_FLUSH_INTERVAL_MS, DEPREC_MONITOR_SOAK_DAYS,
// DEPREC_MONITOR_SCAN_INTERVAL_MINUTES, DEPREC_MONITOR_ALERT_WINDOW_MINUTES
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DEPREC_MONITOR_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.QueueSize = n
		}
	}
	if v := os.Getenv("DEPREC_MONITOR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("DEPREC_MONITOR_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FlushInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("DEPREC_MONITOR_SOAK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SoakWindow = time.Duration(n) * 24 * time.Hour
		}
	}
	if v := os.Getenv("DEPREC_MONITOR_SCAN_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ScanInterval = time.Duration(n) * time.Minute
		}
	}
	if v := os.Getenv("DEPREC_MONITOR_ALERT_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AlertWindow = time.Duration(n) * time.Minute
		}
	}

	return cfg
}
