package monitor

import (
	"context"
	"log/slog"
	"time"
)

// SoakScanner periodically evaluates monitored elements against the soak
// window and reports the ones that qualify for removal review. It never
// removes anything itself; removal is out of scope and stays a human call.
type SoakScanner struct {
	store  *TelemetryStore
	alerts *AlertSystem
	cfg    Config
	logger *slog.Logger

	reported map[string]bool
}

// NewSoakScanner creates a scanner. alerts may be nil.
func NewSoakScanner(store *TelemetryStore, alerts *AlertSystem, cfg Config, logger *slog.Logger) *SoakScanner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultConfig().ScanInterval
	}
	if cfg.SoakWindow <= 0 {
		cfg.SoakWindow = DefaultConfig().SoakWindow
	}
	return &SoakScanner{
		store:    store,
		alerts:   alerts,
		cfg:      cfg,
		logger:   logger,
		reported: make(map[string]bool),
	}
}

// Run scans on the configured interval until the context is cancelled. An
// immediate scan happens on startup.
func (s *SoakScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.scan()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("soak scanner stopped")
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

// scan reports each newly qualifying candidate once. An element that is
// accessed again leaves the candidate set and will be re-reported if it
// later qualifies anew.
func (s *SoakScanner) scan() {
	candidates, err := s.store.RemovalCandidates(s.cfg.SoakWindow)
	if err != nil {
		s.logger.Error("scan removal candidates", "error", err)
		return
	}

	current := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		current[c.ElementName] = true
		if s.reported[c.ElementName] {
			continue
		}
		s.logger.Info("element qualifies for removal review",
			"element", c.ElementName,
			"deprecatedAt", c.DeprecatedAt,
			"soakWindow", s.cfg.SoakWindow)
		if s.alerts != nil {
			s.alerts.Raise(Alert{
				ElementName: c.ElementName,
				Severity:    AlertInfo,
				Message:     "no access observed over the full soak window; eligible for removal review",
			})
		}
	}
	s.reported = current
}
