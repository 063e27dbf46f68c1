package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schemaops/deprec/pkg/schema"
)

// Alert severities. Alerts escalate with access frequency inside the dedup
// window; rollback failures come in at critical directly.
const (
	AlertInfo     = "info"
	AlertWarning  = "warning"
	AlertCritical = "critical"
)

// Alert is a raised notification about a deprecated element.
type Alert struct {
	ID          string    `json:"id"`
	ElementName string    `json:"elementName"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	QueryType   string    `json:"queryType,omitempty"`
	SourceKind  string    `json:"sourceKind,omitempty"`
	RaisedAt    time.Time `json:"raisedAt"`
}

// Notifier delivers raised alerts to a destination.
type Notifier interface {
	Notify(alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(alert Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("deprecation alert",
		"element", alert.ElementName,
		"severity", alert.Severity,
		"message", alert.Message)
	return nil
}

// WriterNotifier encodes alerts as JSON lines, one per alert. It serves as
// the payload shape for webhook delivery.
type WriterNotifier struct {
	W io.Writer
}

// Notify implements Notifier.
func (n *WriterNotifier) Notify(alert Alert) error {
	return json.NewEncoder(n.W).Encode(alert)
}

// AlertSystem turns observed accesses into alerts. Per element it suppresses
// duplicates inside the configured window and escalates severity as access
// frequency rises. Notifier failures are logged and swallowed.
type AlertSystem struct {
	store     *TelemetryStore
	notifiers []Notifier
	window    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time // element -> last alert raised
	count map[string]int       // element -> accesses inside current window
}

// NewAlertSystem creates an alert system. store may be nil to skip
// persistence.
func NewAlertSystem(store *TelemetryStore, window time.Duration, logger *slog.Logger, notifiers ...Notifier) *AlertSystem {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultConfig().AlertWindow
	}
	return &AlertSystem{
		store:     store,
		notifiers: notifiers,
		window:    window,
		logger:    logger,
		now:       time.Now,
		seen:      make(map[string]time.Time),
		count:     make(map[string]int),
	}
}

// Observe processes one access to a deprecated element. The first access in
// a window raises an alert immediately; further accesses inside the window
// are counted and only re-raised, escalated, once the window closes.
func (a *AlertSystem) Observe(ev schema.AccessEvent) {
	a.mu.Lock()
	now := a.now()
	last, known := a.seen[ev.ElementName]
	a.count[ev.ElementName]++
	hits := a.count[ev.ElementName]
	if known && now.Sub(last) < a.window {
		a.mu.Unlock()
		return
	}
	a.seen[ev.ElementName] = now
	a.count[ev.ElementName] = 0
	a.mu.Unlock()

	severity := severityFor(hits)
	msg := fmt.Sprintf("deprecated element %s accessed via %s", ev.ElementName, ev.Source.Kind)
	if hits > 1 {
		msg = fmt.Sprintf("deprecated element %s accessed %d times in %s via %s",
			ev.ElementName, hits, a.window, ev.Source.Kind)
	}
	a.Raise(Alert{
		ElementName: ev.ElementName,
		Severity:    severity,
		Message:     msg,
		QueryType:   ev.QueryType,
		SourceKind:  ev.Source.Kind,
	})
}

// Raise persists and dispatches an alert. Used directly by the rollback
// manager for manual-intervention alerts.
func (a *AlertSystem) Raise(alert Alert) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.RaisedAt.IsZero() {
		alert.RaisedAt = a.now()
	}

	if a.store != nil {
		rec := &AlertRecord{
			ID:          alert.ID,
			ElementName: alert.ElementName,
			Severity:    alert.Severity,
			Message:     alert.Message,
			QueryType:   alert.QueryType,
			SourceKind:  alert.SourceKind,
			RaisedAt:    alert.RaisedAt,
		}
		if err := a.store.AppendAlert(rec); err != nil {
			a.logger.Error("persist alert", "element", alert.ElementName, "error", err)
		}
	}

	for _, n := range a.notifiers {
		if err := n.Notify(alert); err != nil {
			a.logger.Error("dispatch alert", "element", alert.ElementName, "error", err)
		}
	}
}

// severityFor escalates with access frequency inside one window.
func severityFor(hits int) string {
	switch {
	case hits >= 10:
		return AlertCritical
	case hits >= 3:
		return AlertWarning
	default:
		return AlertInfo
	}
}
