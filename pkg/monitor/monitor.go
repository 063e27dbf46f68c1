// Package monitor watches deprecated elements for continued access. Events
// are recorded without blocking callers, aggregated into rolling per-element
// stats, and surfaced through alerts and a read-only dashboard. Elements
// quiet for the full soak window become removal candidates.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schemaops/deprec/pkg/schema"
)

// AccessMonitor accepts access events on a bounded queue and flushes them to
// the telemetry store in batches. RecordAccess never blocks the caller: when
// the queue is full the event is dropped and counted.
type AccessMonitor struct {
	store  *TelemetryStore
	alerts *AlertSystem
	cfg    Config
	logger *slog.Logger

	queue   chan schema.AccessEvent
	dropped atomic.Int64

	startOnce sync.Once
	done      chan struct{}
}

// NewAccessMonitor creates a monitor. alerts may be nil to disable alerting.
func NewAccessMonitor(store *TelemetryStore, alerts *AlertSystem, cfg Config, logger *slog.Logger) *AccessMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &AccessMonitor{
		store:  store,
		alerts: alerts,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan schema.AccessEvent, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// RecordAccess enqueues an observed access to a deprecated element. It is
// safe for concurrent use and returns immediately; under backpressure the
// event is dropped.
func (m *AccessMonitor) RecordAccess(elementName string, elementType schema.ElementType, source schema.AccessSource, queryType string) {
	ev := schema.AccessEvent{
		ElementName: elementName,
		ElementType: elementType,
		Source:      source,
		QueryType:   queryType,
		Timestamp:   time.Now(),
	}
	select {
	case m.queue <- ev:
	default:
		n := m.dropped.Add(1)
		if n%100 == 1 {
			m.logger.Warn("access event queue full, dropping",
				"element", elementName, "droppedTotal", n)
		}
	}
}

// Dropped returns the number of events discarded due to backpressure.
func (m *AccessMonitor) Dropped() int64 {
	return m.dropped.Load()
}

// Start launches the consumer goroutine. Subsequent calls are no-ops.
func (m *AccessMonitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

// Wait blocks until the consumer has drained and exited after Start's
// context was cancelled.
func (m *AccessMonitor) Wait() {
	<-m.done
}

func (m *AccessMonitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]schema.AccessEvent, 0, m.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		m.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case ev := <-m.queue:
					batch = append(batch, ev)
					if len(batch) >= m.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					m.logger.Info("access monitor stopped", "dropped", m.dropped.Load())
					return
				}
			}
		case ev := <-m.queue:
			batch = append(batch, ev)
			if len(batch) >= m.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flush persists a batch and forwards each event to the alert system.
// Storage failures are logged, not propagated; monitoring must never take
// down the caller.
func (m *AccessMonitor) flush(batch []schema.AccessEvent) {
	if err := m.store.AppendBatch(batch); err != nil {
		m.logger.Error("persist access events", "count", len(batch), "error", err)
		return
	}
	if m.alerts != nil {
		for _, ev := range batch {
			m.alerts.Observe(ev)
		}
	}
}
