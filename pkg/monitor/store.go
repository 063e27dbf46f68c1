package monitor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/schemaops/deprec/pkg/schema"
)

// TelemetryStore persists access events, rolling element stats, and raised
// alerts.
type TelemetryStore struct {
	db *gorm.DB
}

// NewTelemetryStore creates a new TelemetryStore.
func NewTelemetryStore(db *gorm.DB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// AutoMigrate creates or updates the monitoring tables.
func (s *TelemetryStore) AutoMigrate() error {
	return s.db.AutoMigrate(&AccessEventRecord{}, &MonitoredElement{}, &AlertRecord{})
}

// Track registers a deprecated element for monitoring. Idempotent per
// element name.
func (s *TelemetryStore) Track(elementName string, elementType schema.ElementType, planID string, deprecatedAt time.Time) error {
	rec := &MonitoredElement{
		ElementName:  elementName,
		ElementType:  string(elementType),
		PlanID:       planID,
		DeprecatedAt: deprecatedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "element_name"}},
		DoNothing: true,
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("track element %s: %w", elementName, err)
	}
	return nil
}

// Untrack removes an element from monitoring, typically after a rollback.
func (s *TelemetryStore) Untrack(elementName string) error {
	if err := s.db.Where("element_name = ?", elementName).Delete(&MonitoredElement{}).Error; err != nil {
		return fmt.Errorf("untrack element %s: %w", elementName, err)
	}
	return nil
}

// AppendBatch persists a batch of access events and folds them into the
// per-element rolling stats.
func (s *TelemetryStore) AppendBatch(events []schema.AccessEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]AccessEventRecord, 0, len(events))
	for _, ev := range events {
		records = append(records, AccessEventRecord{
			ID:               uuid.New().String(),
			ElementName:      ev.ElementName,
			ElementType:      string(ev.ElementType),
			SourceKind:       ev.Source.Kind,
			SourceIdentifier: ev.Source.Identifier,
			SourceOrigin:     ev.Source.Origin,
			QueryType:        ev.QueryType,
			OccurredAt:       ev.Timestamp,
		})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("append access events: %w", err)
		}
		for _, ev := range events {
			err := tx.Model(&MonitoredElement{}).
				Where("element_name = ?", ev.ElementName).
				Updates(map[string]any{
					"access_count":  gorm.Expr("access_count + 1"),
					"last_accessed": ev.Timestamp,
				}).Error
			if err != nil {
				return fmt.Errorf("update stats for %s: %w", ev.ElementName, err)
			}
		}
		return nil
	})
}

// StatsFor returns the aggregated stats of one monitored element, including
// the deduplicated set of access sources.
func (s *TelemetryStore) StatsFor(elementName string, soakWindow time.Duration) (*ElementStats, error) {
	var el MonitoredElement
	err := s.db.Where("element_name = ?", elementName).First(&el).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load monitored element %s: %w", elementName, err)
	}

	sources, err := s.accessSources(elementName)
	if err != nil {
		return nil, err
	}

	stats := statsFromElement(el, time.Now(), soakWindow)
	stats.AccessSources = sources
	return &stats, nil
}

// ListStats returns stats for every monitored element, tracked-first order.
func (s *TelemetryStore) ListStats(soakWindow time.Duration) ([]ElementStats, error) {
	var elements []MonitoredElement
	if err := s.db.Order("deprecated_at ASC").Find(&elements).Error; err != nil {
		return nil, fmt.Errorf("list monitored elements: %w", err)
	}

	now := time.Now()
	out := make([]ElementStats, 0, len(elements))
	for _, el := range elements {
		out = append(out, statsFromElement(el, now, soakWindow))
	}
	return out, nil
}

// RemovalCandidates returns elements with zero qualifying accesses over the
// soak window that have been deprecated for at least the full window.
func (s *TelemetryStore) RemovalCandidates(soakWindow time.Duration) ([]ElementStats, error) {
	cutoff := time.Now().Add(-soakWindow)
	var elements []MonitoredElement
	err := s.db.
		Where("deprecated_at <= ?", cutoff).
		Where("last_accessed IS NULL OR last_accessed < ?", cutoff).
		Order("deprecated_at ASC").
		Find(&elements).Error
	if err != nil {
		return nil, fmt.Errorf("list removal candidates: %w", err)
	}

	now := time.Now()
	out := make([]ElementStats, 0, len(elements))
	for _, el := range elements {
		out = append(out, statsFromElement(el, now, soakWindow))
	}
	return out, nil
}

// accessSources collects the distinct sources that touched an element.
func (s *TelemetryStore) accessSources(elementName string) ([]string, error) {
	rows, err := s.db.Model(&AccessEventRecord{}).
		Where("element_name = ?", elementName).
		Select("source_kind, source_identifier").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("list access sources for %s: %w", elementName, err)
	}
	defer rows.Close()

	set := mapset.NewSet[string]()
	for rows.Next() {
		var kind, identifier string
		if err := rows.Scan(&kind, &identifier); err != nil {
			return nil, err
		}
		if identifier != "" {
			set.Add(kind + ":" + identifier)
		} else {
			set.Add(kind)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sources := set.ToSlice()
	return sources, nil
}

// Events returns raw events, newest first, optionally filtered by element.
func (s *TelemetryStore) Events(elementName string, limit int) ([]AccessEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.db.Order("occurred_at DESC").Limit(limit)
	if elementName != "" {
		query = query.Where("element_name = ?", elementName)
	}
	var recs []AccessEventRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list access events: %w", err)
	}
	return recs, nil
}

// TrendDaily aggregates per-day access counts for an element over the last
// N days.
func (s *TelemetryStore) TrendDaily(elementName string, days int) ([]DailyCount, error) {
	if days <= 0 {
		days = 14
	}
	since := time.Now().AddDate(0, 0, -days)

	dayExpr := "strftime('%Y-%m-%d', occurred_at)"
	if s.db.Dialector.Name() == "postgres" {
		dayExpr = "to_char(occurred_at, 'YYYY-MM-DD')"
	}

	rows, err := s.db.Model(&AccessEventRecord{}).
		Where("element_name = ? AND occurred_at >= ?", elementName, since).
		Select(dayExpr + " AS day, COUNT(*) AS count").
		Group("day").
		Order("day ASC").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("trend for %s: %w", elementName, err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// ExportJSON writes events as a JSON array.
func (s *TelemetryStore) ExportJSON(w io.Writer, elementName string, limit int) error {
	recs, err := s.Events(elementName, limit)
	if err != nil {
		return err
	}
	events := make([]schema.AccessEvent, 0, len(recs))
	for _, r := range recs {
		events = append(events, r.Event())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

// ExportCSV writes events as CSV with a header row.
func (s *TelemetryStore) ExportCSV(w io.Writer, elementName string, limit int) error {
	recs, err := s.Events(elementName, limit)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"element_name", "element_type", "source_kind", "source_identifier", "query_type", "occurred_at"}); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{r.ElementName, r.ElementType, r.SourceKind, r.SourceIdentifier, r.QueryType, r.OccurredAt.Format(time.RFC3339)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendAlert persists a raised alert.
func (s *TelemetryStore) AppendAlert(rec *AlertRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

// Alerts returns raised alerts, newest first.
func (s *TelemetryStore) Alerts(limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []AlertRecord
	if err := s.db.Order("raised_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return recs, nil
}

func statsFromElement(el MonitoredElement, now time.Time, soakWindow time.Duration) ElementStats {
	cutoff := now.Add(-soakWindow)
	quiet := el.LastAccessed == nil || el.LastAccessed.Before(cutoff)
	return ElementStats{
		ElementName:      el.ElementName,
		ElementType:      el.ElementType,
		PlanID:           el.PlanID,
		DeprecatedAt:     el.DeprecatedAt,
		AccessCount:      el.AccessCount,
		LastAccessed:     el.LastAccessed,
		RemovalCandidate: quiet && !el.DeprecatedAt.After(cutoff),
	}
}
