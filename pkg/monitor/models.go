package monitor

import (
	"time"

	"github.com/schemaops/deprec/pkg/schema"
)

// AccessEventRecord is the GORM model for a raw access event.
type AccessEventRecord struct {
	ID               string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	ElementName      string    `gorm:"column:element_name;index:idx_access_element;not null"`
	ElementType      string    `gorm:"column:element_type;not null"`
	SourceKind       string    `gorm:"column:source_kind;not null"` // application | manual | migration
	SourceIdentifier string    `gorm:"column:source_identifier"`
	SourceOrigin     string    `gorm:"column:source_origin"`
	QueryType        string    `gorm:"column:query_type"`
	OccurredAt       time.Time `gorm:"column:occurred_at;index:idx_access_occurred;not null"`
}

// TableName returns the GORM table name.
func (AccessEventRecord) TableName() string { return "access_events" }

// Event converts the record back to the domain event.
func (r AccessEventRecord) Event() schema.AccessEvent {
	return schema.AccessEvent{
		ElementName: r.ElementName,
		ElementType: schema.ElementType(r.ElementType),
		Source: schema.AccessSource{
			Kind:       r.SourceKind,
			Identifier: r.SourceIdentifier,
			Origin:     r.SourceOrigin,
		},
		QueryType: r.QueryType,
		Timestamp: r.OccurredAt,
	}
}

// MonitoredElement is the GORM model for a deprecated element under watch.
// Rolling stats are updated by the access monitor's consumer.
type MonitoredElement struct {
	ElementName  string     `gorm:"primaryKey;column:element_name"`
	ElementType  string     `gorm:"column:element_type;not null"`
	PlanID       string     `gorm:"column:plan_id;index:idx_monitored_plan"`
	DeprecatedAt time.Time  `gorm:"column:deprecated_at;not null"`
	AccessCount  int64      `gorm:"column:access_count;default:0"`
	LastAccessed *time.Time `gorm:"column:last_accessed"`
}

// TableName returns the GORM table name.
func (MonitoredElement) TableName() string { return "monitored_elements" }

// AlertRecord is the GORM model for a raised access alert.
type AlertRecord struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	ElementName string    `gorm:"column:element_name;index:idx_alert_element;not null"`
	Severity    string    `gorm:"column:severity;not null"`
	Message     string    `gorm:"column:message"`
	QueryType   string    `gorm:"column:query_type"`
	SourceKind  string    `gorm:"column:source_kind"`
	RaisedAt    time.Time `gorm:"column:raised_at;index:idx_alert_raised;not null"`
}

// TableName returns the GORM table name.
func (AlertRecord) TableName() string { return "deprecation_alerts" }

// ElementStats is the aggregated view of one monitored element.
type ElementStats struct {
	ElementName      string     `json:"elementName"`
	ElementType      string     `json:"elementType"`
	PlanID           string     `json:"planId,omitempty"`
	DeprecatedAt     time.Time  `json:"deprecatedAt"`
	AccessCount      int64      `json:"accessCount"`
	LastAccessed     *time.Time `json:"lastAccessed,omitempty"`
	AccessSources    []string   `json:"accessSources,omitempty"`
	RemovalCandidate bool       `json:"removalCandidate"`
}

// DailyCount is one day of access volume for trend queries.
type DailyCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int64  `json:"count"`
}
