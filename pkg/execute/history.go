package execute

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Migration history statuses.
const (
	StatusApplied            = "applied"
	StatusRolledBack         = "rolled_back"
	StatusManualIntervention = "manual_intervention_required"
)

// MigrationRecord is the GORM model for the persisted migration history.
// Records are written outside the DDL transaction, purely for audit.
type MigrationRecord struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	PlanID      string    `gorm:"column:plan_id;index:idx_history_plan;not null"`
	Operation   string    `gorm:"column:operation;not null"` // migration | rollback
	Status      string    `gorm:"column:status;index:idx_history_status;not null"`
	SQLChecksum string    `gorm:"column:sql_checksum;not null"`
	Principal   string    `gorm:"column:principal;not null"`
	Environment string    `gorm:"column:environment"`
	StepCount   int       `gorm:"column:step_count"`
	StartedAt   time.Time `gorm:"column:started_at;not null"`
	FinishedAt  time.Time `gorm:"column:finished_at;not null"`
	Error       string    `gorm:"column:error"`
}

// TableName returns the GORM table name.
func (MigrationRecord) TableName() string { return "migration_history" }

// HistoryStore persists migration history records.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// AutoMigrate creates or updates the migration_history table.
func (s *HistoryStore) AutoMigrate() error {
	return s.db.AutoMigrate(&MigrationRecord{})
}

// Record appends a history record.
func (s *HistoryStore) Record(rec *MigrationRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("record migration history: %w", err)
	}
	return nil
}

// ListByPlan returns all records for a plan, oldest first.
func (s *HistoryStore) ListByPlan(planID string) ([]MigrationRecord, error) {
	var recs []MigrationRecord
	if err := s.db.Where("plan_id = ?", planID).Order("started_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list history for plan %s: %w", planID, err)
	}
	return recs, nil
}

// ListRecent returns the most recent records across all plans.
func (s *HistoryStore) ListRecent(limit int) ([]MigrationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []MigrationRecord
	if err := s.db.Order("started_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list recent history: %w", err)
	}
	return recs, nil
}

// Checksum computes the audit checksum over the executed SQL statements.
func Checksum(statements []string) string {
	sum := sha256.Sum256([]byte(strings.Join(statements, "\n")))
	return hex.EncodeToString(sum[:])
}
