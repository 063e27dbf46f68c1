// Package backup validates backups before risky schema operations. The
// backup/restore infrastructure itself is an external collaborator; only
// its validation contract is consumed here.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schemaops/deprec/pkg/schema"
)

// Info describes the most recent backup known to the backup service.
type Info struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	SizeBytes        int64     `json:"sizeBytes"`
	Checksum         string    `json:"checksum"`
	ChecksumVerified bool      `json:"checksumVerified"`
}

// Service is the external backup collaborator contract.
type Service interface {
	// Validate returns the latest backup matching the config, verifying
	// its checksum when the config asks for it.
	Validate(ctx context.Context, cfg Config) (*Info, error)
	// TestRestore restores the backup into a scratch target and verifies
	// it, without touching the live database.
	TestRestore(ctx context.Context, backupID string) error
}

// Config controls backup validation.
type Config struct {
	Location           string        // Backup storage location. Required.
	RetentionDays      int           // Minimum retention the service must guarantee. Default 30.
	MaxAge             time.Duration // Oldest acceptable backup before an operation. Default 24h.
	VerifyChecksums    bool          // Require checksum verification. Default true.
	TestRestoreEnabled bool          // Run a test restore as part of validation. Default false.
}

// DefaultConfig returns the default backup validation configuration.
func DefaultConfig() Config {
	return Config{
		RetentionDays:   30,
		MaxAge:          24 * time.Hour,
		VerifyChecksums: true,
	}
}

// Validate checks the configuration at startup, before any operation is
// attempted.
func (c Config) Validate() error {
	if c.Location == "" {
		return &schema.ConfigurationError{Field: "backup.location", Message: "must not be empty"}
	}
	if c.RetentionDays <= 0 {
		return &schema.ConfigurationError{Field: "backup.retentionDays", Message: "must be positive"}
	}
	if c.MaxAge <= 0 {
		return &schema.ConfigurationError{Field: "backup.maxAge", Message: "must be positive"}
	}
	return nil
}

// Result is the outcome of a backup validation pass.
type Result struct {
	Valid    bool     `json:"valid"`
	Backup   *Info    `json:"backup,omitempty"`
	Issues   []string `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator gates risky operations on a fresh, verified backup.
type Validator struct {
	service Service
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewValidator creates a validator. The config is validated eagerly so
// misconfiguration surfaces at startup.
func NewValidator(service Service, cfg Config, logger *slog.Logger) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{service: service, cfg: cfg, logger: logger, now: time.Now}, nil
}

// Validate checks the latest backup against the configured requirements.
// Missing or stale backups are issues (the result is invalid); an
// unverified checksum when verification is optional is a warning.
func (v *Validator) Validate(ctx context.Context) (*Result, error) {
	info, err := v.service.Validate(ctx, v.cfg)
	if err != nil {
		return nil, fmt.Errorf("backup service validation: %w", err)
	}

	res := &Result{Backup: info}
	if info == nil {
		res.Issues = append(res.Issues, "no backup available at "+v.cfg.Location)
		return res, nil
	}

	age := v.now().Sub(info.CreatedAt)
	if age > v.cfg.MaxAge {
		res.Issues = append(res.Issues,
			fmt.Sprintf("latest backup %s is %s old, exceeds maximum age %s", info.ID, age.Round(time.Minute), v.cfg.MaxAge))
	}
	if info.SizeBytes == 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("backup %s is empty", info.ID))
	}
	if !info.ChecksumVerified {
		if v.cfg.VerifyChecksums {
			res.Issues = append(res.Issues, fmt.Sprintf("backup %s checksum not verified", info.ID))
		} else {
			res.Warnings = append(res.Warnings, fmt.Sprintf("backup %s checksum not verified", info.ID))
		}
	}

	if len(res.Issues) == 0 && v.cfg.TestRestoreEnabled {
		if err := v.service.TestRestore(ctx, info.ID); err != nil {
			res.Issues = append(res.Issues, fmt.Sprintf("test restore of backup %s failed: %v", info.ID, err))
		}
	}

	res.Valid = len(res.Issues) == 0
	v.logger.Info("backup validation completed",
		"valid", res.Valid,
		"issues", len(res.Issues),
		"warnings", len(res.Warnings))
	return res, nil
}

// EnsureFresh is the pre-flight used by rollback when its policy requires a
// backup: it fails with the collected issues unless validation passes.
func (v *Validator) EnsureFresh(ctx context.Context) error {
	res, err := v.Validate(ctx)
	if err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("backup validation failed: %v", res.Issues)
	}
	return nil
}
