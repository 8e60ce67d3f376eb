// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Analysis is one persisted analysis run.
type Analysis struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	CreatedAt        time.Time `json:"createdAt"`
	TransactionCount int       `json:"transactionCount"`
	AccountCount     int       `json:"accountCount"`
	RingCount        int       `json:"ringCount"`
	SuspiciousCount  int       `json:"suspiciousCount"`
	Report           *Report   `json:"report"`
}

// AnalysisSummary is the list view of a persisted analysis, without the
// report body.
type AnalysisSummary struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	TransactionCount int       `json:"transactionCount"`
	AccountCount     int       `json:"accountCount"`
	RingCount        int       `json:"ringCount"`
	SuspiciousCount  int       `json:"suspiciousCount"`
}

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Analysis runs
	SaveAnalysis(ctx context.Context, tenantID string, a *Analysis) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*Analysis, error)
	ListAnalyses(ctx context.Context, tenantID string, limit int) ([]*AnalysisSummary, error)

	// Raw batches for async processing
	SaveBatch(ctx context.Context, tenantID string, b *Batch) error
	GetBatch(ctx context.Context, tenantID string, batchID string) (*Batch, error)

	// Alert policy configuration
	SaveAlertPolicy(ctx context.Context, tenantID string, p *AlertPolicy) error
	GetAlertPolicy(ctx context.Context, tenantID string, policyID string) (*AlertPolicy, error)
	ListAlertPolicies(ctx context.Context, tenantID string) ([]*AlertPolicy, error)
	DeleteAlertPolicy(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
