// Package storage provides persistence for raw queries, table metadata, and
// the three derived fact tables.
//
// All implementations must be:
// - Thread-safe for concurrent reads
// - Context-aware (respecting cancellation/timeout)
// - Explicit about errors (never swallow)
//
// Saves are upserts keyed by (query_id, platform, project). A fact save with
// no record carrying platform and project is a no-op with a logged warning.
// Aggregation only reads: nothing in this package mutates stored facts.
package storage

import (
	"context"
	"time"

	"github.com/querylens-labs/querylens/pkg/models"
)

// Storage defines the persistence interface for the analysis pipeline.
type Storage interface {
	// SaveQueries upserts raw query-history records.
	SaveQueries(ctx context.Context, queries []models.QueryRecord) error

	// LoadQueries returns raw queries for a platform/project, optionally
	// bounded by a time range. Zero times mean unbounded.
	LoadQueries(ctx context.Context, platform, project string, start, end time.Time) ([]models.QueryRecord, error)

	// SaveTables replaces the table metadata for the platform/project
	// carried by the first record.
	SaveTables(ctx context.Context, tables []models.TableMetadata) error

	// LoadTables returns all stored table metadata.
	LoadTables(ctx context.Context) ([]models.TableMetadata, error)

	// SaveReadTableFacts upserts read-table facts by (query_id, platform, project).
	SaveReadTableFacts(ctx context.Context, facts []models.ReadTableFact) error

	// LoadReadTableFacts returns read-table facts for a platform/project and range.
	LoadReadTableFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.ReadTableFact, error)

	// SaveWideScanFacts upserts wide-scan facts by (query_id, platform, project).
	SaveWideScanFacts(ctx context.Context, facts []models.WideScanFact) error

	// LoadWideScanFacts returns wide-scan facts for a platform/project and range.
	LoadWideScanFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.WideScanFact, error)

	// SavePartitionFacts upserts partition-candidate facts by (query_id, platform, project).
	SavePartitionFacts(ctx context.Context, facts []models.PartitionFact) error

	// LoadPartitionFacts returns partition-candidate facts for a platform/project and range.
	LoadPartitionFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.PartitionFact, error)

	// Close releases any resources held by the backend.
	Close() error
}
