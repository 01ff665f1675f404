// Package models provides shared data models for the querylens pipeline.
// These are the records exchanged between extractors, storage, the analyzer,
// and the advisory orchestrator.
package models

import (
	"time"
)

// QueryRecord is one raw query-history record exported from a warehouse.
// Records are immutable once extracted and keyed by (query_id, platform, project).
type QueryRecord struct {
	QueryID         string    `json:"query_id"`
	QueryText       string    `json:"query_text"`
	User            string    `json:"user,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time,omitempty"`
	ExecutionStatus string    `json:"execution_status,omitempty"`
	StatementType   string    `json:"statement_type,omitempty"`
	BytesScanned    int64     `json:"bytes_scanned,omitempty"`
	ExecutionTimeMS int64     `json:"execution_time_ms,omitempty"`
	Platform        string    `json:"platform"`
	Project         string    `json:"project"`
}

// ReadTableFact is one row per distinct base table read by a query.
// Count is the number of physical references within the statement, not a row
// count. A statement that failed to parse is recorded as a single fact with
// Error set and no table fields.
type ReadTableFact struct {
	QueryID   string    `json:"query_id"`
	StartTime time.Time `json:"start_time"`
	Platform  string    `json:"platform"`
	Project   string    `json:"project"`
	Database  string    `json:"database,omitempty"`
	Schema    string    `json:"schema,omitempty"`
	Table     string    `json:"table,omitempty"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// WideScanFact records a SELECT * against a genuine base table.
// Same shape as ReadTableFact; one occurrence per (table, statement).
type WideScanFact struct {
	QueryID   string    `json:"query_id"`
	StartTime time.Time `json:"start_time"`
	Platform  string    `json:"platform"`
	Project   string    `json:"project"`
	Database  string    `json:"database,omitempty"`
	Schema    string    `json:"schema,omitempty"`
	Table     string    `json:"table,omitempty"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Filter types tagged on partition-candidate facts by clause kind.
const (
	FilterWhere   = "WHERE"
	FilterJoin    = "JOIN"
	FilterOrderBy = "ORDER_BY"
	FilterGroupBy = "GROUP_BY"
)

// PartitionFact is one row per (table, filter_type, column) combination seen
// in a statement's WHERE/ON/ORDER BY/GROUP BY clauses.
type PartitionFact struct {
	QueryID    string    `json:"query_id"`
	StartTime  time.Time `json:"start_time"`
	Platform   string    `json:"platform"`
	Project    string    `json:"project"`
	Database   string    `json:"database,omitempty"`
	Schema     string    `json:"schema,omitempty"`
	Table      string    `json:"table,omitempty"`
	FilterType string    `json:"filter_type,omitempty"`
	Column     string    `json:"column,omitempty"`
	Count      int       `json:"count,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// TableColumn is one column in table metadata.
type TableColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableMetadata describes one physical table in a warehouse.
type TableMetadata struct {
	Platform  string        `json:"platform"`
	Project   string        `json:"project"`
	Database  string        `json:"database"`
	Schema    string        `json:"schema"`
	Table     string        `json:"table"`
	SizeBytes int64         `json:"size_bytes"`
	RowCount  int64         `json:"row_count"`
	Columns   []TableColumn `json:"columns"`
}

// TimeBucketStat is one sparse time bucket of query activity.
// BucketStart is the Monday formatted YYYY-MM-DD for weekly aggregation,
// or YYYY-MM for monthly aggregation.
type TimeBucketStat struct {
	BucketStart  string `json:"bucket_start"`
	TotalQueries int    `json:"total_queries"`
	StarQueries  int    `json:"star_queries"`
}

// FilterTypeCount is the aggregate use count for one filter type of a column.
type FilterTypeCount struct {
	FilterType string `json:"filter_type"`
	TotalCount int    `json:"total_count"`
}

// ColumnStat is the per-column breakdown inside a partition-statistic bucket.
type ColumnStat struct {
	Column      string            `json:"column"`
	FilterTypes []FilterTypeCount `json:"filter_types"`
}

// PartitionBucketStat is one time bucket of partition-candidate statistics:
// column -> filter_type -> total count, flattened as sorted lists.
type PartitionBucketStat struct {
	BucketStart string       `json:"bucket_start"`
	Columns     []ColumnStat `json:"columns"`
}

// StatsSummary summarizes a table-statistics bundle.
type StatsSummary struct {
	Periods          int `json:"periods"`
	TotalQueries     int `json:"total_queries"`
	TotalStarQueries int `json:"total_star_queries"`
}

// TableStats bundles time-bucket statistics, partition statistics, and
// resolved metadata for one table over one aggregation period.
type TableStats struct {
	Period         string                `json:"period"`
	TimeStats      []TimeBucketStat      `json:"time_stats"`
	PartitionStats []PartitionBucketStat `json:"partition_stats"`
	Metadata       *TableMetadata        `json:"table_metadata,omitempty"`
	Summary        StatsSummary          `json:"summary"`
}

// Suggestion is one platform-specific optimization suggestion for a table.
type Suggestion struct {
	Table          string `json:"table"`
	Recommendation string `json:"recommendation"`
	Reason         string `json:"reason"`
}
