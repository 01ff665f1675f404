package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// MemoryRepository is an in-memory Storage implementation for tests and
// ephemeral runs. Safe for concurrent use.
type MemoryRepository struct {
	mu             sync.RWMutex
	logger         observability.Logger
	queries        map[string]models.QueryRecord // keyed by query_id|platform|project
	tables         []models.TableMetadata
	readFacts      map[string][]models.ReadTableFact
	wideFacts      map[string][]models.WideScanFact
	partitionFacts map[string][]models.PartitionFact
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(logger observability.Logger) *MemoryRepository {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &MemoryRepository{
		logger:         logger,
		queries:        make(map[string]models.QueryRecord),
		readFacts:      make(map[string][]models.ReadTableFact),
		wideFacts:      make(map[string][]models.WideScanFact),
		partitionFacts: make(map[string][]models.PartitionFact),
	}
}

func memKey(queryID, platform, project string) string {
	return queryID + "\x00" + platform + "\x00" + project
}

func inRange(t, start, end time.Time) bool {
	if t.IsZero() {
		return start.IsZero() && end.IsZero()
	}
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

func (m *MemoryRepository) warnSkippedSave(ctx context.Context, operation string) {
	m.logger.LogEvent(ctx, observability.Entry{
		Operation: operation,
		Platform:  "unknown",
		Outcome:   "skipped",
		Error:     "no record carries platform and project; nothing saved",
	})
}

// SaveQueries upserts raw query-history records.
func (m *MemoryRepository) SaveQueries(ctx context.Context, queries []models.QueryRecord) error {
	if len(queries) == 0 {
		return nil
	}
	if queries[0].Platform == "" || queries[0].Project == "" {
		m.warnSkippedSave(ctx, "save_queries")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range queries {
		m.queries[memKey(q.QueryID, q.Platform, q.Project)] = q
	}
	return nil
}

// LoadQueries returns queries for a platform/project and optional range.
func (m *MemoryRepository) LoadQueries(ctx context.Context, platform, project string, start, end time.Time) ([]models.QueryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.QueryRecord
	for _, q := range m.queries {
		if q.Platform == platform && q.Project == project && inRange(q.StartTime, start, end) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].QueryID < out[j].QueryID
	})
	return out, nil
}

// SaveTables replaces stored metadata for the carried platform/project.
func (m *MemoryRepository) SaveTables(ctx context.Context, tables []models.TableMetadata) error {
	if len(tables) == 0 {
		return nil
	}
	platform, project := tables[0].Platform, tables[0].Project
	if platform == "" || project == "" {
		m.warnSkippedSave(ctx, "save_tables")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tables[:0]
	for _, t := range m.tables {
		if t.Platform != platform || t.Project != project {
			kept = append(kept, t)
		}
	}
	m.tables = append(kept, tables...)
	return nil
}

// LoadTables returns all stored table metadata.
func (m *MemoryRepository) LoadTables(ctx context.Context) ([]models.TableMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TableMetadata, len(m.tables))
	copy(out, m.tables)
	return out, nil
}

// SaveReadTableFacts replaces read-table facts per source query.
func (m *MemoryRepository) SaveReadTableFacts(ctx context.Context, facts []models.ReadTableFact) error {
	if len(facts) == 0 {
		return nil
	}
	scoped := false
	for _, f := range facts {
		if f.Platform != "" && f.Project != "" {
			scoped = true
			break
		}
	}
	if !scoped {
		m.warnSkippedSave(ctx, "save_read_table_facts")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := make(map[string]bool)
	for _, f := range facts {
		key := memKey(f.QueryID, f.Platform, f.Project)
		if !cleared[key] {
			cleared[key] = true
			m.readFacts[key] = nil
		}
		m.readFacts[key] = append(m.readFacts[key], f)
	}
	return nil
}

// LoadReadTableFacts returns read-table facts for a platform/project and range.
func (m *MemoryRepository) LoadReadTableFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.ReadTableFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ReadTableFact
	for _, facts := range m.readFacts {
		for _, f := range facts {
			if f.Platform == platform && f.Project == project && inRange(f.StartTime, start, end) {
				out = append(out, f)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		if out[i].QueryID != out[j].QueryID {
			return out[i].QueryID < out[j].QueryID
		}
		return out[i].Table < out[j].Table
	})
	return out, nil
}

// SaveWideScanFacts replaces wide-scan facts per source query.
func (m *MemoryRepository) SaveWideScanFacts(ctx context.Context, facts []models.WideScanFact) error {
	if len(facts) == 0 {
		return nil
	}
	scoped := false
	for _, f := range facts {
		if f.Platform != "" && f.Project != "" {
			scoped = true
			break
		}
	}
	if !scoped {
		m.warnSkippedSave(ctx, "save_wide_scan_facts")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := make(map[string]bool)
	for _, f := range facts {
		key := memKey(f.QueryID, f.Platform, f.Project)
		if !cleared[key] {
			cleared[key] = true
			m.wideFacts[key] = nil
		}
		m.wideFacts[key] = append(m.wideFacts[key], f)
	}
	return nil
}

// LoadWideScanFacts returns wide-scan facts for a platform/project and range.
func (m *MemoryRepository) LoadWideScanFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.WideScanFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.WideScanFact
	for _, facts := range m.wideFacts {
		for _, f := range facts {
			if f.Platform == platform && f.Project == project && inRange(f.StartTime, start, end) {
				out = append(out, f)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		if out[i].QueryID != out[j].QueryID {
			return out[i].QueryID < out[j].QueryID
		}
		return out[i].Table < out[j].Table
	})
	return out, nil
}

// SavePartitionFacts replaces partition facts per source query.
func (m *MemoryRepository) SavePartitionFacts(ctx context.Context, facts []models.PartitionFact) error {
	if len(facts) == 0 {
		return nil
	}
	scoped := false
	for _, f := range facts {
		if f.Platform != "" && f.Project != "" {
			scoped = true
			break
		}
	}
	if !scoped {
		m.warnSkippedSave(ctx, "save_partition_facts")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := make(map[string]bool)
	for _, f := range facts {
		key := memKey(f.QueryID, f.Platform, f.Project)
		if !cleared[key] {
			cleared[key] = true
			m.partitionFacts[key] = nil
		}
		m.partitionFacts[key] = append(m.partitionFacts[key], f)
	}
	return nil
}

// LoadPartitionFacts returns partition facts for a platform/project and range.
func (m *MemoryRepository) LoadPartitionFacts(ctx context.Context, platform, project string, start, end time.Time) ([]models.PartitionFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PartitionFact
	for _, facts := range m.partitionFacts {
		for _, f := range facts {
			if f.Platform == platform && f.Project == project && inRange(f.StartTime, start, end) {
				out = append(out, f)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		if out[i].QueryID != out[j].QueryID {
			return out[i].QueryID < out[j].QueryID
		}
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		if out[i].FilterType != out[j].FilterType {
			return out[i].FilterType < out[j].FilterType
		}
		return out[i].Column < out[j].Column
	})
	return out, nil
}

// Close is a no-op for the in-memory repository.
func (m *MemoryRepository) Close() error { return nil }

var _ Storage = (*MemoryRepository)(nil)
