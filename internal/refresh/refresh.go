// Package refresh drives the ingestion and analysis cycle: pull query
// history and table metadata from a warehouse, persist them, and derive the
// fact streams.
package refresh

import (
	"context"
	"time"

	"github.com/querylens-labs/querylens/internal/analyzer"
	"github.com/querylens-labs/querylens/internal/extract"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/internal/storage"
)

// Service runs refresh and analysis operations against one storage backend.
type Service struct {
	storage storage.Storage
	logger  observability.Logger
}

// NewService creates a refresh service. Logger may be nil.
func NewService(store storage.Storage, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Service{storage: store, logger: logger}
}

// RefreshQueryHistory pulls queries from the warehouse for the time range
// and upserts them. Returns the number of records stored.
func (s *Service) RefreshQueryHistory(ctx context.Context, ex extract.Extractor, start, end time.Time) (int, error) {
	began := time.Now()
	queries, err := ex.ExtractQueryHistory(ctx, start, end)
	if err != nil {
		return 0, err
	}
	if err := s.storage.SaveQueries(ctx, queries); err != nil {
		return 0, err
	}
	s.logger.LogEvent(ctx, observability.Entry{
		Operation: "refresh_queries",
		Platform:  ex.Platform(),
		Records:   len(queries),
		Duration:  time.Since(began),
		Outcome:   "success",
	})
	return len(queries), nil
}

// RefreshTables pulls table metadata from the warehouse and replaces the
// stored snapshot. Returns the number of tables stored.
func (s *Service) RefreshTables(ctx context.Context, ex extract.Extractor) (int, error) {
	began := time.Now()
	tables, err := ex.ExtractTables(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.storage.SaveTables(ctx, tables); err != nil {
		return 0, err
	}
	s.logger.LogEvent(ctx, observability.Entry{
		Operation: "refresh_tables",
		Platform:  ex.Platform(),
		Records:   len(tables),
		Duration:  time.Since(began),
		Outcome:   "success",
	})
	return len(tables), nil
}

// RefreshAll runs both refreshes. The query refresh runs first so a
// metadata failure still leaves the history current.
func (s *Service) RefreshAll(ctx context.Context, ex extract.Extractor, start, end time.Time) (queries, tables int, err error) {
	queries, err = s.RefreshQueryHistory(ctx, ex, start, end)
	if err != nil {
		return queries, 0, err
	}
	tables, err = s.RefreshTables(ctx, ex)
	return queries, tables, err
}

// AnalysisCounts reports how many facts of each kind an analysis produced.
type AnalysisCounts struct {
	ReadTableFacts int
	WideScanFacts  int
	PartitionFacts int
}

// RunAnalysis derives all three fact streams from the stored query history
// and persists them.
func (s *Service) RunAnalysis(ctx context.Context, a *analyzer.Analyzer, project string, start, end time.Time) (*AnalysisCounts, error) {
	counts := &AnalysisCounts{}

	readFacts, err := a.FindReadTableFacts(ctx, project, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveReadTableFacts(ctx, readFacts); err != nil {
		return nil, err
	}
	counts.ReadTableFacts = len(readFacts)

	wideFacts, err := a.FindWideScanFacts(ctx, project, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveWideScanFacts(ctx, wideFacts); err != nil {
		return nil, err
	}
	counts.WideScanFacts = len(wideFacts)

	partitionFacts, err := a.FindPartitionFacts(ctx, project, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SavePartitionFacts(ctx, partitionFacts); err != nil {
		return nil, err
	}
	counts.PartitionFacts = len(partitionFacts)

	return counts, nil
}
