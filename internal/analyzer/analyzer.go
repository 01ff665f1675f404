// Package analyzer extracts structural facts from warehouse query history:
// which tables a query reads, where SELECT * scans appear, and which columns
// are candidates for partitioning or clustering.
package analyzer

import (
	"context"
	"sort"
	"strings"
	"time"

	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/internal/sqlast"
	"github.com/querylens-labs/querylens/internal/storage"
	"github.com/querylens-labs/querylens/pkg/models"
)

// Config configures an Analyzer.
type Config struct {
	// Platform identifies the warehouse dialect the queries came from
	// (e.g. "snowflake", "bigquery").
	Platform string

	// Storage supplies the raw query history and receives facts.
	Storage storage.Storage

	// Parser turns SQL text into the normalized tree the walks consume.
	Parser sqlast.Parser

	// Optimizer optionally rewrites the tree before analysis. May be nil.
	Optimizer sqlast.Optimizer

	// Logger records per-operation events. May be nil.
	Logger observability.Logger
}

// Analyzer computes fact streams from stored query history.
type Analyzer struct {
	platform  string
	storage   storage.Storage
	parser    sqlast.Parser
	optimizer sqlast.Optimizer
	logger    observability.Logger
}

// New validates the configuration and returns an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	if cfg.Platform == "" {
		return nil, qerrors.NewMissingIdentifier("platform")
	}
	if cfg.Storage == nil {
		return nil, qerrors.NewMissingIdentifier("storage")
	}
	if cfg.Parser == nil {
		return nil, qerrors.NewMissingIdentifier("parser")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Analyzer{
		platform:  cfg.Platform,
		storage:   cfg.Storage,
		parser:    cfg.Parser,
		optimizer: cfg.Optimizer,
		logger:    logger,
	}, nil
}

// parse runs the parser and the optional optimizer.
func (a *Analyzer) parse(sql string) (*sqlast.Node, error) {
	root, err := a.parser.Parse(sql, a.platform)
	if err != nil {
		return nil, err
	}
	if a.optimizer != nil {
		root, err = a.optimizer.Optimize(root)
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}

// FindReadTableFacts parses every stored query in the range and emits one
// fact per distinct table read, with the number of reads inside that query.
// Queries that fail to parse produce a single fact carrying the parse error
// so downstream aggregation can report coverage.
func (a *Analyzer) FindReadTableFacts(ctx context.Context, project string, start, end time.Time) ([]models.ReadTableFact, error) {
	began := time.Now()
	queries, err := a.storage.LoadQueries(ctx, a.platform, project, start, end)
	if err != nil {
		return nil, err
	}

	var facts []models.ReadTableFact
	parseErrors := 0
	for _, q := range queries {
		root, err := a.parse(q.QueryText)
		if err != nil {
			parseErrors++
			facts = append(facts, models.ReadTableFact{
				QueryID:   q.QueryID,
				StartTime: q.StartTime,
				Platform:  q.Platform,
				Project:   q.Project,
				Error:     err.Error(),
			})
			continue
		}
		counts := ReadTables(root)
		refs := sortedRefs(counts)
		for _, ref := range refs {
			facts = append(facts, models.ReadTableFact{
				QueryID:   q.QueryID,
				StartTime: q.StartTime,
				Platform:  q.Platform,
				Project:   q.Project,
				Database:  ref.Database,
				Schema:    ref.Schema,
				Table:     ref.Table,
				Count:     counts[ref],
			})
		}
	}

	a.logger.LogEvent(ctx, observability.Entry{
		Operation:   "find_read_table_facts",
		Platform:    a.platform,
		Project:     project,
		Records:     len(facts),
		ParseErrors: parseErrors,
		Duration:    time.Since(began),
		Outcome:     "success",
	})
	return facts, nil
}

// FindWideScanFacts emits one fact per table whose projection includes a star
// that resolves to it, with the occurrence count inside the query.
func (a *Analyzer) FindWideScanFacts(ctx context.Context, project string, start, end time.Time) ([]models.WideScanFact, error) {
	began := time.Now()
	queries, err := a.storage.LoadQueries(ctx, a.platform, project, start, end)
	if err != nil {
		return nil, err
	}

	var facts []models.WideScanFact
	parseErrors := 0
	for _, q := range queries {
		root, err := a.parse(q.QueryText)
		if err != nil {
			parseErrors++
			facts = append(facts, models.WideScanFact{
				QueryID:   q.QueryID,
				StartTime: q.StartTime,
				Platform:  q.Platform,
				Project:   q.Project,
				Error:     err.Error(),
			})
			continue
		}
		counts := StarOccurrences(root)
		refs := sortedRefs(counts)
		for _, ref := range refs {
			facts = append(facts, models.WideScanFact{
				QueryID:   q.QueryID,
				StartTime: q.StartTime,
				Platform:  q.Platform,
				Project:   q.Project,
				Database:  ref.Database,
				Schema:    ref.Schema,
				Table:     ref.Table,
				Count:     counts[ref],
			})
		}
	}

	a.logger.LogEvent(ctx, observability.Entry{
		Operation:   "find_wide_scan_facts",
		Platform:    a.platform,
		Project:     project,
		Records:     len(facts),
		ParseErrors: parseErrors,
		Duration:    time.Since(began),
		Outcome:     "success",
	})
	return facts, nil
}

// FindPartitionFacts emits one fact per (table, filter type, column) triple
// found in filtering clauses, with the reference count inside the query.
func (a *Analyzer) FindPartitionFacts(ctx context.Context, project string, start, end time.Time) ([]models.PartitionFact, error) {
	began := time.Now()
	queries, err := a.storage.LoadQueries(ctx, a.platform, project, start, end)
	if err != nil {
		return nil, err
	}

	var facts []models.PartitionFact
	parseErrors := 0
	for _, q := range queries {
		root, err := a.parse(q.QueryText)
		if err != nil {
			parseErrors++
			facts = append(facts, models.PartitionFact{
				QueryID:   q.QueryID,
				StartTime: q.StartTime,
				Platform:  q.Platform,
				Project:   q.Project,
				Error:     err.Error(),
			})
			continue
		}
		counts := PartitionCandidates(root)
		keys := sortedCandidateKeys(counts)
		for _, key := range keys {
			facts = append(facts, models.PartitionFact{
				QueryID:    q.QueryID,
				StartTime:  q.StartTime,
				Platform:   q.Platform,
				Project:    q.Project,
				Database:   key.Database,
				Schema:     key.Schema,
				Table:      key.Table,
				FilterType: key.FilterType,
				Column:     key.Column,
				Count:      counts[key],
			})
		}
	}

	a.logger.LogEvent(ctx, observability.Entry{
		Operation:   "find_partition_facts",
		Platform:    a.platform,
		Project:     project,
		Records:     len(facts),
		ParseErrors: parseErrors,
		Duration:    time.Since(began),
		Outcome:     "success",
	})
	return facts, nil
}

// ColumnFilterStats counts lowercased table.column references across the
// range's filtering clauses. Queries that fail to parse are skipped.
func (a *Analyzer) ColumnFilterStats(ctx context.Context, project string, start, end time.Time) (map[string]int, error) {
	queries, err := a.storage.LoadQueries(ctx, a.platform, project, start, end)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int)
	for _, q := range queries {
		root, err := a.parse(q.QueryText)
		if err != nil {
			continue
		}
		for _, col := range FilterColumns(root) {
			stats[col]++
		}
	}
	return stats, nil
}

// Recommend ranks a table's columns by how often the range's queries filter
// on them (WHERE, JOIN ON, HAVING) and applies the platform strategy to
// produce layout suggestions. Sort and grouping columns do not drive the
// ranking: a column only read for ORDER BY gains nothing from partitioning.
func (a *Analyzer) Recommend(ctx context.Context, project, table string, start, end time.Time) ([]models.Suggestion, error) {
	strategy, err := StrategyFor(a.platform)
	if err != nil {
		return nil, err
	}
	stats, err := a.ColumnFilterStats(ctx, project, start, end)
	if err != nil {
		return nil, err
	}

	prefix := strings.ToLower(table) + "."
	counts := make(map[string]int)
	for key, n := range stats {
		col, ok := strings.CutPrefix(key, prefix)
		if !ok || col == "" {
			continue
		}
		counts[col] += n
	}
	if len(counts) == 0 {
		return nil, qerrors.NewNoData(a.platform, project, table)
	}
	return strategy.Recommend(table, RankColumns(counts)), nil
}

func sortedRefs(counts map[TableRef]int) []TableRef {
	refs := make([]TableRef, 0, len(counts))
	for ref := range counts {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Database != refs[j].Database {
			return refs[i].Database < refs[j].Database
		}
		if refs[i].Schema != refs[j].Schema {
			return refs[i].Schema < refs[j].Schema
		}
		return refs[i].Table < refs[j].Table
	})
	return refs
}

func sortedCandidateKeys(counts map[CandidateKey]int) []CandidateKey {
	keys := make([]CandidateKey, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Database != keys[j].Database {
			return keys[i].Database < keys[j].Database
		}
		if keys[i].Schema != keys[j].Schema {
			return keys[i].Schema < keys[j].Schema
		}
		if keys[i].Table != keys[j].Table {
			return keys[i].Table < keys[j].Table
		}
		if keys[i].FilterType != keys[j].FilterType {
			return keys[i].FilterType < keys[j].FilterType
		}
		return keys[i].Column < keys[j].Column
	})
	return keys
}
