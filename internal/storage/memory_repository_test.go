package storage

import (
	"context"
	"testing"
	"time"

	"github.com/querylens-labs/querylens/pkg/models"
)

func TestMemoryRepository_QueriesUpsertAndOrder(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	err := repo.SaveQueries(ctx, []models.QueryRecord{
		{QueryID: "q2", QueryText: "SELECT 2", StartTime: start.Add(time.Hour), Platform: "snowflake", Project: "acct1"},
		{QueryID: "q1", QueryText: "SELECT 1", StartTime: start, Platform: "snowflake", Project: "acct1"},
	})
	if err != nil {
		t.Fatalf("SaveQueries failed: %v", err)
	}
	// Upsert replaces by (query_id, platform, project).
	err = repo.SaveQueries(ctx, []models.QueryRecord{
		{QueryID: "q1", QueryText: "SELECT 1 -- rerun", StartTime: start, Platform: "snowflake", Project: "acct1"},
	})
	if err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	got, err := repo.LoadQueries(ctx, "snowflake", "acct1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadQueries failed: %v", err)
	}
	if len(got) != 2 || got[0].QueryID != "q1" || got[1].QueryID != "q2" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got[0].QueryText != "SELECT 1 -- rerun" {
		t.Errorf("upsert did not replace the record: %+v", got[0])
	}
}

func TestMemoryRepository_TimeRange(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	var queries []models.QueryRecord
	for i := 0; i < 3; i++ {
		queries = append(queries, models.QueryRecord{
			QueryID: string(rune('a' + i)), QueryText: "SELECT 1",
			StartTime: base.AddDate(0, 0, i), Platform: "snowflake", Project: "acct1",
		})
	}
	if err := repo.SaveQueries(ctx, queries); err != nil {
		t.Fatalf("SaveQueries failed: %v", err)
	}

	got, err := repo.LoadQueries(ctx, "snowflake", "acct1", base.AddDate(0, 0, 1), time.Time{})
	if err != nil {
		t.Fatalf("LoadQueries failed: %v", err)
	}
	if len(got) != 2 || got[0].QueryID != "b" {
		t.Errorf("unexpected range result: %+v", got)
	}
}

func TestMemoryRepository_FactsReplacedPerQuery(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	first := []models.ReadTableFact{
		{QueryID: "q1", StartTime: start, Platform: "snowflake", Project: "acct1", Table: "orders", Count: 1},
		{QueryID: "q1", StartTime: start, Platform: "snowflake", Project: "acct1", Table: "customers", Count: 1},
	}
	if err := repo.SaveReadTableFacts(ctx, first); err != nil {
		t.Fatalf("SaveReadTableFacts failed: %v", err)
	}
	rerun := []models.ReadTableFact{
		{QueryID: "q1", StartTime: start, Platform: "snowflake", Project: "acct1", Table: "orders", Count: 2},
	}
	if err := repo.SaveReadTableFacts(ctx, rerun); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	got, err := repo.LoadReadTableFacts(ctx, "snowflake", "acct1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadReadTableFacts failed: %v", err)
	}
	if len(got) != 1 || got[0].Count != 2 {
		t.Errorf("expected facts replaced per query, got %+v", got)
	}
}

func TestMemoryRepository_PartitionFactsSorted(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	facts := []models.PartitionFact{
		{QueryID: "q1", StartTime: start, Platform: "snowflake", Project: "acct1",
			Table: "orders", FilterType: models.FilterWhere, Column: "created_at", Count: 1},
		{QueryID: "q1", StartTime: start, Platform: "snowflake", Project: "acct1",
			Table: "orders", FilterType: models.FilterJoin, Column: "cust_id", Count: 1},
		{QueryID: "q1", StartTime: start, Platform: "snowflake", Project: "acct1",
			Table: "customers", FilterType: models.FilterJoin, Column: "id", Count: 1},
	}
	if err := repo.SavePartitionFacts(ctx, facts); err != nil {
		t.Fatalf("SavePartitionFacts failed: %v", err)
	}

	got, err := repo.LoadPartitionFacts(ctx, "snowflake", "acct1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadPartitionFacts failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(got))
	}
	if got[0].Table != "customers" || got[1].FilterType != models.FilterJoin || got[2].FilterType != models.FilterWhere {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestMemoryRepository_SaveTablesReplacesScope(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()

	err := repo.SaveTables(ctx, []models.TableMetadata{
		{Platform: "snowflake", Project: "acct1", Table: "orders"},
		{Platform: "snowflake", Project: "acct1", Table: "customers"},
	})
	if err != nil {
		t.Fatalf("SaveTables failed: %v", err)
	}
	// A second scope coexists; re-saving the first replaces only its rows.
	err = repo.SaveTables(ctx, []models.TableMetadata{
		{Platform: "bigquery", Project: "proj1", Table: "events"},
	})
	if err != nil {
		t.Fatalf("SaveTables failed: %v", err)
	}
	err = repo.SaveTables(ctx, []models.TableMetadata{
		{Platform: "snowflake", Project: "acct1", Table: "orders"},
	})
	if err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	got, err := repo.LoadTables(ctx)
	if err != nil {
		t.Fatalf("LoadTables failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tables across scopes, got %+v", got)
	}
}

func TestMemoryRepository_UnscopedSaveIsSkipped(t *testing.T) {
	repo := NewMemoryRepository(nil)
	ctx := context.Background()

	err := repo.SaveWideScanFacts(ctx, []models.WideScanFact{{QueryID: "q1", Table: "orders"}})
	if err != nil {
		t.Fatalf("expected skip, not failure: %v", err)
	}
	got, err := repo.LoadWideScanFacts(ctx, "", "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("LoadWideScanFacts failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unscoped facts must not be saved, got %+v", got)
	}
}

func TestInRange(t *testing.T) {
	ts := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name          string
		t, start, end time.Time
		want          bool
	}{
		{"unbounded", ts, time.Time{}, time.Time{}, true},
		{"inside", ts, ts.Add(-time.Hour), ts.Add(time.Hour), true},
		{"at bounds", ts, ts, ts, true},
		{"before start", ts, ts.Add(time.Minute), time.Time{}, false},
		{"after end", ts, time.Time{}, ts.Add(-time.Minute), false},
		{"zero time unbounded only", time.Time{}, time.Time{}, time.Time{}, true},
		{"zero time excluded from range", time.Time{}, ts, time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inRange(tc.t, tc.start, tc.end); got != tc.want {
				t.Errorf("inRange(%v, %v, %v) = %v, want %v", tc.t, tc.start, tc.end, got, tc.want)
			}
		})
	}
}
