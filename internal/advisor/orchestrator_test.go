package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/querylens-labs/querylens/internal/anonymize"
	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

func noSleep(context.Context, time.Duration) error { return nil }

// recordingLogger captures entries so tests can assert on logged outcomes.
type recordingLogger struct {
	entries []observability.Entry
}

func (l *recordingLogger) LogEvent(_ context.Context, entry observability.Entry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *recordingLogger) Summary() *observability.OperationSummary {
	return &observability.OperationSummary{}
}

func testScope() Scope {
	return Scope{
		Platform:        "snowflake",
		Project:         "acct1",
		Database:        "prod",
		Schema:          "sales",
		Table:           "orders",
		TargetWarehouse: "BigQuery",
	}
}

func weeklyStats() models.TableStats {
	return models.TableStats{
		Period: "weekly",
		TimeStats: []models.TimeBucketStat{
			{BucketStart: "2024-03-04", TotalQueries: 10, StarQueries: 2},
			{BucketStart: "2024-03-11", TotalQueries: 12, StarQueries: 1},
		},
		PartitionStats: []models.PartitionBucketStat{{
			BucketStart: "2024-03-04",
			Columns: []models.ColumnStat{{
				Column: "created_at",
				FilterTypes: []models.FilterTypeCount{
					{FilterType: models.FilterWhere, TotalCount: 8},
				},
			}},
		}},
		Summary: models.StatsSummary{Periods: 2, TotalQueries: 22, TotalStarQueries: 3},
	}
}

func monthlyStats() models.TableStats {
	stats := models.TableStats{Period: "monthly"}
	for _, key := range []string{"2024-01", "2024-02", "2024-03"} {
		stats.TimeStats = append(stats.TimeStats, models.TimeBucketStat{
			BucketStart: key, TotalQueries: 30, StarQueries: 3,
		})
		stats.PartitionStats = append(stats.PartitionStats, models.PartitionBucketStat{
			BucketStart: key,
			Columns: []models.ColumnStat{{
				Column: "created_at",
				FilterTypes: []models.FilterTypeCount{
					{FilterType: models.FilterWhere, TotalCount: 10},
				},
			}},
		})
	}
	stats.Summary = models.StatsSummary{Periods: 3, TotalQueries: 90, TotalStarQueries: 9}
	return stats
}

func TestAdvise_WeeklyTierSucceeds(t *testing.T) {
	tableTok := anonymize.Token(anonymize.ClassTable, "orders")
	colTok := anonymize.Token(anonymize.ClassColumn, "created_at")
	gen := scripted(resp("Partition "+tableTok+" by "+colTok+".", nil))

	a := New(gen, nil)
	a.sleep = noSleep

	adv, err := a.Advise(context.Background(), testScope(), weeklyStats(), monthlyStats())
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if adv.Tier != "weekly" {
		t.Errorf("expected weekly tier, got %q", adv.Tier)
	}
	if adv.Text != "Partition orders by created_at." {
		t.Errorf("identifiers not restored: %q", adv.Text)
	}
	if adv.ReverseMap[tableTok] != "orders" {
		t.Errorf("reverse map missing table token: %v", adv.ReverseMap)
	}
	if gen.calls != 1 {
		t.Errorf("expected a single generator call, got %d", gen.calls)
	}
}

func TestAdvise_PromptIsAnonymized(t *testing.T) {
	gen := scripted(resp("ok", nil))
	a := New(gen, nil)
	a.sleep = noSleep

	if _, err := a.Advise(context.Background(), testScope(), weeklyStats(), monthlyStats()); err != nil {
		t.Fatalf("Advise failed: %v", err)
	}

	prompt := gen.prompts[0]
	for _, leaked := range []string{"orders", "created_at", "snowflake", "acct1", "prod", "sales"} {
		if strings.Contains(prompt, leaked) {
			t.Errorf("prompt leaks identifier %q", leaked)
		}
	}
	// The target system is not sensitive and stays readable.
	if !strings.Contains(prompt, "BigQuery") {
		t.Error("target warehouse should pass through untokenized")
	}
	if !strings.Contains(prompt, anonymize.Token(anonymize.ClassTable, "orders")) {
		t.Error("prompt should carry the table token")
	}
}

func TestAdvise_FallsBackToMonthly(t *testing.T) {
	overloaded := resp("", &GeneratorError{Kind: KindOverloaded, Message: "model overloaded"})
	tableTok := anonymize.Token(anonymize.ClassTable, "orders")
	gen := scripted(
		overloaded, overloaded, overloaded, // weekly tier exhausted
		resp("Use monthly partitions on "+tableTok+".", nil),
	)

	a := New(gen, nil)
	a.sleep = noSleep

	adv, err := a.Advise(context.Background(), testScope(), weeklyStats(), monthlyStats())
	if err != nil {
		t.Fatalf("Advise failed: %v", err)
	}
	if adv.Tier != "monthly" {
		t.Errorf("expected monthly tier, got %q", adv.Tier)
	}
	if adv.Text != "Use monthly partitions on orders." {
		t.Errorf("identifiers not restored: %q", adv.Text)
	}
	if gen.calls != 4 {
		t.Errorf("expected 3 weekly + 1 monthly call, got %d", gen.calls)
	}

	// The fallback prompt keeps only the two most recent monthly buckets.
	fallback := gen.prompts[3]
	if strings.Contains(fallback, "2024-01") {
		t.Error("fallback prompt should drop the oldest monthly bucket")
	}
	for _, key := range []string{"2024-02", "2024-03"} {
		if !strings.Contains(fallback, key) {
			t.Errorf("fallback prompt missing bucket %s", key)
		}
	}
}

func TestAdvise_LogsDocumentedOutcomes(t *testing.T) {
	overloaded := resp("", &GeneratorError{Kind: KindOverloaded, Message: "model overloaded"})

	cases := []struct {
		name string
		gen  *scriptedGenerator
		want []string
	}{
		{"weekly success", scripted(resp("ok", nil)), []string{"success"}},
		{
			"monthly fallback",
			scripted(overloaded, overloaded, overloaded, resp("ok", nil)),
			[]string{"error", "degraded"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logger := &recordingLogger{}
			a := New(tc.gen, logger)
			a.sleep = noSleep

			if _, err := a.Advise(context.Background(), testScope(), weeklyStats(), monthlyStats()); err != nil {
				t.Fatalf("Advise failed: %v", err)
			}
			if len(logger.entries) != len(tc.want) {
				t.Fatalf("expected %d log entries, got %+v", len(tc.want), logger.entries)
			}
			for i, want := range tc.want {
				if logger.entries[i].Outcome != want {
					t.Errorf("entry %d: expected outcome %q, got %q", i, want, logger.entries[i].Outcome)
				}
			}
		})
	}
}

func TestAdvise_BothTiersFail(t *testing.T) {
	gen := scripted(resp("", &GeneratorError{Kind: KindOverloaded, Message: "model overloaded"}))
	a := New(gen, nil)
	a.sleep = noSleep

	_, err := a.Advise(context.Background(), testScope(), weeklyStats(), monthlyStats())
	var failed *qerrors.ErrAdvisoryFailed
	if !errors.As(err, &failed) {
		t.Fatalf("expected ErrAdvisoryFailed, got %v", err)
	}
	if failed.Tier != "monthly" {
		t.Errorf("expected the last tier recorded, got %q", failed.Tier)
	}
	if gen.calls != 6 {
		t.Errorf("expected 3 attempts per tier, got %d", gen.calls)
	}
}

func TestAdvise_MissingTable(t *testing.T) {
	a := New(scripted(resp("ok", nil)), nil)
	a.sleep = noSleep

	scope := testScope()
	scope.Table = ""
	_, err := a.Advise(context.Background(), scope, weeklyStats(), monthlyStats())
	var missing *qerrors.ErrMissingIdentifier
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingIdentifier, got %v", err)
	}
}

func TestTruncateForFallback(t *testing.T) {
	got := truncateForFallback(monthlyStats())
	if len(got.TimeStats) != 2 || got.TimeStats[0].BucketStart != "2024-02" {
		t.Errorf("unexpected time stats after truncation: %+v", got.TimeStats)
	}
	if len(got.PartitionStats) != 2 || got.PartitionStats[0].BucketStart != "2024-02" {
		t.Errorf("unexpected partition stats after truncation: %+v", got.PartitionStats)
	}
	if got.Summary.Periods != 2 || got.Summary.TotalQueries != 60 || got.Summary.TotalStarQueries != 6 {
		t.Errorf("summary not recomputed: %+v", got.Summary)
	}
}

func TestTruncateForFallback_ShortInputUnchanged(t *testing.T) {
	in := weeklyStats()
	got := truncateForFallback(in)
	if len(got.TimeStats) != len(in.TimeStats) || len(got.PartitionStats) != len(in.PartitionStats) {
		t.Errorf("short input should pass through, got %+v", got)
	}
}
