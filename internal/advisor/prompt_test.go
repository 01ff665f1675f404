package advisor

import (
	"strings"
	"testing"

	"github.com/querylens-labs/querylens/internal/aggregate"
	"github.com/querylens-labs/querylens/pkg/models"
)

func TestTopFilters_FlattensAcrossBuckets(t *testing.T) {
	buckets := []models.PartitionBucketStat{
		{
			BucketStart: "2024-03-04",
			Columns: []models.ColumnStat{{
				Column: "created_at",
				FilterTypes: []models.FilterTypeCount{
					{FilterType: models.FilterWhere, TotalCount: 3},
					{FilterType: models.FilterOrderBy, TotalCount: 1},
				},
			}},
		},
		{
			BucketStart: "2024-03-11",
			Columns: []models.ColumnStat{
				{Column: "created_at", FilterTypes: []models.FilterTypeCount{
					{FilterType: models.FilterWhere, TotalCount: 4},
				}},
				{Column: "cust_id", FilterTypes: []models.FilterTypeCount{
					{FilterType: models.FilterJoin, TotalCount: 5},
				}},
			},
		},
	}

	got := topFilters(buckets)
	if len(got) != 3 {
		t.Fatalf("expected 3 totals, got %+v", got)
	}
	if got[0] != (filterTotal{column: "created_at", filterType: models.FilterWhere, total: 7}) {
		t.Errorf("expected WHERE totals summed across buckets, got %+v", got[0])
	}
	if got[1] != (filterTotal{column: "cust_id", filterType: models.FilterJoin, total: 5}) {
		t.Errorf("unexpected second entry: %+v", got[1])
	}
	if got[2] != (filterTotal{column: "created_at", filterType: models.FilterOrderBy, total: 1}) {
		t.Errorf("unexpected third entry: %+v", got[2])
	}
}

func TestTopFilters_CapsAtFive(t *testing.T) {
	bucket := models.PartitionBucketStat{BucketStart: "2024-03-04"}
	for _, col := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		bucket.Columns = append(bucket.Columns, models.ColumnStat{
			Column: col,
			FilterTypes: []models.FilterTypeCount{
				{FilterType: models.FilterWhere, TotalCount: 1},
			},
		})
	}
	if got := topFilters([]models.PartitionBucketStat{bucket}); len(got) != 5 {
		t.Errorf("expected top five only, got %d", len(got))
	}
}

func TestBuildPrompt_WeeklyLabels(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Table:  "__TBL_AAAA0000__",
		Stats:  weeklyStats(),
		Period: aggregate.PeriodWeekly,
	})

	for _, want := range []string{
		"Prioritize recent weeks (last 4)",
		"WEEKS PATTERNS (prioritize recent):",
		"- Period: 2 weeks",
		"Queries: 22 total, 3 SELECT *",
		"TARGET: Generic",
		"TABLE: __TBL_AAAA0000__",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_MonthlyLabels(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Table:           "__TBL_AAAA0000__",
		TargetWarehouse: "Snowflake",
		Stats:           monthlyStats(),
		Period:          aggregate.PeriodMonthly,
	})

	for _, want := range []string{
		"Prioritize recent months (last 2)",
		"MONTHS PATTERNS (prioritize recent):",
		"- Period: 3 months",
		"TARGET: Snowflake",
		"optimizations for Snowflake",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_SampleSufficiency(t *testing.T) {
	low := BuildPrompt(PromptInput{Table: "t", Stats: weeklyStats(), Period: aggregate.PeriodWeekly})
	if !strings.Contains(low, "Sample: LOW (22 queries)") {
		t.Errorf("expected low-sample marker, got:\n%s", low)
	}

	big := weeklyStats()
	big.TimeStats[0].TotalQueries = 100
	high := BuildPrompt(PromptInput{Table: "t", Stats: big, Period: aggregate.PeriodWeekly})
	if !strings.Contains(high, "Sample: SUFFICIENT") {
		t.Errorf("expected sufficient-sample marker")
	}
}

func TestBuildPrompt_QualifiedTable(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Table:    "tbl",
		Database: "db",
		Schema:   "sch",
		Stats:    weeklyStats(),
		Period:   aggregate.PeriodWeekly,
	})
	if !strings.Contains(prompt, "TABLE: db.sch.tbl") {
		t.Error("expected fully qualified table name")
	}

	bare := BuildPrompt(PromptInput{Table: "tbl", Stats: weeklyStats(), Period: aggregate.PeriodWeekly})
	if !strings.Contains(bare, "TABLE: tbl\n") {
		t.Error("expected bare table name when database or schema is missing")
	}
}

func TestBuildPrompt_Metadata(t *testing.T) {
	stats := weeklyStats()
	stats.Metadata = &models.TableMetadata{
		SizeBytes: 2 << 20,
		RowCount:  1234,
		Columns: []models.TableColumn{
			{Name: "c1", Type: "TIMESTAMP"},
			{Name: "c2"},
		},
	}

	prompt := BuildPrompt(PromptInput{Table: "t", Stats: stats, Period: aggregate.PeriodWeekly})
	for _, want := range []string{
		"- Size: 2.00 MB",
		"- Row Count: 1234 rows",
		"Columns (2 total): c1 (TIMESTAMP), c2 (unknown)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPrompt_NoFilterPatterns(t *testing.T) {
	stats := weeklyStats()
	stats.PartitionStats = nil
	prompt := BuildPrompt(PromptInput{Table: "t", Stats: stats, Period: aggregate.PeriodWeekly})
	if !strings.Contains(prompt, "- No significant filter patterns detected") {
		t.Error("expected placeholder for empty filter stats")
	}
}

func TestBuildPrompt_TopFilterLines(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Table: "t", Stats: weeklyStats(), Period: aggregate.PeriodWeekly})
	if !strings.Contains(prompt, "  - created_at: WHERE (8 uses)") {
		t.Errorf("expected top filter line, got:\n%s", prompt)
	}
}
