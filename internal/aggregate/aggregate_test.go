package aggregate

import (
	"testing"
	"time"

	"github.com/querylens-labs/querylens/pkg/models"
)

func TestBucketStart_WeeklyBacksUpToMonday(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want string
	}{
		{"monday stays", time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), "2024-03-04"},
		{"wednesday backs up", time.Date(2024, 3, 6, 23, 59, 0, 0, time.UTC), "2024-03-04"},
		{"sunday backs up six days", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "2024-03-04"},
		{"next monday starts new bucket", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), "2024-03-11"},
		{"month boundary crossed", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), "2024-02-26"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PeriodWeekly.BucketStart(tc.in); got != tc.want {
				t.Errorf("BucketStart(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBucketStart_Monthly(t *testing.T) {
	in := time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)
	if got := PeriodMonthly.BucketStart(in); got != "2024-03" {
		t.Errorf("BucketStart = %q, want 2024-03", got)
	}
}

func TestBucketStart_NormalizesToUTC(t *testing.T) {
	// 23:00 Monday in UTC+2 is 21:00 Sunday UTC; the bucket follows UTC.
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := time.Date(2024, 3, 4, 1, 0, 0, 0, loc)
	if got := PeriodWeekly.BucketStart(in); got != "2024-02-26" {
		t.Errorf("BucketStart = %q, want 2024-02-26", got)
	}
}

func TestTimeBucketStats_TwoWeeks(t *testing.T) {
	week1 := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)  // Tuesday
	week2 := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC) // next Monday

	read := []models.ReadTableFact{
		{QueryID: "q1", StartTime: week1, Table: "orders", Count: 2},
		{QueryID: "q2", StartTime: week1, Table: "orders", Count: 1},
		{QueryID: "q3", StartTime: week2, Table: "orders", Count: 1},
		// Zero count means the source only recorded presence.
		{QueryID: "q4", StartTime: week2, Table: "orders"},
		// Skipped: parse error and missing timestamp.
		{QueryID: "q5", StartTime: week1, Error: "syntax error"},
		{QueryID: "q6", Table: "orders", Count: 5},
	}
	wide := []models.WideScanFact{
		{QueryID: "q1", StartTime: week1, Table: "orders", Count: 1},
		{QueryID: "q7", StartTime: week2, Error: "syntax error"},
	}

	got := TimeBucketStats(read, wide, PeriodWeekly)
	want := []models.TimeBucketStat{
		{BucketStart: "2024-03-04", TotalQueries: 3, StarQueries: 1},
		{BucketStart: "2024-03-11", TotalQueries: 2, StarQueries: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("bucket %d: expected %+v, got %+v", i, w, got[i])
		}
	}
}

func TestTimeBucketStats_MonthlyKeys(t *testing.T) {
	read := []models.ReadTableFact{
		{QueryID: "q1", StartTime: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Count: 1},
		{QueryID: "q2", StartTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Count: 1},
	}
	got := TimeBucketStats(read, nil, PeriodMonthly)
	if len(got) != 2 || got[0].BucketStart != "2024-02" || got[1].BucketStart != "2024-03" {
		t.Errorf("unexpected monthly buckets: %+v", got)
	}
}

func TestTimeBucketStats_Empty(t *testing.T) {
	if got := TimeBucketStats(nil, nil, PeriodWeekly); len(got) != 0 {
		t.Errorf("expected no buckets, got %+v", got)
	}
}

func TestPartitionStats_FoldsAndSorts(t *testing.T) {
	week1 := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	week2 := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

	facts := []models.PartitionFact{
		{QueryID: "q1", StartTime: week1, Column: "Created_At", FilterType: models.FilterWhere, Count: 3},
		{QueryID: "q2", StartTime: week1, Column: "created_at", FilterType: models.FilterWhere, Count: 2},
		{QueryID: "q2", StartTime: week1, Column: "created_at", FilterType: models.FilterOrderBy, Count: 1},
		{QueryID: "q3", StartTime: week1, Column: "cust_id", FilterType: models.FilterJoin, Count: 4},
		{QueryID: "q4", StartTime: week2, Column: "region", FilterType: models.FilterGroupBy, Count: 1},
		// Skipped rows.
		{QueryID: "q5", StartTime: week1, Column: "", FilterType: models.FilterWhere, Count: 1},
		{QueryID: "q6", StartTime: week1, Column: "x", FilterType: "", Count: 1},
		{QueryID: "q7", StartTime: week1, Column: "x", FilterType: models.FilterWhere, Error: "syntax error"},
	}

	got := PartitionStats(facts, PeriodWeekly)
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %d: %+v", len(got), got)
	}

	b1 := got[0]
	if b1.BucketStart != "2024-03-04" {
		t.Errorf("unexpected first bucket key: %q", b1.BucketStart)
	}
	if len(b1.Columns) != 2 {
		t.Fatalf("expected 2 columns in first bucket, got %+v", b1.Columns)
	}
	// created_at sorts before cust_id; its filter types sort ORDER_BY < WHERE.
	created := b1.Columns[0]
	if created.Column != "created_at" {
		t.Fatalf("expected created_at first, got %q", created.Column)
	}
	if len(created.FilterTypes) != 2 ||
		created.FilterTypes[0] != (models.FilterTypeCount{FilterType: models.FilterOrderBy, TotalCount: 1}) ||
		created.FilterTypes[1] != (models.FilterTypeCount{FilterType: models.FilterWhere, TotalCount: 5}) {
		t.Errorf("unexpected created_at filter types: %+v", created.FilterTypes)
	}
	if b1.Columns[1].Column != "cust_id" {
		t.Errorf("expected cust_id second, got %+v", b1.Columns[1])
	}

	b2 := got[1]
	if b2.BucketStart != "2024-03-11" || len(b2.Columns) != 1 || b2.Columns[0].Column != "region" {
		t.Errorf("unexpected second bucket: %+v", b2)
	}
}

func TestFactsForTable_Filters(t *testing.T) {
	read := []models.ReadTableFact{
		{QueryID: "q1", Database: "PROD", Schema: "Sales", Table: "Orders"},
		{QueryID: "q2", Database: "prod", Schema: "sales", Table: "customers"},
		{QueryID: "q3", Error: "syntax error"},
	}
	got := ReadFactsForTable(read, "prod", "SALES", "orders")
	if len(got) != 1 || got[0].QueryID != "q1" {
		t.Errorf("expected only q1 to match case-insensitively, got %+v", got)
	}

	wide := []models.WideScanFact{
		{QueryID: "q1", Table: "orders"},
		{QueryID: "q2", Table: "orders", Error: "syntax error"},
	}
	if got := WideScanFactsForTable(wide, "", "", "orders"); len(got) != 1 {
		t.Errorf("expected error facts excluded, got %+v", got)
	}

	part := []models.PartitionFact{
		{QueryID: "q1", Table: "orders", Column: "id"},
		{QueryID: "q2", Table: "other", Column: "id"},
	}
	if got := PartitionFactsForTable(part, "", "", "orders"); len(got) != 1 {
		t.Errorf("expected only matching table, got %+v", got)
	}
}

func TestFindTableMetadata(t *testing.T) {
	tables := []models.TableMetadata{
		{Platform: "snowflake", Project: "acct1", Database: "PROD", Schema: "SALES", Table: "ORDERS", RowCount: 100},
		{Platform: "snowflake", Project: "acct1", Database: "PROD", Schema: "SALES", Table: "CUSTOMERS"},
	}

	md := FindTableMetadata(tables, "Snowflake", "ACCT1", "prod", "sales", "orders")
	if md == nil {
		t.Fatal("expected a case-insensitive match, got nil")
	}
	if md.RowCount != 100 {
		t.Errorf("matched the wrong record: %+v", md)
	}
	if FindTableMetadata(tables, "snowflake", "acct1", "prod", "sales", "missing") != nil {
		t.Error("expected nil for an unknown table")
	}
}

func TestTableStats_Summary(t *testing.T) {
	week1 := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	week2 := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

	read := []models.ReadTableFact{
		{QueryID: "q1", StartTime: week1, Table: "orders", Count: 2},
		{QueryID: "q2", StartTime: week2, Table: "orders", Count: 1},
	}
	wide := []models.WideScanFact{
		{QueryID: "q1", StartTime: week1, Table: "orders", Count: 1},
	}
	md := &models.TableMetadata{Platform: "snowflake", Table: "orders", RowCount: 5}

	stats := TableStats(PeriodWeekly, read, wide, nil, md)
	if stats.Period != "weekly" {
		t.Errorf("unexpected period: %q", stats.Period)
	}
	if stats.Summary.Periods != 2 || stats.Summary.TotalQueries != 3 || stats.Summary.TotalStarQueries != 1 {
		t.Errorf("unexpected summary: %+v", stats.Summary)
	}
	if stats.Metadata == nil || stats.Metadata.RowCount != 5 {
		t.Errorf("metadata not carried through: %+v", stats.Metadata)
	}
}
