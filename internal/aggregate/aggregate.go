// Package aggregate folds fact streams into sparse time-bucketed statistics.
// Weekly buckets start on Monday and are keyed YYYY-MM-DD; monthly buckets
// are keyed YYYY-MM. Buckets with no activity are omitted.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/querylens-labs/querylens/pkg/models"
)

// Period selects the aggregation granularity.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// BucketStart formats the bucket key a timestamp falls into.
func (p Period) BucketStart(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		// Back up to Monday. Weekday is Sunday-based, so shift by six.
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	}
}

// TimeBucketStats folds read-table and wide-scan facts into per-bucket query
// counts. Facts with no timestamp or carrying a parse error are skipped. A
// fact count of zero is treated as one read, matching sources that only
// record presence.
func TimeBucketStats(read []models.ReadTableFact, wide []models.WideScanFact, period Period) []models.TimeBucketStat {
	type bucket struct {
		total int
		stars int
	}
	buckets := make(map[string]*bucket)

	get := func(key string) *bucket {
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		return b
	}

	for _, f := range read {
		if f.StartTime.IsZero() || f.Error != "" {
			continue
		}
		count := f.Count
		if count == 0 {
			count = 1
		}
		get(period.BucketStart(f.StartTime)).total += count
	}
	for _, f := range wide {
		if f.StartTime.IsZero() || f.Error != "" {
			continue
		}
		count := f.Count
		if count == 0 {
			count = 1
		}
		get(period.BucketStart(f.StartTime)).stars += count
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]models.TimeBucketStat, 0, len(keys))
	for _, key := range keys {
		b := buckets[key]
		out = append(out, models.TimeBucketStat{
			BucketStart:  key,
			TotalQueries: b.total,
			StarQueries:  b.stars,
		})
	}
	return out
}

// PartitionStats folds partition-candidate facts into per-bucket
// column/filter-type totals. Facts missing a timestamp, column, or filter
// type, or carrying a parse error, are skipped. Counts are summed as stored;
// a zero count contributes nothing.
func PartitionStats(facts []models.PartitionFact, period Period) []models.PartitionBucketStat {
	buckets := make(map[string]map[string]map[string]int)
	for _, f := range facts {
		if f.StartTime.IsZero() || f.Column == "" || f.FilterType == "" || f.Error != "" {
			continue
		}
		key := period.BucketStart(f.StartTime)
		cols, ok := buckets[key]
		if !ok {
			cols = make(map[string]map[string]int)
			buckets[key] = cols
		}
		column := strings.ToLower(f.Column)
		types, ok := cols[column]
		if !ok {
			types = make(map[string]int)
			cols[column] = types
		}
		types[f.FilterType] += f.Count
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]models.PartitionBucketStat, 0, len(keys))
	for _, key := range keys {
		cols := buckets[key]
		colNames := make([]string, 0, len(cols))
		for name := range cols {
			colNames = append(colNames, name)
		}
		sort.Strings(colNames)

		stat := models.PartitionBucketStat{BucketStart: key}
		for _, name := range colNames {
			types := cols[name]
			typeNames := make([]string, 0, len(types))
			for t := range types {
				typeNames = append(typeNames, t)
			}
			sort.Strings(typeNames)

			colStat := models.ColumnStat{Column: name}
			for _, t := range typeNames {
				colStat.FilterTypes = append(colStat.FilterTypes, models.FilterTypeCount{
					FilterType: t,
					TotalCount: types[t],
				})
			}
			stat.Columns = append(stat.Columns, colStat)
		}
		out = append(out, stat)
	}
	return out
}

// ReadFactsForTable filters facts to one table, matching database, schema,
// and table case-insensitively. Error facts never match.
func ReadFactsForTable(facts []models.ReadTableFact, database, schema, table string) []models.ReadTableFact {
	var out []models.ReadTableFact
	for _, f := range facts {
		if f.Error == "" && strings.EqualFold(f.Database, database) &&
			strings.EqualFold(f.Schema, schema) && strings.EqualFold(f.Table, table) {
			out = append(out, f)
		}
	}
	return out
}

// WideScanFactsForTable filters wide-scan facts to one table.
func WideScanFactsForTable(facts []models.WideScanFact, database, schema, table string) []models.WideScanFact {
	var out []models.WideScanFact
	for _, f := range facts {
		if f.Error == "" && strings.EqualFold(f.Database, database) &&
			strings.EqualFold(f.Schema, schema) && strings.EqualFold(f.Table, table) {
			out = append(out, f)
		}
	}
	return out
}

// PartitionFactsForTable filters partition facts to one table.
func PartitionFactsForTable(facts []models.PartitionFact, database, schema, table string) []models.PartitionFact {
	var out []models.PartitionFact
	for _, f := range facts {
		if f.Error == "" && strings.EqualFold(f.Database, database) &&
			strings.EqualFold(f.Schema, schema) && strings.EqualFold(f.Table, table) {
			out = append(out, f)
		}
	}
	return out
}

// FindTableMetadata returns the first metadata record matching all five
// identifying fields case-insensitively, or nil when none matches.
func FindTableMetadata(tables []models.TableMetadata, platform, project, database, schema, table string) *models.TableMetadata {
	for i := range tables {
		t := &tables[i]
		if strings.EqualFold(t.Platform, platform) &&
			strings.EqualFold(t.Project, project) &&
			strings.EqualFold(t.Database, database) &&
			strings.EqualFold(t.Schema, schema) &&
			strings.EqualFold(t.Table, table) {
			return t
		}
	}
	return nil
}

// TableStats bundles the time-bucket and partition statistics for one table
// with its resolved metadata and a summary.
func TableStats(period Period, read []models.ReadTableFact, wide []models.WideScanFact, partition []models.PartitionFact, metadata *models.TableMetadata) models.TableStats {
	timeStats := TimeBucketStats(read, wide, period)
	stats := models.TableStats{
		Period:         string(period),
		TimeStats:      timeStats,
		PartitionStats: PartitionStats(partition, period),
		Metadata:       metadata,
	}
	stats.Summary.Periods = len(timeStats)
	for _, s := range timeStats {
		stats.Summary.TotalQueries += s.TotalQueries
		stats.Summary.TotalStarQueries += s.StarQueries
	}
	return stats
}
