package advisor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/querylens-labs/querylens/internal/aggregate"
	"github.com/querylens-labs/querylens/pkg/models"
)

// PromptInput carries the already-anonymized identifiers and statistics a
// prompt is built from. Callers must tokenize every identifier before
// constructing the input; BuildPrompt embeds them verbatim.
type PromptInput struct {
	Table           string
	Database        string
	Schema          string
	Platform        string
	Project         string
	TargetWarehouse string
	Stats           models.TableStats
	Period          aggregate.Period
}

type filterTotal struct {
	column     string
	filterType string
	total      int
}

// topFilters flattens the partition buckets into (column, filter type)
// totals and returns the five largest.
func topFilters(buckets []models.PartitionBucketStat) []filterTotal {
	totals := make(map[[2]string]int)
	for _, bucket := range buckets {
		for _, col := range bucket.Columns {
			for _, ft := range col.FilterTypes {
				totals[[2]string{col.Column, ft.FilterType}] += ft.TotalCount
			}
		}
	}
	out := make([]filterTotal, 0, len(totals))
	for key, total := range totals {
		out = append(out, filterTotal{column: key[0], filterType: key[1], total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].total != out[j].total {
			return out[i].total > out[j].total
		}
		if out[i].column != out[j].column {
			return out[i].column < out[j].column
		}
		return out[i].filterType < out[j].filterType
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// BuildPrompt renders the advisory prompt: usage summary, time-bucket
// patterns, top filter candidates, and the requested output format. Recent
// activity weighs the last four weeks or last two months depending on the
// period.
func BuildPrompt(in PromptInput) string {
	periodLabel := "Week"
	recentCount := 4
	if in.Period == aggregate.PeriodMonthly {
		periodLabel = "Month"
		recentCount = 2
	}
	periodPlural := periodLabel + "s"
	periodLower := strings.ToLower(periodLabel)
	periodPluralLower := strings.ToLower(periodPlural)

	timeStats := in.Stats.TimeStats
	totalPeriods := len(timeStats)
	totalQueries := 0
	totalStar := 0
	for _, t := range timeStats {
		totalQueries += t.TotalQueries
		totalStar += t.StarQueries
	}

	recent := timeStats
	if len(recent) > recentCount {
		recent = recent[len(recent)-recentCount:]
	}
	recentQueries := 0
	for _, t := range recent {
		recentQueries += t.TotalQueries
	}

	target := in.TargetWarehouse
	if target == "" {
		target = "Generic"
	}
	qualifiedTable := in.Table
	if in.Database != "" && in.Schema != "" {
		qualifiedTable = in.Database + "." + in.Schema + "." + in.Table
	}

	var tableInfo string
	if meta := in.Stats.Metadata; meta != nil {
		sizeStr := "Unknown"
		if meta.SizeBytes > 0 {
			sizeStr = fmt.Sprintf("%.2f MB", float64(meta.SizeBytes)/1024/1024)
		}
		rowStr := "Unknown"
		if meta.RowCount > 0 {
			rowStr = fmt.Sprintf("%d rows", meta.RowCount)
		}
		colList := "Unknown"
		if len(meta.Columns) > 0 {
			parts := make([]string, len(meta.Columns))
			for i, c := range meta.Columns {
				colType := c.Type
				if colType == "" {
					colType = "unknown"
				}
				parts[i] = fmt.Sprintf("%s (%s)", c.Name, colType)
			}
			colList = strings.Join(parts, ", ")
		}
		tableInfo = fmt.Sprintf("TABLE METADATA:\n- Size: %s\n- Row Count: %s\n- Columns (%d total): %s\n",
			sizeStr, rowStr, len(meta.Columns), colList)
	}

	filterLines := []string{"  - No significant filter patterns detected"}
	if filters := topFilters(in.Stats.PartitionStats); len(filters) > 0 {
		filterLines = filterLines[:0]
		for _, f := range filters {
			filterLines = append(filterLines, fmt.Sprintf("  - %s: %s (%d uses)", f.column, f.filterType, f.total))
		}
	}

	pct := func(part, whole int) float64 {
		if whole == 0 {
			return 0
		}
		return 100 * float64(part) / float64(whole)
	}
	avg := 0.0
	if totalPeriods > 0 {
		avg = float64(totalQueries) / float64(totalPeriods)
	}
	sample := "SUFFICIENT"
	if totalQueries < 50 {
		sample = fmt.Sprintf("LOW (%d queries)", totalQueries)
	}

	timeJSON, _ := json.MarshalIndent(timeStats, "", "  ")
	partitionJSON, _ := json.MarshalIndent(in.Stats.PartitionStats, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "You are a data warehouse optimization expert. Analyze query patterns and suggest practical optimizations for %s.\n\n", target)
	fmt.Fprintf(&b, "KEY RULES:\n")
	fmt.Fprintf(&b, "- Prioritize recent %s (last %d) over older data\n", periodPluralLower, recentCount)
	fmt.Fprintf(&b, "- Consider sample size: <50 queries total or <10/%s = insufficient for strong conclusions\n", periodLower)
	fmt.Fprintf(&b, "- Skip optimizations for small tables or marginal benefits\n")
	fmt.Fprintf(&b, "- Warn if SELECT * is common (>20%% AND >50 total SELECT * queries)\n")
	fmt.Fprintf(&b, "- Focus on %s-specific features when target is specified\n", target)
	fmt.Fprintf(&b, "- NO SQL/DDL code - only conceptual recommendations\n\n")
	fmt.Fprintf(&b, "DATA\n\n")
	fmt.Fprintf(&b, "TARGET: %s\n", target)
	fmt.Fprintf(&b, "TABLE: %s\n", qualifiedTable)
	fmt.Fprintf(&b, "Source: %s / %s\n", in.Platform, in.Project)
	b.WriteString(tableInfo)
	fmt.Fprintf(&b, "\nUSAGE SUMMARY:\n")
	fmt.Fprintf(&b, "- Period: %d %s\n", totalPeriods, periodPluralLower)
	fmt.Fprintf(&b, "- Queries: %d total, %d SELECT * (%.1f%%)\n", totalQueries, totalStar, pct(totalStar, totalQueries))
	fmt.Fprintf(&b, "  Sample: %s\n", sample)
	fmt.Fprintf(&b, "- Recent (%d %s): %d queries (%.1f%%)\n", recentCount, periodPluralLower, recentQueries, pct(recentQueries, totalQueries))
	fmt.Fprintf(&b, "- Avg: %.1f queries/%s\n\n", avg, periodLower)
	fmt.Fprintf(&b, "%s PATTERNS (prioritize recent):\n%s\n\n", strings.ToUpper(periodPlural), timeJSON)
	fmt.Fprintf(&b, "TOP FILTERS (partition/cluster candidates):\n%s\n\n", strings.Join(filterLines, "\n"))
	fmt.Fprintf(&b, "FULL FILTER STATS:\n%s\n\n", partitionJSON)
	fmt.Fprintf(&b, "OUTPUT FORMAT:\n\n")
	fmt.Fprintf(&b, "**Summary**\n")
	fmt.Fprintf(&b, "System: %s\n", target)
	fmt.Fprintf(&b, "Table: %s\n", qualifiedTable)
	fmt.Fprintf(&b, "Size: [from TABLE METADATA above]\n")
	fmt.Fprintf(&b, "Query Focus: [main patterns from recent %s]\n\n", periodPluralLower)
	fmt.Fprintf(&b, "**Recommendations**\n")
	fmt.Fprintf(&b, "| Area | Suggestion | Why |\n")
	fmt.Fprintf(&b, "|------|-----------|-----|\n")
	fmt.Fprintf(&b, "| [Type] | [Recommendation] | [Reason] |\n\n")
	fmt.Fprintf(&b, "Relevant areas: Clustering, Partitioning, Sorting, Query Patterns, Caching, Materialized Views, Statistics, Storage Format\n")
	return b.String()
}
