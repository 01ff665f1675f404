package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/pkg/models"
)

// RankedColumn is a partition-candidate column with its total reference count.
type RankedColumn struct {
	Column string
	Count  int
}

// RankColumns orders columns by descending count, breaking ties by column
// name ascending so rankings are deterministic.
func RankColumns(counts map[string]int) []RankedColumn {
	ranked := make([]RankedColumn, 0, len(counts))
	for col, count := range counts {
		ranked = append(ranked, RankedColumn{Column: col, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Column < ranked[j].Column
	})
	return ranked
}

// Strategy turns a ranked column list into platform-specific layout
// suggestions.
type Strategy interface {
	Recommend(table string, ranked []RankedColumn) []models.Suggestion
}

var (
	strategyMu sync.RWMutex
	strategies = make(map[string]Strategy)
)

// RegisterStrategy registers a platform strategy. Platform names are
// matched case-insensitively.
func RegisterStrategy(platform string, s Strategy) {
	strategyMu.Lock()
	defer strategyMu.Unlock()
	strategies[strings.ToLower(platform)] = s
}

// StrategyFor returns the strategy registered for a platform.
func StrategyFor(platform string) (Strategy, error) {
	strategyMu.RLock()
	defer strategyMu.RUnlock()
	s, ok := strategies[strings.ToLower(platform)]
	if !ok {
		return nil, qerrors.NewUnknownPlatform(platform, Platforms())
	}
	return s, nil
}

// Platforms returns the registered platform names, sorted.
func Platforms() []string {
	strategyMu.RLock()
	defer strategyMu.RUnlock()
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterStrategy("bigquery", bigQueryStrategy{})
	RegisterStrategy("snowflake", snowflakeStrategy{})
}

// bigQueryStrategy recommends partitioning on the most-filtered column and
// clustering on the next three.
type bigQueryStrategy struct{}

func (bigQueryStrategy) Recommend(table string, ranked []RankedColumn) []models.Suggestion {
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]
	out := []models.Suggestion{{
		Table:          table,
		Recommendation: fmt.Sprintf("PARTITION BY %s", top.Column),
		Reason:         fmt.Sprintf("%s is the most frequently filtered column (%d references)", top.Column, top.Count),
	}}

	var clusterCols []string
	for _, rc := range ranked[1:] {
		clusterCols = append(clusterCols, rc.Column)
		if len(clusterCols) == 3 {
			break
		}
	}
	if len(clusterCols) > 0 {
		out = append(out, models.Suggestion{
			Table:          table,
			Recommendation: fmt.Sprintf("CLUSTER BY %s", strings.Join(clusterCols, ", ")),
			Reason:         "frequently filtered alongside the partition column",
		})
	}
	return out
}

// snowflakeStrategy recommends a clustering key over the three
// most-filtered columns.
type snowflakeStrategy struct{}

func (snowflakeStrategy) Recommend(table string, ranked []RankedColumn) []models.Suggestion {
	if len(ranked) == 0 {
		return nil
	}
	var clusterCols []string
	for _, rc := range ranked {
		clusterCols = append(clusterCols, rc.Column)
		if len(clusterCols) == 3 {
			break
		}
	}
	return []models.Suggestion{{
		Table:          table,
		Recommendation: fmt.Sprintf("CLUSTER BY (%s)", strings.Join(clusterCols, ", ")),
		Reason:         "most frequently filtered columns in WHERE and JOIN clauses",
	}}
}
