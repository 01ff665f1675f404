package advisor

import (
	"context"
	"time"

	"github.com/querylens-labs/querylens/internal/aggregate"
	"github.com/querylens-labs/querylens/internal/anonymize"
	qerrors "github.com/querylens-labs/querylens/internal/errors"
	"github.com/querylens-labs/querylens/internal/observability"
	"github.com/querylens-labs/querylens/pkg/models"
)

// Scope identifies the table an advisory covers and the warehouse the
// recommendations should target.
type Scope struct {
	Platform        string
	Project         string
	Database        string
	Schema          string
	Table           string
	TargetWarehouse string
}

// Advisory is the restored generator response plus the token mapping
// used for the successful tier.
type Advisory struct {
	Text       string
	Tier       string
	ReverseMap map[string]string
}

// Advisor runs the two-tier advisory exchange.
type Advisor struct {
	generator Generator
	logger    observability.Logger
	sleep     func(context.Context, time.Duration) error
}

// New creates an Advisor. Logger may be nil.
func New(gen Generator, logger observability.Logger) *Advisor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Advisor{
		generator: gen,
		logger:    logger,
		sleep:     ctxSleep,
	}
}

// anonymizeInput tokenizes a statistics bundle and the surrounding scope,
// returning the prompt input and the mapping that restores it. The target
// warehouse names the system the advice is for and is not sensitive, so it
// passes through untouched.
func anonymizeInput(scope Scope, stats models.TableStats, period aggregate.Period) (PromptInput, *anonymize.Map) {
	m := anonymize.BuildMap(stats, scope.Platform, scope.Project, scope.Database, scope.Schema, scope.Table)
	anon := stats
	anon.PartitionStats = anonymize.AnonymizePartitionStats(stats.PartitionStats, m)
	anon.Metadata = anonymize.AnonymizeMetadata(stats.Metadata, m)
	return PromptInput{
		Table:           m.TokenFor(anonymize.ClassTable, scope.Table),
		Database:        m.TokenFor(anonymize.ClassDatabase, scope.Database),
		Schema:          m.TokenFor(anonymize.ClassSchema, scope.Schema),
		Platform:        m.TokenFor(anonymize.ClassPlatform, scope.Platform),
		Project:         m.TokenFor(anonymize.ClassProject, scope.Project),
		TargetWarehouse: scope.TargetWarehouse,
		Stats:           anon,
		Period:          period,
	}, m
}

// truncateForFallback reduces a monthly bundle to its two most recent time
// buckets and two most recent partition buckets so the fallback prompt is
// substantially smaller than the one that failed.
func truncateForFallback(stats models.TableStats) models.TableStats {
	out := stats
	if len(out.TimeStats) > 2 {
		out.TimeStats = out.TimeStats[len(out.TimeStats)-2:]
	}
	if len(out.PartitionStats) > 2 {
		out.PartitionStats = out.PartitionStats[len(out.PartitionStats)-2:]
	}
	out.Summary.Periods = len(out.TimeStats)
	out.Summary.TotalQueries = 0
	out.Summary.TotalStarQueries = 0
	for _, t := range out.TimeStats {
		out.Summary.TotalQueries += t.TotalQueries
		out.Summary.TotalStarQueries += t.StarQueries
	}
	return out
}

// Advise builds the weekly prompt, calls the generator with retry, and on
// failure retries once more at monthly granularity with truncated
// statistics. Identifiers in the winning response are restored before it is
// returned; the reverse map reflects the tier that succeeded.
func (a *Advisor) Advise(ctx context.Context, scope Scope, weekly, monthly models.TableStats) (*Advisory, error) {
	if scope.Table == "" {
		return nil, qerrors.NewMissingIdentifier("table")
	}
	began := time.Now()

	input, mapping := anonymizeInput(scope, weekly, aggregate.PeriodWeekly)
	tier := "weekly"
	text, err := generateWithRetry(ctx, a.generator, BuildPrompt(input), a.sleep)
	if err != nil {
		a.logger.LogEvent(ctx, observability.Entry{
			Operation: "advise",
			Platform:  scope.Platform,
			Project:   scope.Project,
			Table:     scope.Table,
			Duration:  time.Since(began),
			Outcome:   "error",
			Error:     err.Error(),
		})

		input, mapping = anonymizeInput(scope, truncateForFallback(monthly), aggregate.PeriodMonthly)
		tier = "monthly"
		text, err = generateWithRetry(ctx, a.generator, BuildPrompt(input), a.sleep)
		if err != nil {
			return nil, qerrors.NewAdvisoryFailed(tier, err)
		}
	}

	outcome := "success"
	if tier == "monthly" {
		outcome = "degraded"
	}
	reverse := mapping.Reverse()
	a.logger.LogEvent(ctx, observability.Entry{
		Operation: "advise",
		Platform:  scope.Platform,
		Project:   scope.Project,
		Table:     scope.Table,
		Records:   mapping.Len(),
		Duration:  time.Since(began),
		Outcome:   outcome,
	})
	return &Advisory{
		Text:       anonymize.Restore(text, reverse),
		Tier:       tier,
		ReverseMap: reverse,
	}, nil
}
