// Package observability provides structured logging for the querylens pipeline.
//
// Every pipeline operation emits: operation name, platform, project, record
// counts, parse-error counts, duration, and error (if any). Statement-level
// parse failures are counted, never silently dropped.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Entry contains the required fields for one pipeline operation event.
type Entry struct {
	// Operation names the pipeline step, e.g. "read_table_facts" or "advise".
	// Required.
	Operation string

	// Platform is the source platform tag. Required.
	Platform string

	// Project is the source project. May be empty for cross-project operations.
	Project string

	// Table is the target table for table-scoped operations.
	Table string

	// Records is the number of records produced or persisted.
	Records int

	// ParseErrors is the number of statements recorded as error facts.
	ParseErrors int

	// Duration is how long the operation took. Must be non-negative.
	Duration time.Duration

	// Outcome is "success", "degraded" (fallback tier used), or "error".
	Outcome string

	// Error contains the error message if the operation failed.
	Error string
}

// Validate checks that all required fields are present.
func (e *Entry) Validate() error {
	if e.Operation == "" {
		return fmt.Errorf("observability: operation is required")
	}
	if e.Platform == "" {
		return fmt.Errorf("observability: platform is required")
	}
	if e.Duration < 0 {
		return fmt.Errorf("observability: duration cannot be negative")
	}
	return nil
}

// Logger is the interface for pipeline event logging.
type Logger interface {
	// LogEvent logs one pipeline operation event.
	// Returns an error if logging fails or the entry is invalid.
	LogEvent(ctx context.Context, entry Entry) error

	// Summary returns aggregated operation statistics.
	Summary() *OperationSummary
}

// OperationSummary represents aggregated pipeline statistics.
type OperationSummary struct {
	SucceededCount int                  `json:"succeeded_count"`
	FailedCount    int                  `json:"failed_count"`
	ByOperation    []OperationCountStat `json:"by_operation"`
}

// OperationCountStat is the per-operation event and record tally.
type OperationCountStat struct {
	Operation string `json:"operation"`
	Events    int    `json:"events"`
	Records   int    `json:"records"`
}

// jsonLogOutput is the structured format for JSON logs.
type jsonLogOutput struct {
	Timestamp   string `json:"timestamp"`
	Level       string `json:"level"`
	Operation   string `json:"operation"`
	Platform    string `json:"platform"`
	Project     string `json:"project,omitempty"`
	Table       string `json:"table,omitempty"`
	Records     int    `json:"records"`
	ParseErrors int    `json:"parse_errors,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Outcome     string `json:"outcome,omitempty"`
	Error       string `json:"error,omitempty"`
}

// JSONLogger implements Logger with JSON line output.
type JSONLogger struct {
	writer  io.Writer
	entries []Entry
	mu      sync.RWMutex
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{
		writer:  w,
		entries: make([]Entry, 0),
	}
}

// LogEvent logs a pipeline event as one JSON line.
func (l *JSONLogger) LogEvent(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("observability: context error: %w", err)
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	level := "info"
	if entry.Error != "" {
		level = "error"
	}

	output := jsonLogOutput{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Level:       level,
		Operation:   entry.Operation,
		Platform:    entry.Platform,
		Project:     entry.Project,
		Table:       entry.Table,
		Records:     entry.Records,
		ParseErrors: entry.ParseErrors,
		DurationMs:  entry.Duration.Milliseconds(),
		Outcome:     entry.Outcome,
		Error:       entry.Error,
	}

	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("observability: failed to marshal log: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("observability: failed to write log: %w", err)
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	return nil
}

// Summary returns aggregated statistics over everything logged so far.
func (l *JSONLogger) Summary() *OperationSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := &OperationSummary{
		ByOperation: []OperationCountStat{},
	}

	events := make(map[string]int)
	records := make(map[string]int)
	for _, entry := range l.entries {
		if entry.Error == "" {
			summary.SucceededCount++
		} else {
			summary.FailedCount++
		}
		events[entry.Operation]++
		records[entry.Operation] += entry.Records
	}

	for op, count := range events {
		summary.ByOperation = append(summary.ByOperation, OperationCountStat{
			Operation: op,
			Events:    count,
			Records:   records[op],
		})
	}
	sort.Slice(summary.ByOperation, func(i, j int) bool {
		return summary.ByOperation[i].Operation < summary.ByOperation[j].Operation
	})

	return summary
}

// NoopLogger is a logger that discards all events.
// Useful for testing or when logging is disabled.
type NoopLogger struct{}

// NewNoopLogger creates a new no-op logger.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// LogEvent does nothing and always succeeds.
func (l *NoopLogger) LogEvent(ctx context.Context, entry Entry) error {
	return nil
}

// Summary returns an empty summary for the no-op logger.
func (l *NoopLogger) Summary() *OperationSummary {
	return &OperationSummary{ByOperation: []OperationCountStat{}}
}
