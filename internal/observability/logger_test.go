package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEntryValidate(t *testing.T) {
	cases := []struct {
		name    string
		entry   Entry
		wantErr bool
	}{
		{"valid", Entry{Operation: "advise", Platform: "snowflake"}, false},
		{"missing operation", Entry{Platform: "snowflake"}, true},
		{"missing platform", Entry{Operation: "advise"}, true},
		{"negative duration", Entry{Operation: "advise", Platform: "snowflake", Duration: -time.Second}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestJSONLogger_WritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf)

	err := logger.LogEvent(context.Background(), Entry{
		Operation:   "find_read_table_facts",
		Platform:    "snowflake",
		Project:     "acct1",
		Records:     12,
		ParseErrors: 2,
		Duration:    1500 * time.Millisecond,
		Outcome:     "success",
	})
	if err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.Bytes()
	if line[len(line)-1] != '\n' {
		t.Error("expected newline-terminated output")
	}
	var out map[string]any
	if err := json.Unmarshal(line, &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out["operation"] != "find_read_table_facts" || out["platform"] != "snowflake" {
		t.Errorf("unexpected fields: %v", out)
	}
	if out["records"] != float64(12) || out["parse_errors"] != float64(2) {
		t.Errorf("counts not recorded: %v", out)
	}
	if out["duration_ms"] != float64(1500) {
		t.Errorf("duration not in milliseconds: %v", out["duration_ms"])
	}
	if out["level"] != "info" {
		t.Errorf("expected info level, got %v", out["level"])
	}
}

func TestJSONLogger_ErrorEntriesAreErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf)

	err := logger.LogEvent(context.Background(), Entry{
		Operation: "advise",
		Platform:  "snowflake",
		Outcome:   "weekly_tier_failed",
		Error:     "generator: model overloaded",
	})
	if err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out["level"] != "error" {
		t.Errorf("expected error level, got %v", out["level"])
	}
}

func TestJSONLogger_RejectsInvalidEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf)

	if err := logger.LogEvent(context.Background(), Entry{Platform: "snowflake"}); err == nil {
		t.Error("expected validation error")
	}
	if buf.Len() != 0 {
		t.Error("invalid entries must not be written")
	}
}

func TestJSONLogger_Summary(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf)
	ctx := context.Background()

	entries := []Entry{
		{Operation: "find_read_table_facts", Platform: "snowflake", Records: 10, Outcome: "success"},
		{Operation: "find_read_table_facts", Platform: "snowflake", Records: 5, Outcome: "success"},
		{Operation: "advise", Platform: "snowflake", Outcome: "error", Error: "boom"},
	}
	for _, e := range entries {
		if err := logger.LogEvent(ctx, e); err != nil {
			t.Fatalf("LogEvent failed: %v", err)
		}
	}

	summary := logger.Summary()
	if summary.SucceededCount != 2 || summary.FailedCount != 1 {
		t.Errorf("unexpected counts: %+v", summary)
	}
	if len(summary.ByOperation) != 2 {
		t.Fatalf("expected 2 operations, got %+v", summary.ByOperation)
	}
	// Sorted by operation name.
	if summary.ByOperation[0].Operation != "advise" {
		t.Errorf("expected sorted operations, got %+v", summary.ByOperation)
	}
	if summary.ByOperation[1].Events != 2 || summary.ByOperation[1].Records != 15 {
		t.Errorf("per-operation tally wrong: %+v", summary.ByOperation[1])
	}
}

func TestJSONLogger_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	logger := NewJSONLogger(&buf)
	if err := logger.LogEvent(ctx, Entry{Operation: "advise", Platform: "snowflake"}); err == nil {
		t.Error("expected context error")
	}
}

func TestNoopLogger(t *testing.T) {
	logger := NewNoopLogger()
	if err := logger.LogEvent(context.Background(), Entry{}); err != nil {
		t.Errorf("noop logger must accept anything: %v", err)
	}
	summary := logger.Summary()
	if summary == nil || summary.SucceededCount != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}
