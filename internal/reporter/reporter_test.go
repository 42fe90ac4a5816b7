package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/internal/reconciler"
)

func sampleMatch() models.ReconciliationMatch {
	return models.NewReconciliationMatch("tx-1", "rec-netflix",
		time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 0.91, decimal.Zero, 1)
}

func TestParseOutputFormat(t *testing.T) {
	for _, valid := range []string{"console", "JSON", " json "} {
		if _, err := ParseOutputFormat(valid); err != nil {
			t.Errorf("ParseOutputFormat(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestWriteMatchRunConsole(t *testing.T) {
	match := sampleMatch()
	result := &reconciler.MatchRunResult{
		Results: []reconciler.TransactionMatchResult{
			{TransactionID: "tx-1", Match: &match},
			{TransactionID: "tx-2", NotFound: true},
			{TransactionID: "tx-3"},
		},
		TotalMatchesFound:   1,
		HighConfidenceCount: 1,
	}

	var buf bytes.Buffer
	if err := NewReporter(&buf, FormatConsole).WriteMatchRun(result); err != nil {
		t.Fatalf("WriteMatchRun() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"1 match(es) found", "rec-netflix", "transaction not found", "no match"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteMatchRunJSON(t *testing.T) {
	match := sampleMatch()
	result := &reconciler.MatchRunResult{
		Results:           []reconciler.TransactionMatchResult{{TransactionID: "tx-1", Match: &match}},
		TotalMatchesFound: 1,
	}

	var buf bytes.Buffer
	if err := NewReporter(&buf, FormatJSON).WriteMatchRun(result); err != nil {
		t.Fatalf("WriteMatchRun() error = %v", err)
	}

	var decoded reconciler.MatchRunResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.TotalMatchesFound != 1 {
		t.Errorf("TotalMatchesFound = %d, want 1", decoded.TotalMatchesFound)
	}
}

func TestWritePendingMatchesConsole(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, FormatConsole)

	if err := r.WritePendingMatches(nil); err != nil {
		t.Fatalf("WritePendingMatches() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No matches awaiting review") {
		t.Errorf("empty list output = %q", buf.String())
	}

	buf.Reset()
	if err := r.WritePendingMatches([]models.ReconciliationMatch{sampleMatch()}); err != nil {
		t.Fatalf("WritePendingMatches() error = %v", err)
	}
	if !strings.Contains(buf.String(), "rec-netflix") {
		t.Errorf("output missing match row:\n%s", buf.String())
	}
}

func TestWriteStatusConsole(t *testing.T) {
	report := &reconciler.StatusReport{
		Year:          2026,
		Month:         time.January,
		TotalExpected: 2,
		Matched:       1,
		Missing:       1,
		Instances: []reconciler.InstanceStatusReport{
			{
				RecurringTransactionID: "rec-netflix",
				Description:            "Netflix",
				InstanceDate:           time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
				ExpectedAmount:         decimal.RequireFromString("-15.99"),
				Currency:               "USD",
				Status:                 reconciler.InstanceMatched,
				TransactionID:          "tx-1",
			},
			{
				RecurringTransactionID: "rec-rent",
				Description:            "Rent",
				InstanceDate:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
				ExpectedAmount:         decimal.RequireFromString("-900.00"),
				Currency:               "USD",
				Status:                 reconciler.InstanceMissing,
			},
		},
	}

	var buf bytes.Buffer
	if err := NewReporter(&buf, FormatConsole).WriteStatus(report); err != nil {
		t.Fatalf("WriteStatus() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"2026-01", "matched: 1", "missing: 1", "Netflix", "MISSING"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a very long description", 10); got != "a very ..." {
		t.Errorf("truncate() = %q", got)
	}
}
