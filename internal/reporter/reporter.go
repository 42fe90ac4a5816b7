// Package reporter renders reconciliation results for the CLI.
//
// Two output formats are supported: console, a human-readable tabular
// layout for terminal display, and JSON for programmatic consumption. The
// reporter is presentation only; it never mutates the results it renders.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"budget-reconciliation-service/internal/models"
	"budget-reconciliation-service/internal/reconciler"
)

// OutputFormat selects how a report is rendered.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
)

// IsValid checks if the output format is supported.
func (f OutputFormat) IsValid() bool {
	return f == FormatConsole || f == FormatJSON
}

// ParseOutputFormat converts a user-supplied format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s (expected console or json)", s)
	}
	return f, nil
}

// Reporter writes reconciliation results to an output stream.
type Reporter struct {
	out    io.Writer
	format OutputFormat
}

// NewReporter creates a reporter writing to out in the given format.
func NewReporter(out io.Writer, format OutputFormat) *Reporter {
	return &Reporter{out: out, format: format}
}

// WriteMatchRun renders the outcome of a matching run.
func (r *Reporter) WriteMatchRun(result *reconciler.MatchRunResult) error {
	if r.format == FormatJSON {
		return r.writeJSON(result)
	}

	fmt.Fprintf(r.out, "Matching run: %d match(es) found, %d auto-matched, %d high confidence\n\n",
		result.TotalMatchesFound, result.AutoMatchedCount, result.HighConfidenceCount)

	for _, txResult := range result.Results {
		switch {
		case txResult.NotFound:
			fmt.Fprintf(r.out, "  %s: transaction not found\n", txResult.TransactionID)
		case txResult.AlreadyLinked:
			fmt.Fprintf(r.out, "  %s: already reconciled\n", txResult.TransactionID)
		case txResult.Match == nil:
			fmt.Fprintf(r.out, "  %s: no match (%d candidate(s) considered)\n",
				txResult.TransactionID, len(txResult.Candidates))
		default:
			m := txResult.Match
			fmt.Fprintf(r.out, "  %s: %s -> %s on %s (confidence %.2f %s, offset %+dd, variance %s)\n",
				txResult.TransactionID, statusLabel(m.Status), m.RecurringTransactionID,
				m.RecurringInstanceDate.Format("2006-01-02"), m.ConfidenceScore,
				m.ConfidenceLevel(), m.DateOffsetDays, m.AmountVariance.StringFixed(2))
		}
	}
	return nil
}

// WritePendingMatches renders the matches awaiting review.
func (r *Reporter) WritePendingMatches(pending []models.ReconciliationMatch) error {
	if r.format == FormatJSON {
		return r.writeJSON(struct {
			Pending []models.ReconciliationMatch `json:"pending"`
		}{Pending: pending})
	}

	if len(pending) == 0 {
		fmt.Fprintln(r.out, "No matches awaiting review.")
		return nil
	}

	fmt.Fprintf(r.out, "%d match(es) awaiting review:\n\n", len(pending))
	fmt.Fprintf(r.out, "  %-36s  %-12s  %-20s  %-10s  %s\n", "MATCH ID", "INSTANCE", "RECURRING", "CONFIDENCE", "TRANSACTION")
	for _, m := range pending {
		fmt.Fprintf(r.out, "  %-36s  %-12s  %-20s  %-10.2f  %s\n",
			m.ID, m.RecurringInstanceDate.Format("2006-01-02"),
			truncate(m.RecurringTransactionID, 20), m.ConfidenceScore, m.TransactionID)
	}
	return nil
}

// WriteStatus renders a monthly reconciliation status report.
func (r *Reporter) WriteStatus(report *reconciler.StatusReport) error {
	if r.format == FormatJSON {
		return r.writeJSON(report)
	}

	fmt.Fprintf(r.out, "Reconciliation status for %04d-%02d\n", report.Year, int(report.Month))
	fmt.Fprintf(r.out, "  expected: %d  matched: %d  pending: %d  missing: %d  skipped: %d\n\n",
		report.TotalExpected, report.Matched, report.Pending, report.Missing, report.Skipped)

	fmt.Fprintf(r.out, "  %-12s  %-24s  %10s  %-8s  %s\n", "DATE", "DESCRIPTION", "EXPECTED", "STATUS", "TRANSACTION")
	for _, line := range report.Instances {
		tx := line.TransactionID
		if tx == "" {
			tx = "-"
		}
		fmt.Fprintf(r.out, "  %-12s  %-24s  %10s  %-8s  %s\n",
			line.InstanceDate.Format("2006-01-02"), truncate(line.Description, 24),
			line.ExpectedAmount.StringFixed(2), line.Status, tx)
	}
	return nil
}

// WriteBulkAccept renders the outcome of a bulk acceptance.
func (r *Reporter) WriteBulkAccept(result *reconciler.BulkAcceptResult) error {
	if r.format == FormatJSON {
		return r.writeJSON(result)
	}

	fmt.Fprintf(r.out, "Accepted %d match(es).\n", result.AcceptedCount)
	for _, skipped := range result.Skipped {
		fmt.Fprintf(r.out, "  skipped %s: %s\n", skipped.MatchID, skipped.Reason)
	}
	return nil
}

// WriteMatch renders a single match decision.
func (r *Reporter) WriteMatch(match *models.ReconciliationMatch) error {
	if r.format == FormatJSON {
		return r.writeJSON(match)
	}

	fmt.Fprintf(r.out, "%s: %s -> %s on %s (confidence %.2f)\n",
		statusLabel(match.Status), match.TransactionID, match.RecurringTransactionID,
		match.RecurringInstanceDate.Format("2006-01-02"), match.ConfidenceScore)
	return nil
}

func (r *Reporter) writeJSON(v interface{}) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func statusLabel(status models.MatchStatus) string {
	switch status {
	case models.StatusSuggested:
		return "suggested"
	case models.StatusAutoMatched:
		return "auto-matched"
	case models.StatusAccepted:
		return "accepted"
	case models.StatusRejected:
		return "rejected"
	}
	return strings.ToLower(string(status))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
