// Package remediation turns a completed validation into a vendor-facing
// notification. Today that means a structured log line; a future
// implementation could send the same information over email instead.
package remediation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hudsci/epcis-engine/internal/epcis"
)

// SubmissionInfo is the subset of a submission a Notifier needs to
// compose its message. Kept separate from the submission package's own
// record type so remediation has no import-time dependency on it.
type SubmissionInfo struct {
	ID         string
	SupplierID string
	Filename   string
}

// Notifier alerts the submitting party about a validation outcome. Callers
// invoke it for rejected submissions; an implementation may still accept a
// valid report without complaint if asked to confirm one.
type Notifier interface {
	Notify(ctx context.Context, info SubmissionInfo, report epcis.ValidationReport) error
}

// LogNotifier composes a deterministic, templated summary of a
// validation report and writes it via zap. It never reaches out to an
// external system; it exists so the Notifier seam is exercised without
// standing up the email/LLM remediation agent.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier wraps logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, info SubmissionInfo, report epcis.ValidationReport) error {
	if report.Valid {
		n.logger.Info("submission accepted",
			zap.String("submission_id", info.ID),
			zap.String("supplier_id", info.SupplierID),
			zap.String("filename", info.Filename),
			zap.Int("event_count", report.EventCount),
		)
		return nil
	}

	summary := summarize(report)
	n.logger.Warn("submission rejected",
		zap.String("submission_id", info.ID),
		zap.String("supplier_id", info.SupplierID),
		zap.String("filename", info.Filename),
		zap.String("summary", summary),
	)
	return nil
}

// summarize renders a grouped-by-type, vendor-facing plain-text summary
// of a report's errors, mirroring the aggregator's own merged-error
// shape (type, count, message).
func summarize(report epcis.ValidationReport) string {
	byType := map[epcis.ErrType][]epcis.ValidationError{}
	var order []epcis.ErrType
	for _, e := range report.Errors {
		if _, seen := byType[e.Type]; !seen {
			order = append(order, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "%d issue(s) found across %d event(s):\n", len(report.Errors), report.EventCount)
	for _, t := range order {
		fmt.Fprintf(&b, "  [%s] %d finding(s)\n", t, len(byType[t]))
		for _, e := range byType[t] {
			line := "unknown line"
			if e.LineNumber != nil {
				line = fmt.Sprintf("line %d", *e.LineNumber)
			}
			fmt.Fprintf(&b, "    - (%s) %s\n", line, e.Message)
		}
	}
	return b.String()
}
