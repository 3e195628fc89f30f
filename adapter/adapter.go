// Package adapter defines the report delivery boundary.
//
// Adapters publish run completion notifications to downstream systems
// (grading queues, dashboards). The CLI owns adapter lifecycle; users
// provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/duelbench/duelbench/orchestrate"
)

// RunCompletedEvent is the payload published when a validation run
// finishes. It is a digest of the report, not the full evidence set;
// consumers fetch artifacts from the evidence path when they need them.
type RunCompletedEvent struct {
	EventType    string  `json:"event_type"` // always "run_completed"
	RunID        string  `json:"run_id"`
	Submission   string  `json:"submission"`
	Passed       bool    `json:"passed"`
	ChecksPassed int     `json:"checks_passed"`
	ChecksFailed int     `json:"checks_failed"`
	MatchOutcome string  `json:"match_outcome"`
	WinnerID     *string `json:"winner_id"`
	EvidencePath string  `json:"evidence_path,omitempty"`
	HarnessError string  `json:"harness_error,omitempty"`
	Timestamp    string  `json:"timestamp"` // ISO 8601
	DurationMs   int64   `json:"duration_ms"`
}

// NewRunCompletedEvent builds the delivery payload from a finished report.
func NewRunCompletedEvent(report *orchestrate.Report, evidencePath string) *RunCompletedEvent {
	ev := &RunCompletedEvent{
		EventType:    "run_completed",
		RunID:        report.RunID,
		Submission:   report.Submission,
		Passed:       report.Passed(),
		ChecksPassed: report.Summary.Pass,
		ChecksFailed: report.Summary.Fail,
		EvidencePath: evidencePath,
		HarnessError: report.HarnessError,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		DurationMs:   report.DurationMS,
	}
	if report.Match != nil {
		ev.MatchOutcome = string(report.Match.Outcome)
		ev.WinnerID = report.Match.WinnerID
	}
	return ev
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
