package orchestrate

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/types"
)

// Exit codes for the run as a whole.
const (
	// ExitPass means every check passed.
	ExitPass = 0
	// ExitCheckFailed means the run completed but at least one check
	// failed.
	ExitCheckFailed = 1
	// ExitHarnessError means the harness itself crashed.
	ExitHarnessError = 2
)

// Summary tallies the recorded verdicts.
type Summary struct {
	Pass int `json:"pass"`
	Fail int `json:"fail"`
}

// Report is the machine-readable outcome of one validation run.
type Report struct {
	Tool         string              `json:"tool"`
	RunID        string              `json:"run_id"`
	Submission   string              `json:"submission"`
	Summary      Summary             `json:"summary"`
	Match        *types.MatchResult  `json:"match_result"`
	Results      []types.CheckResult `json:"results"`
	DurationMS   int64               `json:"duration_ms"`
	HarnessError string              `json:"harness_error,omitempty"`
	Metrics      *metrics.Snapshot   `json:"metrics,omitempty"`
}

// Passed reports whether every check passed and the harness stayed up.
func (r *Report) Passed() bool {
	return r.HarnessError == "" && r.Summary.Fail == 0
}

// ExitCode maps the report onto the process exit code.
func (r *Report) ExitCode() int {
	if r.HarnessError != "" {
		return ExitHarnessError
	}
	if r.Summary.Fail > 0 {
		return ExitCheckFailed
	}
	return ExitPass
}

func (o *Orchestrator) buildReport(result *types.MatchResult, harnessErr string, elapsed time.Duration) *Report {
	pass, fail := o.rec.Summary()
	var snap *metrics.Snapshot
	if o.collector != nil {
		s := o.collector.Snapshot()
		snap = &s
	}
	return &Report{
		Tool:         "duelbench",
		RunID:        o.cfg.Meta.RunID,
		Submission:   o.cfg.Meta.Submission,
		Summary:      Summary{Pass: pass, Fail: fail},
		Match:        result,
		Results:      o.rec.Results(),
		DurationMS:   elapsed.Milliseconds(),
		HarnessError: harnessErr,
		Metrics:      snap,
	}
}

// WriteReport writes the report as indented JSON to the given path, or to
// stdout when path is "-".
func WriteReport(r *Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
