package types

import "errors"

// RunMeta is the identity of a single validation run.
type RunMeta struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`
	// Submission identifies the submission under test.
	Submission string `json:"submission"`
}

// Validate checks run metadata completeness.
func (m *RunMeta) Validate() error {
	if m == nil {
		return errors.New("run metadata is required")
	}
	if m.RunID == "" {
		return errors.New("run_id is required")
	}
	if m.Submission == "" {
		return errors.New("submission is required")
	}
	return nil
}
