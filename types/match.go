package types

// MatchOutcome classifies how the monitored match ended.
type MatchOutcome string

const (
	// OutcomeVictory indicates a session reached the terminal victory state.
	OutcomeVictory MatchOutcome = "victory"
	// OutcomeTimeout indicates the monitor window elapsed without a
	// terminal condition.
	OutcomeTimeout MatchOutcome = "timeout"
	// OutcomeError indicates the monitor loop was aborted.
	OutcomeError MatchOutcome = "error"
	// OutcomeNotStarted indicates the run never reached the monitor stage.
	OutcomeNotStarted MatchOutcome = "not_started"
)

// FinalTiers holds the highest tier each session reached during the match.
type FinalTiers struct {
	A int `json:"a"`
	B int `json:"b"`
}

// MatchResult is the outcome of the live-match monitor loop.
// Produced exactly once per run.
type MatchResult struct {
	// Outcome is the terminal classification.
	Outcome MatchOutcome `json:"outcome"`
	// WinnerID is the first non-null winner id observed, or nil.
	WinnerID *string `json:"winner_id"`
	// DurationSeconds is the wall-clock monitor duration.
	DurationSeconds float64 `json:"duration_seconds"`
	// FinalTiers are the running-maximum tiers per session.
	FinalTiers FinalTiers `json:"final_tiers"`
}
