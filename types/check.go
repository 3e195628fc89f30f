// Package types defines core domain types for the duelbench harness.
//
//nolint:revive // types is a common Go package naming convention
package types

// Verdict is the recorded outcome of a single check.
type Verdict string

const (
	// VerdictPass indicates the check passed.
	VerdictPass Verdict = "PASS"
	// VerdictFail indicates the check failed.
	VerdictFail Verdict = "FAIL"
)

// CheckResult is one recorded piece of pass/fail evidence.
// Immutable once recorded; check ids are drawn from a set declared
// before the run starts.
type CheckResult struct {
	// CheckID identifies the check.
	CheckID string `json:"check_id"`
	// Result is the verdict.
	Result Verdict `json:"result"`
	// Evidence is a human-readable justification for the verdict.
	Evidence string `json:"evidence"`
}

// Declared check identifiers for the dynamic validation run.
// Per-service reachability ids are derived via ServiceCheckID.
const (
	// CheckSessionsLoaded passes when both client sessions loaded and
	// exposed the full automation hook surface.
	CheckSessionsLoaded = "sessions_loaded"
	// CheckHandshakeRoomCode passes when the host session produced a join
	// code and the guest session joined with it.
	CheckHandshakeRoomCode = "handshake_room_code"
	// CheckReadySync passes when both sessions converged on the active
	// lifecycle state within the ready-sync window.
	CheckReadySync = "ready_sync"
	// CheckMatchOutcome passes when the monitored match ended in a victory
	// with a non-null winner.
	CheckMatchOutcome = "match_outcome"
	// CheckTierProgression passes when both sessions advanced past their
	// starting tier during the match.
	CheckTierProgression = "tier_progression"
	// CheckRuntimeDiagnostics passes when no non-benign diagnostic events
	// were collected from either session.
	CheckRuntimeDiagnostics = "runtime_diagnostics"
)

// ServiceCheckID returns the reachability check id for a named backend
// service.
func ServiceCheckID(name string) string {
	return "service_reachable:" + name
}
