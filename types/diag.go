package types

// DiagSeverity ranks a diagnostic event.
type DiagSeverity string

const (
	// DiagWarning is a non-fatal diagnostic (console warnings).
	DiagWarning DiagSeverity = "warning"
	// DiagError is an error-level diagnostic (console errors, uncaught
	// exceptions).
	DiagError DiagSeverity = "error"
)

// DiagEvent is one diagnostic event passively collected from a session.
// Collection is observation only; events never influence control flow
// until post-run triage.
type DiagEvent struct {
	// Session is the id of the session the event came from.
	Session string `json:"session"`
	// Severity ranks the event.
	Severity DiagSeverity `json:"severity"`
	// Source names the collection channel ("console" or "exception").
	Source string `json:"source"`
	// Message is the event text.
	Message string `json:"message"`
}
