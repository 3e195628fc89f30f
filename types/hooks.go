package types

// Hook names a single automation operation the session under test is
// expected to expose. The operations themselves are injected into the
// client by the serving layer; the harness only invokes them.
type Hook string

const (
	// HookHost creates a multiplayer room on the invoking session.
	HookHost Hook = "host-session"
	// HookJoin joins the room identified by a join code.
	HookJoin Hook = "join-session"
	// HookReady marks the invoking session ready to start.
	HookReady Hook = "mark-ready"
	// HookLobbyState reads the session's lobby phase.
	HookLobbyState Hook = "get-lifecycle-state"
	// HookRoomCode reads the generated join code, if any.
	HookRoomCode Hook = "get-room-code"
	// HookMatchStatus reads a full match status snapshot.
	HookMatchStatus Hook = "get-match-status"
	// HookAutoPlay enables automated play on the invoking session.
	HookAutoPlay Hook = "enable-automated-play"
)
