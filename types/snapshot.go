package types

// StateCodes maps the session lifecycle phases the harness cares about to
// the integer codes the client under test reports. The codes are resolved
// from the live session's exposed state table when possible; configured
// values act as a fallback. Any code outside this set is treated as "not
// yet reached", never as an error.
type StateCodes struct {
	// Lobby is the multiplayer lobby state.
	Lobby int `yaml:"lobby" json:"lobby"`
	// Active is the live-match state.
	Active int `yaml:"active" json:"active"`
	// Victory is the terminal post-match state.
	Victory int `yaml:"victory" json:"victory"`
}

// StatusSnapshot is a point-in-time read of one session. Snapshots are
// never cached; every read is a fresh query against the live session.
//
// JSON tags match the payload of the instrumented client's match-status
// hook so a snapshot unmarshals directly from the hook result.
type StatusSnapshot struct {
	// LifecycleState is the session's current lifecycle code.
	LifecycleState int `json:"gameState"`
	// TierLevel is the session's local weapon tier.
	TierLevel int `json:"localTier"`
	// RemoteTier is the opponent tier as seen by this session.
	RemoteTier int `json:"remoteTier"`
	// Health is the local player's hit points.
	Health int `json:"playerHP"`
	// Alive reports whether the local player is alive.
	Alive bool `json:"playerAlive"`
	// PosX and PosY are the local player's world position.
	PosX float64 `json:"playerX"`
	PosY float64 `json:"playerY"`
	// WinnerID is the winning player id once the match has a victor.
	WinnerID *string `json:"winnerId"`
	// LocalID is this session's player id, assigned at join.
	LocalID *string `json:"localId"`
	// MatchTime is the in-game match clock in seconds.
	MatchTime float64 `json:"matchTime"`
	// LoopError carries the last render-loop error caught by the client's
	// instrumentation, if any.
	LoopError *string `json:"loopError"`
}
