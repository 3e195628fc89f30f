package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duelbench/duelbench/types"
)

// hookBinding maps a named automation operation to the window-level
// binding the instrumented client exposes.
//
// call is the invocation target, probe the optional-chained reference used
// for availability checks (property access on a missing _test object must
// read as "not exposed yet", not throw). async marks operations that
// return a promise.
type hookBinding struct {
	call  string
	probe string
	async bool
}

var hookBindings = map[types.Hook]hookBinding{
	types.HookHost:        {call: "window._test.hostGame", probe: "window._test?.hostGame", async: true},
	types.HookJoin:        {call: "window._test.joinGame", probe: "window._test?.joinGame", async: true},
	types.HookReady:       {call: "window._test.ready", probe: "window._test?.ready"},
	types.HookLobbyState:  {call: "window._test.getLobbyState", probe: "window._test?.getLobbyState"},
	types.HookRoomCode:    {call: "window._test.getRoomCode", probe: "window._test?.getRoomCode"},
	types.HookMatchStatus: {call: "window._getMpStatus", probe: "window._getMpStatus"},
	types.HookAutoPlay:    {call: "window._startAutoP1", probe: "window._startAutoP1"},
}

// hookOrder fixes the iteration order for the surface check.
var hookOrder = []types.Hook{
	types.HookHost,
	types.HookJoin,
	types.HookReady,
	types.HookLobbyState,
	types.HookRoomCode,
	types.HookMatchStatus,
	types.HookAutoPlay,
}

// stateTableExpr reads the client's lifecycle code table.
const stateTableExpr = "window._test?.GameState"

// callExpr builds the JS expression invoking a hook with JSON-encoded
// arguments. Synchronous hooks are wrapped so an undefined return value
// serializes as null; async hooks resolve to true once settled.
func callExpr(hook types.Hook, args []any) (string, error) {
	b, ok := hookBindings[hook]
	if !ok {
		return "", fmt.Errorf("unknown hook %q", hook)
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		enc, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("hook %s: encode arg %d: %w", hook, i, err)
		}
		parts[i] = string(enc)
	}
	list := strings.Join(parts, ", ")

	if b.async {
		return fmt.Sprintf("%s(%s).then(() => true)", b.call, list), nil
	}
	return fmt.Sprintf("(() => { const r = %s(%s); return r === undefined ? null : r; })()", b.call, list), nil
}

// surfaceExpr builds the expression checking the full hook surface is
// exposed: every operation is a function and the state-code table is an
// object.
func surfaceExpr() string {
	conds := make([]string, 0, len(hookOrder)+1)
	for _, hook := range hookOrder {
		conds = append(conds, fmt.Sprintf("typeof %s === 'function'", hookBindings[hook].probe))
	}
	conds = append(conds, fmt.Sprintf("typeof %s === 'object'", stateTableExpr))
	return strings.Join(conds, " && ")
}
