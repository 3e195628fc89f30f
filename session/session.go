// Package session drives one independent browser client instance over the
// Chrome DevTools Protocol.
//
// Each Controller owns one browser process and one tab navigated to the
// submission's entry point. All control flows through the automation hook
// surface the serving layer injects into the client; diagnostic events
// (console errors, uncaught exceptions) are collected passively for the
// session's lifetime.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	cdruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/duelbench/duelbench/gate"
	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/types"
)

// Defaults for session call bounds.
const (
	// DefaultHookGrace is how long Invoke waits for a named hook to appear
	// before failing with ErrHookUnavailable.
	DefaultHookGrace = 2 * time.Second
	// DefaultCallTimeout bounds every protocol round trip. A monitoring
	// loop must never block indefinitely on a single call.
	DefaultCallTimeout = 3 * time.Second

	hookProbeInterval = 100 * time.Millisecond

	// maxDiagEvents bounds passive diagnostic collection. A pathological
	// client logging in a tight loop must not exhaust harness memory.
	maxDiagEvents = 1000
)

// Sentinel errors for call sites that branch on failure mode.
var (
	// ErrHookUnavailable indicates the session does not expose the named
	// automation operation within the grace window.
	ErrHookUnavailable = errors.New("automation hook unavailable")
	// ErrSnapshotUnreadable indicates a status snapshot could not be read
	// this instant. Callers skip the iteration and retry.
	ErrSnapshotUnreadable = errors.New("status snapshot unreadable")
)

// Config configures one session instance.
type Config struct {
	// ID labels the session ("host" or "guest") in checks, logs and evidence.
	ID string
	// Headless runs the browser without a display (the default).
	Headless bool
	// BrowserPath overrides the browser binary location.
	BrowserPath string
	// HookGrace overrides DefaultHookGrace.
	HookGrace time.Duration
	// CallTimeout overrides DefaultCallTimeout.
	CallTimeout time.Duration
}

// Controller wraps one browser client instance.
type Controller struct {
	id          string
	logger      *log.Logger
	collector   *metrics.Collector
	hookGrace   time.Duration
	callTimeout time.Duration

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once

	mu      sync.Mutex
	diags   []types.DiagEvent
	dropped int
}

// New allocates a browser instance for one session. The browser process
// itself starts lazily on the first protocol call (Load).
func New(cfg Config, logger *log.Logger, collector *metrics.Collector) *Controller {
	if cfg.HookGrace <= 0 {
		cfg.HookGrace = DefaultHookGrace
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.WindowSize(1280, 800),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	c := &Controller{
		id:          cfg.ID,
		logger:      logger,
		collector:   collector,
		hookGrace:   cfg.HookGrace,
		callTimeout: cfg.CallTimeout,
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      tabCancel,
	}
	c.listen()
	return c
}

// ID returns the session label.
func (c *Controller) ID() string {
	return c.id
}

// Load navigates the session to the target entry point, starting the
// browser process on first use.
func (c *Controller) Load(ctx context.Context, url string) error {
	tctx, cancel := c.bound(ctx, 30*time.Second)
	defer cancel()

	if err := chromedp.Run(tctx, chromedp.Navigate(url)); err != nil {
		c.collector.IncSessionLoadFailure()
		return fmt.Errorf("session %s: load %s: %w", c.id, url, err)
	}
	c.logger.Info("session loaded", map[string]any{"session": c.id, "url": url})
	return nil
}

// Invoke calls a named automation operation on the session. It waits up to
// the hook grace window for the operation to appear, then fails with
// ErrHookUnavailable.
func (c *Controller) Invoke(ctx context.Context, hook types.Hook, args ...any) (json.RawMessage, error) {
	c.collector.IncHookInvocation()

	b, ok := hookBindings[hook]
	if !ok {
		c.collector.IncHookFailure()
		return nil, fmt.Errorf("session %s: unknown hook %q", c.id, hook)
	}

	avail := gate.Poll(ctx, func(ctx context.Context) (bool, error) {
		var fn bool
		err := c.eval(ctx, fmt.Sprintf("typeof %s === 'function'", b.probe), &fn)
		return fn, err
	}, hookProbeInterval, c.hookGrace)
	if !avail {
		c.collector.IncHookFailure()
		return nil, fmt.Errorf("session %s: %s: %w", c.id, hook, ErrHookUnavailable)
	}

	expr, err := callExpr(hook, args)
	if err != nil {
		c.collector.IncHookFailure()
		return nil, fmt.Errorf("session %s: %w", c.id, err)
	}

	var raw json.RawMessage
	if err := c.evalAsync(ctx, expr, &raw, b.async); err != nil {
		c.collector.IncHookFailure()
		return nil, fmt.Errorf("session %s: invoke %s: %w", c.id, hook, err)
	}
	return raw, nil
}

// AwaitHooks polls until the session exposes the full automation hook
// surface, including the lifecycle state-code table. Returns false if the
// surface never appears within the timeout.
func (c *Controller) AwaitHooks(ctx context.Context, interval, timeout time.Duration) bool {
	expr := surfaceExpr()
	return gate.Poll(ctx, func(ctx context.Context) (bool, error) {
		var exposed bool
		err := c.eval(ctx, expr, &exposed)
		return exposed, err
	}, interval, timeout)
}

// Snapshot performs an on-demand status read. Fails soft: any failure is
// wrapped in ErrSnapshotUnreadable so a monitoring loop can skip one
// iteration without aborting. Snapshots are never cached.
func (c *Controller) Snapshot(ctx context.Context) (*types.StatusSnapshot, error) {
	raw, err := c.Invoke(ctx, types.HookMatchStatus)
	if err != nil {
		c.collector.IncSnapshotFailure()
		return nil, fmt.Errorf("session %s: %w: %w", c.id, ErrSnapshotUnreadable, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		c.collector.IncSnapshotFailure()
		return nil, fmt.Errorf("session %s: %w: hook returned null", c.id, ErrSnapshotUnreadable)
	}

	var snap types.StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.collector.IncSnapshotFailure()
		return nil, fmt.Errorf("session %s: %w: %w", c.id, ErrSnapshotUnreadable, err)
	}
	c.collector.IncSnapshotFetched()
	return &snap, nil
}

// RoomCode reads the generated join code. Returns "" while no code exists.
func (c *Controller) RoomCode(ctx context.Context) (string, error) {
	raw, err := c.Invoke(ctx, types.HookRoomCode)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		return "", fmt.Errorf("session %s: decode room code: %w", c.id, err)
	}
	return code, nil
}

// LobbyPhase reads the session's lobby phase as raw text, for evidence.
func (c *Controller) LobbyPhase(ctx context.Context) (string, error) {
	raw, err := c.Invoke(ctx, types.HookLobbyState)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// StateCodes resolves the lifecycle code table from the live session.
// Returns ok=false when the table is missing or incomplete; callers fall
// back to configured codes.
func (c *Controller) StateCodes(ctx context.Context) (types.StateCodes, bool) {
	var table map[string]int
	if err := c.eval(ctx, stateTableExpr, &table); err != nil {
		c.logger.Debug("state table unavailable", map[string]any{
			"session": c.id,
			"error":   err.Error(),
		})
		return types.StateCodes{}, false
	}

	lobby, okL := table["LOBBY"]
	active, okA := table["MP_PLAYING"]
	victory, okV := table["MP_GAME_OVER"]
	if !okL || !okA || !okV {
		return types.StateCodes{}, false
	}
	return types.StateCodes{Lobby: lobby, Active: active, Victory: victory}, true
}

// CaptureFrame takes a best-effort still capture of the session's visual
// output. Absence of a capturable surface yields nil, not an error.
func (c *Controller) CaptureFrame(ctx context.Context) []byte {
	tctx, cancel := c.bound(ctx, c.callTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		c.collector.IncCaptureFailure()
		c.logger.Debug("frame capture failed", map[string]any{
			"session": c.id,
			"error":   err.Error(),
		})
		return nil
	}
	c.collector.IncFrameCaptured()
	return buf
}

// Diagnostics returns a copy of the accumulated diagnostic events.
func (c *Controller) Diagnostics() []types.DiagEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.DiagEvent, len(c.diags))
	copy(out, c.diags)
	return out
}

// Close releases the browser instance. Idempotent; swallows errors. Always
// attempted during cleanup.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.allocCancel()
		c.logger.Info("session closed", map[string]any{"session": c.id})
	})
}

// eval runs a synchronous expression with the standard call bound.
func (c *Controller) eval(ctx context.Context, expr string, out any) error {
	return c.evalAsync(ctx, expr, out, false)
}

// evalAsync runs an expression, optionally awaiting a returned promise.
func (c *Controller) evalAsync(ctx context.Context, expr string, out any, awaitPromise bool) error {
	tctx, cancel := c.bound(ctx, c.callTimeout)
	defer cancel()

	action := chromedp.Evaluate(expr, out, func(p *cdruntime.EvaluateParams) *cdruntime.EvaluateParams {
		p = p.WithReturnByValue(true)
		if awaitPromise {
			p = p.WithAwaitPromise(true)
		}
		return p
	})
	return chromedp.Run(tctx, action)
}

// bound derives a protocol-call context from the tab context, capped by
// both the per-call bound and the caller's deadline/cancellation.
func (c *Controller) bound(ctx context.Context, limit time.Duration) (context.Context, context.CancelFunc) {
	deadline := time.Now().Add(limit)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tctx, cancel := context.WithDeadline(c.ctx, deadline)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}
