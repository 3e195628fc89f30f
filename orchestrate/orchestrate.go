// Package orchestrate runs the end-to-end validation sequence: backend
// services up, two instrumented client sessions through handshake, ready
// sync, and a monitored match, with structured evidence recorded at every
// stage.
package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duelbench/duelbench/evidence"
	"github.com/duelbench/duelbench/gate"
	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/match"
	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/store"
	"github.com/duelbench/duelbench/supervise"
	"github.com/duelbench/duelbench/types"
)

// Session ids for the two sides of the match. The host session drives
// room creation; the guest joins with the host's code.
const (
	SessionHost  = "host"
	SessionGuest = "guest"
)

// Session is the client-session surface the orchestrator drives. The
// production implementation lives in the session package; tests inject
// scripted fakes.
type Session interface {
	ID() string
	Load(ctx context.Context, url string) error
	AwaitHooks(ctx context.Context, interval, timeout time.Duration) bool
	Invoke(ctx context.Context, hook types.Hook, args ...any) (json.RawMessage, error)
	Snapshot(ctx context.Context) (*types.StatusSnapshot, error)
	RoomCode(ctx context.Context) (string, error)
	LobbyPhase(ctx context.Context) (string, error)
	StateCodes(ctx context.Context) (types.StateCodes, bool)
	CaptureFrame(ctx context.Context) []byte
	Diagnostics() []types.DiagEvent
	Close()
}

// SessionFactory creates a session with the given id.
type SessionFactory func(id string) (Session, error)

// Timeouts bounds every waiting stage of the run. Zero values fall back
// to the defaults.
type Timeouts struct {
	ServiceProbe  time.Duration `yaml:"service_probe"`
	HookSurface   time.Duration `yaml:"hook_surface"`
	RoomCode      time.Duration `yaml:"room_code"`
	ReadySync     time.Duration `yaml:"ready_sync"`
	Monitor       time.Duration `yaml:"monitor"`
	MonitorTick   time.Duration `yaml:"monitor_tick"`
	CaptureEvery  time.Duration `yaml:"capture_every"`
	SnapshotBound time.Duration `yaml:"snapshot_bound"`
}

// Defaults for the waiting stages.
const (
	DefaultServiceProbe = 15 * time.Second
	DefaultHookSurface  = 15 * time.Second
	DefaultRoomCode     = 10 * time.Second
	DefaultReadySync    = 15 * time.Second
	probeInterval       = 250 * time.Millisecond
	hookInterval        = 250 * time.Millisecond
	roomCodeInterval    = 500 * time.Millisecond
	readyInterval       = 500 * time.Millisecond
	sessionLoadBound    = 45 * time.Second
	hookCallBound       = 5 * time.Second
)

func (t Timeouts) withDefaults() Timeouts {
	if t.ServiceProbe <= 0 {
		t.ServiceProbe = DefaultServiceProbe
	}
	if t.HookSurface <= 0 {
		t.HookSurface = DefaultHookSurface
	}
	if t.RoomCode <= 0 {
		t.RoomCode = DefaultRoomCode
	}
	if t.ReadySync <= 0 {
		t.ReadySync = DefaultReadySync
	}
	if t.Monitor <= 0 {
		t.Monitor = match.DefaultTimeout
	}
	if t.MonitorTick <= 0 {
		t.MonitorTick = match.DefaultTick
	}
	if t.CaptureEvery <= 0 {
		t.CaptureEvery = match.DefaultCaptureEvery
	}
	if t.SnapshotBound <= 0 {
		t.SnapshotBound = match.DefaultSnapshotBound
	}
	return t
}

// DefaultStateCodes is the last-resort lifecycle code mapping, used when
// neither the live session's state table nor the configuration provides
// one.
var DefaultStateCodes = types.StateCodes{Lobby: 1, Active: 2, Victory: 3}

// Config assembles everything a run needs.
type Config struct {
	// Meta is the run identity.
	Meta types.RunMeta
	// EntryURL is the page both sessions load.
	EntryURL string
	// Services are the backend processes to supervise for the run.
	Services []supervise.Service
	// Timeouts bounds the waiting stages.
	Timeouts Timeouts
	// Codes is the configured lifecycle code fallback. Zero value means
	// "resolve from the live session or use the defaults".
	Codes types.StateCodes
	// BenignPatterns override the default diagnostic triage allowlist.
	BenignPatterns []string
	// StaticResultsPath optionally names a file of externally produced
	// check results merged into the report.
	StaticResultsPath string
	// NewSession creates client sessions.
	NewSession SessionFactory
	// Sink receives captured evidence artifacts.
	Sink store.Sink
	// Animate enables composite animation encoding after the run.
	Animate bool

	Logger    *log.Logger
	Collector *metrics.Collector
}

// Orchestrator executes one validation run.
type Orchestrator struct {
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
	rec       *evidence.Recorder
	frames    *evidence.FrameStore
	sup       *supervise.Supervisor

	mu       sync.Mutex
	sessions []Session

	cleanupOnce sync.Once
}

// New creates an orchestrator and declares the run's check set. The
// declaration happens here, before any stage runs, so the final report
// carries a verdict for every check no matter where the run stops.
func New(cfg Config) *Orchestrator {
	cfg.Timeouts = cfg.Timeouts.withDefaults()
	if len(cfg.BenignPatterns) == 0 {
		cfg.BenignPatterns = evidence.DefaultBenignPatterns
	}

	declared := make([]string, 0, len(cfg.Services)+6)
	for _, svc := range cfg.Services {
		declared = append(declared, types.ServiceCheckID(svc.Name))
	}
	declared = append(declared,
		types.CheckSessionsLoaded,
		types.CheckHandshakeRoomCode,
		types.CheckReadySync,
		types.CheckMatchOutcome,
		types.CheckTierProgression,
		types.CheckRuntimeDiagnostics,
	)

	return &Orchestrator{
		cfg:       cfg,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		rec:       evidence.NewRecorder(declared, cfg.Logger),
		frames:    evidence.NewFrameStore(cfg.Sink, cfg.Logger, cfg.Collector),
		sup:       supervise.New(cfg.Logger, cfg.Collector),
	}
}

// Execute runs the full sequence and always returns a complete report.
// Cleanup (session close, service teardown) runs on every exit path,
// panics included.
func (o *Orchestrator) Execute(ctx context.Context) *Report {
	start := time.Now()
	var matchResult *types.MatchResult
	var harnessErr string

	func() {
		defer func() {
			if r := recover(); r != nil {
				harnessErr = fmt.Sprintf("harness panic: %v", r)
				o.logger.Error("run panicked", map[string]any{"panic": fmt.Sprint(r)})
			}
			o.cleanup()
		}()
		matchResult = o.run(ctx)
	}()

	if matchResult == nil {
		matchResult = &types.MatchResult{Outcome: types.OutcomeNotStarted}
	}

	o.mergeStaticResults()
	if filled := o.rec.FillMissing("run aborted before this check was evaluated"); filled > 0 {
		o.logger.Warn("unreached checks failed by default", map[string]any{"count": filled})
	}

	return o.buildReport(matchResult, harnessErr, time.Since(start))
}

// run walks the stages in order. Each gating stage that fails returns
// early; the recorder's fill pass turns everything unreached into FAILs.
func (o *Orchestrator) run(ctx context.Context) *types.MatchResult {
	if !o.launchServices(ctx) {
		return nil
	}
	host, guest, ok := o.launchSessions(ctx)
	if !ok {
		return nil
	}

	codes := o.resolveStateCodes(ctx, host)

	if !o.handshake(ctx, host, guest) {
		o.collectDiagnostics(host, guest)
		return nil
	}
	if !o.readySync(ctx, host, guest, codes) {
		o.collectDiagnostics(host, guest)
		return nil
	}

	o.enableAutoPlay(ctx, host, guest)

	result := o.monitorMatch(ctx, host, guest, codes)

	o.collectDiagnostics(host, guest)
	o.flushEvidence(ctx)
	return result
}

// launchServices starts every configured backend service and probes each
// health endpoint concurrently. All services must come up reachable for
// the run to proceed.
func (o *Orchestrator) launchServices(ctx context.Context) bool {
	allUp := true
	handles := make([]*supervise.Handle, 0, len(o.cfg.Services))
	for _, svc := range o.cfg.Services {
		h := o.sup.Start(svc)
		handles = append(handles, h)
		if !h.Alive() {
			o.rec.Fail(types.ServiceCheckID(svc.Name),
				fmt.Sprintf("process failed to start: %v", h.SpawnErr()))
			allUp = false
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, svc := range o.cfg.Services {
		if !handles[i].Alive() {
			continue
		}
		svc := svc
		g.Go(func() error {
			reachable := o.sup.ProbeReachable(gctx, svc.HealthURL, probeInterval, o.cfg.Timeouts.ServiceProbe)
			mu.Lock()
			defer mu.Unlock()
			if reachable {
				o.rec.Pass(types.ServiceCheckID(svc.Name),
					fmt.Sprintf("responded at %s", svc.HealthURL))
			} else {
				o.rec.Fail(types.ServiceCheckID(svc.Name),
					fmt.Sprintf("no response at %s within %s", svc.HealthURL, o.cfg.Timeouts.ServiceProbe))
				allUp = false
			}
			return nil
		})
	}
	_ = g.Wait()

	if !allUp {
		o.logger.Error("backend services unavailable", nil)
	}
	return allUp
}

// launchSessions creates both client sessions concurrently, loads the
// entry page in each, and waits for the automation hook surface. Partial
// launches still register sessions for cleanup.
func (o *Orchestrator) launchSessions(ctx context.Context) (Session, Session, bool) {
	ids := []string{SessionHost, SessionGuest}
	slots := make([]Session, len(ids))
	g, gctx := errgroup.WithContext(ctx)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			s, err := o.cfg.NewSession(id)
			if err != nil {
				return fmt.Errorf("session %s: %w", id, err)
			}
			slots[i] = s
			o.track(s)
			o.collector.IncSessionLaunched()

			lctx, cancel := context.WithTimeout(gctx, sessionLoadBound)
			defer cancel()
			if err := s.Load(lctx, o.cfg.EntryURL); err != nil {
				o.collector.IncSessionLoadFailure()
				return fmt.Errorf("session %s: load %s: %w", id, o.cfg.EntryURL, err)
			}
			if !s.AwaitHooks(gctx, hookInterval, o.cfg.Timeouts.HookSurface) {
				return fmt.Errorf("session %s: hook surface not exposed within %s", id, o.cfg.Timeouts.HookSurface)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.rec.Fail(types.CheckSessionsLoaded, err.Error())
		return nil, nil, false
	}

	o.rec.Pass(types.CheckSessionsLoaded,
		fmt.Sprintf("both sessions loaded %s and exposed all hooks", o.cfg.EntryURL))
	return slots[0], slots[1], true
}

func (o *Orchestrator) track(s Session) {
	o.mu.Lock()
	o.sessions = append(o.sessions, s)
	o.mu.Unlock()
}

// resolveStateCodes prefers the live session's exported state table,
// then the configured mapping, then the built-in defaults.
func (o *Orchestrator) resolveStateCodes(ctx context.Context, host Session) types.StateCodes {
	if codes, ok := host.StateCodes(ctx); ok {
		o.logger.Info("lifecycle codes resolved from session", map[string]any{
			"lobby": codes.Lobby, "active": codes.Active, "victory": codes.Victory,
		})
		return codes
	}
	if o.cfg.Codes != (types.StateCodes{}) {
		o.logger.Info("lifecycle codes taken from configuration", nil)
		return o.cfg.Codes
	}
	o.logger.Warn("lifecycle codes unresolved, using defaults", nil)
	return DefaultStateCodes
}

// handshake creates the room on the host, waits for the join code, and
// joins the guest with it.
func (o *Orchestrator) handshake(ctx context.Context, host, guest Session) bool {
	if _, err := o.invoke(ctx, host, types.HookHost); err != nil {
		o.rec.Fail(types.CheckHandshakeRoomCode, fmt.Sprintf("host hook failed: %v", err))
		return false
	}

	var code string
	gotCode := gate.Poll(ctx, func(pctx context.Context) (bool, error) {
		c, err := host.RoomCode(pctx)
		if err != nil {
			return false, err
		}
		code = c
		return c != "", nil
	}, roomCodeInterval, o.cfg.Timeouts.RoomCode)

	if !gotCode {
		phase := "unknown"
		pctx, cancel := context.WithTimeout(ctx, hookCallBound)
		if p, err := host.LobbyPhase(pctx); err == nil {
			phase = p
		}
		cancel()
		o.rec.Fail(types.CheckHandshakeRoomCode,
			fmt.Sprintf("host produced no join code within %s (host lobby phase: %s)",
				o.cfg.Timeouts.RoomCode, phase))
		return false
	}

	if _, err := o.invoke(ctx, guest, types.HookJoin, code); err != nil {
		o.rec.Fail(types.CheckHandshakeRoomCode,
			fmt.Sprintf("guest failed to join with code %q: %v", code, err))
		return false
	}

	o.rec.Pass(types.CheckHandshakeRoomCode,
		fmt.Sprintf("host produced code %q and guest joined", code))
	return true
}

// readySync marks both sessions ready and waits for both to reach the
// active lifecycle state. The last codes observed on each side go into
// the evidence either way.
func (o *Orchestrator) readySync(ctx context.Context, host, guest Session, codes types.StateCodes) bool {
	for _, s := range []Session{host, guest} {
		if _, err := o.invoke(ctx, s, types.HookReady); err != nil {
			o.rec.Fail(types.CheckReadySync,
				fmt.Sprintf("session %s: ready hook failed: %v", s.ID(), err))
			return false
		}
	}

	lastHost, lastGuest := -1, -1
	synced := gate.Poll(ctx, func(pctx context.Context) (bool, error) {
		hs, err := host.Snapshot(pctx)
		if err != nil {
			return false, err
		}
		gs, err := guest.Snapshot(pctx)
		if err != nil {
			return false, err
		}
		lastHost, lastGuest = hs.LifecycleState, gs.LifecycleState
		return hs.LifecycleState == codes.Active && gs.LifecycleState == codes.Active, nil
	}, readyInterval, o.cfg.Timeouts.ReadySync)

	if !synced {
		o.rec.Fail(types.CheckReadySync,
			fmt.Sprintf("sessions not active within %s (host state %d, guest state %d, want %d)",
				o.cfg.Timeouts.ReadySync, lastHost, lastGuest, codes.Active))
		return false
	}

	o.rec.Pass(types.CheckReadySync, "both sessions reached the active state")
	return true
}

// enableAutoPlay turns on automated play in both sessions. Best-effort:
// a session without the hook still gets monitored, it just will not act.
func (o *Orchestrator) enableAutoPlay(ctx context.Context, host, guest Session) {
	for _, s := range []Session{host, guest} {
		if _, err := o.invoke(ctx, s, types.HookAutoPlay); err != nil {
			o.logger.Warn("automated play not enabled", map[string]any{
				"session": s.ID(),
				"error":   err.Error(),
			})
		}
	}
}

// monitorMatch runs the sampling loop and records the outcome and tier
// progression checks from its result.
func (o *Orchestrator) monitorMatch(ctx context.Context, host, guest Session, codes types.StateCodes) *types.MatchResult {
	mon := match.NewMonitor(match.Config{
		Tick:          o.cfg.Timeouts.MonitorTick,
		CaptureEvery:  o.cfg.Timeouts.CaptureEvery,
		SnapshotBound: o.cfg.Timeouts.SnapshotBound,
		Timeout:       o.cfg.Timeouts.Monitor,
		Codes:         codes,
	}, o.logger, o.collector, &frameCapturer{
		frames:   o.frames,
		sessions: []Session{host, guest},
	})

	result, prog := mon.Run(ctx, host, guest)

	switch {
	case result.Outcome == types.OutcomeVictory && result.WinnerID != nil:
		o.rec.Pass(types.CheckMatchOutcome,
			fmt.Sprintf("victory by %q after %.1fs", *result.WinnerID, result.DurationSeconds))
	case result.Outcome == types.OutcomeVictory:
		o.rec.Fail(types.CheckMatchOutcome, "victory state reached but no winner id reported")
	default:
		o.rec.Fail(types.CheckMatchOutcome,
			fmt.Sprintf("match ended with outcome %q after %.1fs (%d rounds, %d skipped)",
				result.Outcome, result.DurationSeconds, prog.Iterations, prog.Skipped))
	}

	if prog.Started && prog.MaxTierA > prog.StartTierA && prog.MaxTierB > prog.StartTierB {
		o.rec.Pass(types.CheckTierProgression,
			fmt.Sprintf("host tier %d->%d, guest tier %d->%d",
				prog.StartTierA, prog.MaxTierA, prog.StartTierB, prog.MaxTierB))
	} else if !prog.Started {
		o.rec.Fail(types.CheckTierProgression, "no readable status round; progression unobserved")
	} else {
		o.rec.Fail(types.CheckTierProgression,
			fmt.Sprintf("host tier %d->%d, guest tier %d->%d",
				prog.StartTierA, prog.MaxTierA, prog.StartTierB, prog.MaxTierB))
	}

	return result
}

// collectDiagnostics triages the passively collected events from every
// launched session into the runtime diagnostics check.
func (o *Orchestrator) collectDiagnostics(sessions ...Session) {
	if o.rec.Recorded(types.CheckRuntimeDiagnostics) {
		return
	}

	var events []types.DiagEvent
	for _, s := range sessions {
		if s != nil {
			events = append(events, s.Diagnostics()...)
		}
	}
	significant, benign := evidence.Triage(events, o.cfg.BenignPatterns)

	if len(significant) == 0 {
		o.rec.Pass(types.CheckRuntimeDiagnostics,
			fmt.Sprintf("no significant diagnostics (%d benign filtered)", benign))
		return
	}

	first := significant[0]
	o.rec.Fail(types.CheckRuntimeDiagnostics,
		fmt.Sprintf("%d significant diagnostics (%d benign filtered); first: [%s %s] %s",
			len(significant), benign, first.Session, first.Severity, first.Message))
}

func (o *Orchestrator) flushEvidence(ctx context.Context) {
	if err := o.frames.FlushStatus(ctx); err != nil {
		o.logger.Warn("status log flush failed", map[string]any{"error": err.Error()})
	}
	if o.cfg.Animate {
		o.frames.EncodeAnimation(ctx)
	}
}

func (o *Orchestrator) mergeStaticResults() {
	if o.cfg.StaticResultsPath == "" {
		return
	}
	results, err := evidence.LoadExternalResults(o.cfg.StaticResultsPath)
	if err != nil {
		o.logger.Warn("static results not merged", map[string]any{
			"path":  o.cfg.StaticResultsPath,
			"error": err.Error(),
		})
		return
	}
	o.rec.MergeExternal(results)
}

// invoke wraps a hook call with the per-call bound and failure metrics.
func (o *Orchestrator) invoke(ctx context.Context, s Session, hook types.Hook, args ...any) (json.RawMessage, error) {
	ictx, cancel := context.WithTimeout(ctx, hookCallBound)
	defer cancel()
	raw, err := s.Invoke(ictx, hook, args...)
	if err != nil {
		o.collector.IncHookFailure()
	}
	return raw, err
}

// cleanup closes every launched session and tears down the supervised
// services. Runs exactly once per orchestrator.
func (o *Orchestrator) cleanup() {
	o.cleanupOnce.Do(func() {
		o.mu.Lock()
		sessions := make([]Session, len(o.sessions))
		copy(sessions, o.sessions)
		o.mu.Unlock()

		for _, s := range sessions {
			if s != nil {
				s.Close()
			}
		}
		o.sup.StopAll()
		if err := o.cfg.Sink.Close(); err != nil {
			o.logger.Warn("evidence sink close failed", map[string]any{"error": err.Error()})
		}
	})
}

// frameCapturer bridges the monitor's capture cadence onto the frame
// store, pulling a still from each session alongside the status record.
type frameCapturer struct {
	frames   *evidence.FrameStore
	sessions []Session
}

func (f *frameCapturer) Capture(ctx context.Context, elapsed time.Duration, a, b *types.StatusSnapshot) {
	f.frames.AddStatus(evidence.StatusRecord{
		ElapsedSeconds: elapsed.Seconds(),
		A:              a,
		B:              b,
	})
	for _, s := range f.sessions {
		f.frames.AddFrame(ctx, s.ID(), s.CaptureFrame(ctx))
	}
}
