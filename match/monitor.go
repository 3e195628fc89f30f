// Package match drives the live-match monitor loop: periodic concurrent
// status sampling of both sessions until victory, timeout, or abort.
package match

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/types"
)

// Monitor loop defaults.
const (
	DefaultTick          = 500 * time.Millisecond
	DefaultCaptureEvery  = 5 * time.Second
	DefaultSnapshotBound = 3 * time.Second
	DefaultTimeout       = 120 * time.Second
)

// Session is the slice of the session surface the monitor needs.
type Session interface {
	ID() string
	Snapshot(ctx context.Context) (*types.StatusSnapshot, error)
}

// Capturer receives periodic evidence captures during the loop. Both
// snapshots may be nil when the corresponding fetch failed that tick.
type Capturer interface {
	Capture(ctx context.Context, elapsed time.Duration, a, b *types.StatusSnapshot)
}

// Config tunes the monitor loop. Zero values fall back to the defaults.
type Config struct {
	// Tick is the sampling cadence.
	Tick time.Duration
	// CaptureEvery is the evidence capture cadence.
	CaptureEvery time.Duration
	// SnapshotBound caps each individual snapshot fetch.
	SnapshotBound time.Duration
	// Timeout is the hard ceiling on the whole loop.
	Timeout time.Duration
	// Codes are the lifecycle codes in effect for this run.
	Codes types.StateCodes
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.CaptureEvery <= 0 {
		c.CaptureEvery = DefaultCaptureEvery
	}
	if c.SnapshotBound <= 0 {
		c.SnapshotBound = DefaultSnapshotBound
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Progress summarizes what the loop observed, for evidence text.
type Progress struct {
	// StartTierA and StartTierB are the first tiers observed per session.
	StartTierA int
	StartTierB int
	// MaxTierA and MaxTierB are the running-maximum tiers per session.
	MaxTierA int
	MaxTierB int
	// Iterations is the number of completed sampling rounds.
	Iterations int
	// Skipped is the number of rounds dropped because a fetch failed.
	Skipped int
	// Started reports whether at least one round completed.
	Started bool
}

// Monitor runs the sampling loop over a pair of sessions.
type Monitor struct {
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
	capturer  Capturer
}

// NewMonitor creates a monitor. capturer may be nil to disable evidence
// captures.
func NewMonitor(cfg Config, logger *log.Logger, collector *metrics.Collector, capturer Capturer) *Monitor {
	return &Monitor{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		collector: collector,
		capturer:  capturer,
	}
}

// Run samples both sessions until a terminal condition and returns the
// match result with the observed progress. Terminal conditions, in
// precedence order: context cancellation (error outcome), a session in
// the victory lifecycle state (victory outcome), the timeout ceiling
// (timeout outcome).
//
// A failed fetch on either side skips that round entirely so the two
// sides are never compared across different instants.
func (m *Monitor) Run(ctx context.Context, a, b Session) (*types.MatchResult, Progress) {
	cfg := m.cfg
	start := time.Now()
	deadline := start.Add(cfg.Timeout)

	var prog Progress
	var winner *string

	result := func(outcome types.MatchOutcome) (*types.MatchResult, Progress) {
		return &types.MatchResult{
			Outcome:         outcome,
			WinnerID:        winner,
			DurationSeconds: time.Since(start).Seconds(),
			FinalTiers:      types.FinalTiers{A: prog.MaxTierA, B: prog.MaxTierB},
		}, prog
	}

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()
	lastCapture := start.Add(-cfg.CaptureEvery) // capture on the first round

	for {
		if time.Now().After(deadline) {
			m.logger.Warn("match monitor timed out", map[string]any{
				"iterations": prog.Iterations,
				"skipped":    prog.Skipped,
			})
			return result(types.OutcomeTimeout)
		}
		if ctx.Err() != nil {
			return result(types.OutcomeError)
		}

		snapA, snapB, ok := m.sample(ctx, a, b)
		m.collector.IncMonitorIteration()

		capture := time.Since(lastCapture) >= cfg.CaptureEvery
		if capture && m.capturer != nil {
			m.capturer.Capture(ctx, time.Since(start), snapA, snapB)
			lastCapture = time.Now()
		}

		if !ok {
			prog.Skipped++
			m.collector.IncIterationSkipped()
		} else {
			if !prog.Started {
				prog.Started = true
				prog.StartTierA = snapA.TierLevel
				prog.StartTierB = snapB.TierLevel
				prog.MaxTierA = snapA.TierLevel
				prog.MaxTierB = snapB.TierLevel
			}
			prog.Iterations++
			prog.MaxTierA = max(prog.MaxTierA, snapA.TierLevel)
			prog.MaxTierB = max(prog.MaxTierB, snapB.TierLevel)

			if snapA.LifecycleState == cfg.Codes.Victory || snapB.LifecycleState == cfg.Codes.Victory {
				winner = firstWinner(snapA, snapB)
				m.logger.Info("victory state observed", map[string]any{
					"iterations": prog.Iterations,
					"winner":     deref(winner),
				})
				return result(types.OutcomeVictory)
			}
		}

		select {
		case <-ctx.Done():
			return result(types.OutcomeError)
		case <-ticker.C:
		}
	}
}

// sample fetches both snapshots concurrently, each under its own bound.
// Returns ok=false when either fetch failed; the round is then skipped.
func (m *Monitor) sample(ctx context.Context, a, b Session) (*types.StatusSnapshot, *types.StatusSnapshot, bool) {
	var snapA, snapB *types.StatusSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapA, err = m.fetch(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		snapB, err = m.fetch(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		m.logger.Debug("snapshot round skipped", map[string]any{
			"error": err.Error(),
		})
		return snapA, snapB, false
	}
	return snapA, snapB, true
}

func (m *Monitor) fetch(ctx context.Context, s Session) (*types.StatusSnapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, m.cfg.SnapshotBound)
	defer cancel()
	return s.Snapshot(fctx)
}

// firstWinner returns the first non-null winner id across both snapshots.
// Order matters: the host snapshot is consulted first, so a disagreement
// between the two views resolves in favor of the host's report.
func firstWinner(a, b *types.StatusSnapshot) *string {
	if a != nil && a.WinnerID != nil {
		return a.WinnerID
	}
	if b != nil && b.WinnerID != nil {
		return b.WinnerID
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
