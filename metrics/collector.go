// Package metrics provides per-run counters for the validation harness.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies. All increment methods are
// nil-receiver safe so instrumentation can be omitted in tests.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Services
	ServicesStarted      int64 `json:"services_started"`
	ServicesReachable    int64 `json:"services_reachable"`
	ServiceProbeFailures int64 `json:"service_probe_failures"`

	// Sessions
	SessionsLaunched    int64 `json:"sessions_launched"`
	SessionLoadFailures int64 `json:"session_load_failures"`
	HookInvocations     int64 `json:"hook_invocations"`
	HookFailures        int64 `json:"hook_failures"`

	// Monitor loop
	SnapshotsFetched  int64 `json:"snapshots_fetched"`
	SnapshotFailures  int64 `json:"snapshot_failures"`
	MonitorIterations int64 `json:"monitor_iterations"`
	IterationsSkipped int64 `json:"iterations_skipped"`

	// Evidence
	FramesCaptured  int64 `json:"frames_captured"`
	CaptureFailures int64 `json:"capture_failures"`
	StatusRecords   int64 `json:"status_records"`
	DiagEvents      int64 `json:"diag_events"`

	// Dimensions (informational, set at construction)
	RunID      string `json:"run_id,omitempty"`
	Submission string `json:"submission,omitempty"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	servicesStarted      int64
	servicesReachable    int64
	serviceProbeFailures int64

	sessionsLaunched    int64
	sessionLoadFailures int64
	hookInvocations     int64
	hookFailures        int64

	snapshotsFetched  int64
	snapshotFailures  int64
	monitorIterations int64
	iterationsSkipped int64

	framesCaptured  int64
	captureFailures int64
	statusRecords   int64
	diagEvents      int64

	runID      string
	submission string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(runID, submission string) *Collector {
	return &Collector{
		runID:      runID,
		submission: submission,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Services ---

// IncServiceStarted records a backend service process start attempt.
func (c *Collector) IncServiceStarted() {
	if c == nil {
		return
	}
	c.inc(&c.servicesStarted)
}

// IncServiceReachable records a service passing its reachability probe.
func (c *Collector) IncServiceReachable() {
	if c == nil {
		return
	}
	c.inc(&c.servicesReachable)
}

// IncServiceProbeFailure records a service failing its reachability probe.
func (c *Collector) IncServiceProbeFailure() {
	if c == nil {
		return
	}
	c.inc(&c.serviceProbeFailures)
}

// --- Sessions ---

// IncSessionLaunched records a session instance launch.
func (c *Collector) IncSessionLaunched() {
	if c == nil {
		return
	}
	c.inc(&c.sessionsLaunched)
}

// IncSessionLoadFailure records a session that failed to load or expose hooks.
func (c *Collector) IncSessionLoadFailure() {
	if c == nil {
		return
	}
	c.inc(&c.sessionLoadFailures)
}

// IncHookInvocation records an automation hook call.
func (c *Collector) IncHookInvocation() {
	if c == nil {
		return
	}
	c.inc(&c.hookInvocations)
}

// IncHookFailure records a failed automation hook call.
func (c *Collector) IncHookFailure() {
	if c == nil {
		return
	}
	c.inc(&c.hookFailures)
}

// --- Monitor loop ---

// IncSnapshotFetched records a successful status snapshot read.
func (c *Collector) IncSnapshotFetched() {
	if c == nil {
		return
	}
	c.inc(&c.snapshotsFetched)
}

// IncSnapshotFailure records an unreadable status snapshot.
func (c *Collector) IncSnapshotFailure() {
	if c == nil {
		return
	}
	c.inc(&c.snapshotFailures)
}

// IncMonitorIteration records one monitor loop tick.
func (c *Collector) IncMonitorIteration() {
	if c == nil {
		return
	}
	c.inc(&c.monitorIterations)
}

// IncIterationSkipped records a monitor tick skipped on fetch failure.
func (c *Collector) IncIterationSkipped() {
	if c == nil {
		return
	}
	c.inc(&c.iterationsSkipped)
}

// --- Evidence ---

// IncFrameCaptured records a captured still frame.
func (c *Collector) IncFrameCaptured() {
	if c == nil {
		return
	}
	c.inc(&c.framesCaptured)
}

// IncCaptureFailure records a failed or unavailable frame capture.
func (c *Collector) IncCaptureFailure() {
	if c == nil {
		return
	}
	c.inc(&c.captureFailures)
}

// IncStatusRecord records one appended status evidence record.
func (c *Collector) IncStatusRecord() {
	if c == nil {
		return
	}
	c.inc(&c.statusRecords)
}

// IncDiagEvent records one collected diagnostic event.
func (c *Collector) IncDiagEvent() {
	if c == nil {
		return
	}
	c.inc(&c.diagEvents)
}

// Snapshot returns an immutable point-in-time view of all counters.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		ServicesStarted:      c.servicesStarted,
		ServicesReachable:    c.servicesReachable,
		ServiceProbeFailures: c.serviceProbeFailures,

		SessionsLaunched:    c.sessionsLaunched,
		SessionLoadFailures: c.sessionLoadFailures,
		HookInvocations:     c.hookInvocations,
		HookFailures:        c.hookFailures,

		SnapshotsFetched:  c.snapshotsFetched,
		SnapshotFailures:  c.snapshotFailures,
		MonitorIterations: c.monitorIterations,
		IterationsSkipped: c.iterationsSkipped,

		FramesCaptured:  c.framesCaptured,
		CaptureFailures: c.captureFailures,
		StatusRecords:   c.statusRecords,
		DiagEvents:      c.diagEvents,

		RunID:      c.runID,
		Submission: c.submission,
	}
}
