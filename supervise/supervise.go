// Package supervise manages the external backend service processes a run
// depends on: spawn, liveness, reachability probing, and two-phase shutdown.
package supervise

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/duelbench/duelbench/gate"
	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/metrics"
)

// DefaultStopGrace is how long Stop waits after a graceful termination
// signal before forcing the process down.
const DefaultStopGrace = time.Second

// Service describes one backend service process.
type Service struct {
	// Name identifies the service in checks and logs.
	Name string `yaml:"name"`
	// Command is the executable to spawn.
	Command string `yaml:"command"`
	// Args are the command arguments.
	Args []string `yaml:"args"`
	// Dir is the working directory for the process.
	Dir string `yaml:"dir"`
	// HealthURL is the endpoint probed for reachability.
	HealthURL string `yaml:"health_url"`
}

// Handle is an opaque reference to one supervised process. Handles are
// owned by the Supervisor that created them and are released exactly once
// via Stop.
type Handle struct {
	service  Service
	cmd      *exec.Cmd
	spawnErr error

	// done is closed when Wait returns; guards against double-reaping.
	done     chan struct{}
	stopOnce sync.Once
}

// Name returns the service name for this handle.
func (h *Handle) Name() string {
	return h.service.Name
}

// Alive reports whether the process is currently running. A handle whose
// spawn failed is never alive; this is how spawn failures surface instead
// of an error from Start.
func (h *Handle) Alive() bool {
	if h.spawnErr != nil || h.cmd == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// SpawnErr returns the spawn error, if any. Informational only; liveness
// is the contract surface.
func (h *Handle) SpawnErr() error {
	return h.spawnErr
}

// Supervisor starts and stops backend service processes. A stuck service
// must never hang the pipeline, so Stop swallows all failures.
type Supervisor struct {
	logger    *log.Logger
	collector *metrics.Collector
	client    *http.Client
	stopGrace time.Duration

	mu      sync.Mutex
	handles []*Handle
}

// New creates a Supervisor.
func New(logger *log.Logger, collector *metrics.Collector) *Supervisor {
	return &Supervisor{
		logger:    logger,
		collector: collector,
		client:    &http.Client{},
		stopGrace: DefaultStopGrace,
	}
}

// Start spawns a service process and returns its handle. Failure to spawn
// is reported via the handle's liveness being immediately false, not via
// an error: the reachability probe is the stage that decides pass/fail.
func (s *Supervisor) Start(svc Service) *Handle {
	s.collector.IncServiceStarted()

	h := &Handle{
		service: svc,
		done:    make(chan struct{}),
	}

	cmd := exec.Command(svc.Command, svc.Args...)
	cmd.Dir = svc.Dir
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	// Own process group, so shutdown signals reach children the service
	// spawns (shell wrappers, workers).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		h.spawnErr = err
		close(h.done)
		s.logger.Warn("service failed to spawn", map[string]any{
			"service": svc.Name,
			"command": svc.Command,
			"error":   err.Error(),
		})
		s.track(h)
		return h
	}

	h.cmd = cmd
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	s.logger.Info("service started", map[string]any{
		"service": svc.Name,
		"pid":     cmd.Process.Pid,
	})
	s.track(h)
	return h
}

func (s *Supervisor) track(h *Handle) {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

// ProbeReachable polls the endpoint until it answers with a success status
// or the timeout elapses. Any response below 500 counts as reachable; the
// probe establishes liveness, not correctness.
func (s *Supervisor) ProbeReachable(ctx context.Context, endpoint string, interval, timeout time.Duration) bool {
	ok := gate.Poll(ctx, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return false, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return false, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode < 500, nil
	}, interval, timeout)

	if ok {
		s.collector.IncServiceReachable()
	} else {
		s.collector.IncServiceProbeFailure()
	}
	return ok
}

// Stop performs a two-phase shutdown: graceful termination signal, bounded
// grace wait, forced kill. Safe to call on an already-dead handle (no-op)
// and safe to call more than once. Never returns an error; all failures
// are swallowed.
func (s *Supervisor) Stop(h *Handle) {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		s.stop(h)
	})
}

func (s *Supervisor) stop(h *Handle) {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}

	select {
	case <-h.done:
		return // already exited
	default:
	}

	_ = signalGroup(h.cmd, syscall.SIGTERM)

	select {
	case <-h.done:
		s.logger.Info("service stopped", map[string]any{"service": h.service.Name})
		return
	case <-time.After(s.stopGrace):
	}

	_ = signalGroup(h.cmd, syscall.SIGKILL)

	// Bound the post-kill reap wait too; an unreapable process must not
	// hang cleanup.
	select {
	case <-h.done:
	case <-time.After(s.stopGrace):
	}
	s.logger.Warn("service force-killed", map[string]any{"service": h.service.Name})
}

// signalGroup delivers sig to the whole process group, falling back to
// the single process when the group is gone.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// StopAll stops every handle this supervisor started, in reverse start
// order. Idempotent.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	handles := make([]*Handle, len(s.handles))
	copy(handles, s.handles)
	s.mu.Unlock()

	for i := len(handles) - 1; i >= 0; i-- {
		s.Stop(handles[i])
	}
}
