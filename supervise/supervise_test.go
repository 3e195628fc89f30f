package supervise

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/types"
)

func testLogger() *log.Logger {
	return log.NewLogger(&types.RunMeta{RunID: "test", Submission: "test"})
}

func TestStartSpawnFailureIsNotAlive(t *testing.T) {
	s := New(testLogger(), nil)

	h := s.Start(Service{
		Name:    "ghost",
		Command: "/nonexistent/binary/for/this/test",
	})

	if h.Alive() {
		t.Fatal("handle for failed spawn reports alive")
	}
	if h.SpawnErr() == nil {
		t.Error("expected a spawn error")
	}

	// Stop on a never-spawned handle must be a no-op.
	s.Stop(h)
}

func TestStartAndStopProcess(t *testing.T) {
	s := New(testLogger(), nil)

	h := s.Start(Service{
		Name:    "sleeper",
		Command: "sleep",
		Args:    []string{"30"},
	})
	if !h.Alive() {
		t.Fatalf("sleeper not alive after start: %v", h.SpawnErr())
	}

	s.Stop(h)

	// After Stop returns, the process must be gone.
	deadline := time.Now().Add(3 * time.Second)
	for h.Alive() {
		if time.Now().After(deadline) {
			t.Fatal("process still alive after Stop")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Second Stop on a dead handle is a no-op.
	s.Stop(h)
}

func TestStartOwnsProcessGroup(t *testing.T) {
	s := New(testLogger(), nil)

	h := s.Start(Service{
		Name:    "wrapper",
		Command: "sh",
		Args:    []string{"-c", "sleep 30"},
	})
	if !h.Alive() {
		t.Fatalf("wrapper not alive after start: %v", h.SpawnErr())
	}
	defer s.Stop(h)

	// The service leads its own group, so stop signals reach any
	// children it forked.
	pid := h.cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		t.Fatalf("getpgid: %v", err)
	}
	if pgid != pid {
		t.Fatalf("pgid = %d, want %d (own process group)", pgid, pid)
	}
}

func TestStopAllStopsEverything(t *testing.T) {
	s := New(testLogger(), nil)

	h1 := s.Start(Service{Name: "a", Command: "sleep", Args: []string{"30"}})
	h2 := s.Start(Service{Name: "b", Command: "sleep", Args: []string{"30"}})

	s.StopAll()
	s.StopAll() // idempotent

	for _, h := range []*Handle{h1, h2} {
		deadline := time.Now().Add(3 * time.Second)
		for h.Alive() {
			if time.Now().After(deadline) {
				t.Fatalf("%s still alive after StopAll", h.Name())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestProbeReachableSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := metrics.NewCollector("r", "s")
	s := New(testLogger(), c)

	if !s.ProbeReachable(context.Background(), srv.URL, 10*time.Millisecond, time.Second) {
		t.Fatal("probe failed against a live server")
	}
	if c.Snapshot().ServicesReachable != 1 {
		t.Error("reachable counter not incremented")
	}
}

func TestProbeReachableEventually(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(testLogger(), nil)
	if !s.ProbeReachable(context.Background(), srv.URL, 10*time.Millisecond, time.Second) {
		t.Fatal("probe never succeeded despite server recovery")
	}
}

func TestProbeReachableTimeout(t *testing.T) {
	c := metrics.NewCollector("r", "s")
	s := New(testLogger(), c)

	start := time.Now()
	// Port 1 is reserved; connection is refused immediately.
	ok := s.ProbeReachable(context.Background(), "http://127.0.0.1:1/", 20*time.Millisecond, 100*time.Millisecond)
	if ok {
		t.Fatal("probe succeeded against a closed port")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("probe took %v, want bounded return", elapsed)
	}
	if c.Snapshot().ServiceProbeFailures != 1 {
		t.Error("probe failure counter not incremented")
	}
}
