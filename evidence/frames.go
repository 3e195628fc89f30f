package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/store"
	"github.com/duelbench/duelbench/types"
)

// encodeBound caps the composite-animation encoding step.
const encodeBound = 30 * time.Second

// StatusRecord is one periodic status capture appended during the match
// monitor loop. Either snapshot may be nil when a session was unreadable
// at capture time.
type StatusRecord struct {
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	A              *types.StatusSnapshot `json:"a"`
	B              *types.StatusSnapshot `json:"b"`
}

// FrameStore accumulates visual and status evidence for one run through a
// store.Sink. Every write is best-effort: evidence capture must never fail
// a run on its own.
type FrameStore struct {
	sink      store.Sink
	logger    *log.Logger
	collector *metrics.Collector

	mu     sync.Mutex
	counts map[string]int
	status []StatusRecord
}

// NewFrameStore creates a frame store writing through sink.
func NewFrameStore(sink store.Sink, logger *log.Logger, collector *metrics.Collector) *FrameStore {
	return &FrameStore{
		sink:      sink,
		logger:    logger,
		collector: collector,
		counts:    make(map[string]int),
	}
}

// AddFrame writes one ordered still capture for a session. A nil frame
// (no capturable surface) is ignored.
func (f *FrameStore) AddFrame(ctx context.Context, sessionID string, png []byte) {
	if len(png) == 0 {
		return
	}

	f.mu.Lock()
	f.counts[sessionID]++
	seq := f.counts[sessionID]
	f.mu.Unlock()

	key := fmt.Sprintf("frames/%s/frame_%04d.png", sessionID, seq)
	if err := f.sink.Put(ctx, key, png); err != nil {
		f.logger.Warn("frame write failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// FrameCount returns how many frames were stored for a session.
func (f *FrameStore) FrameCount(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[sessionID]
}

// AddStatus buffers one status record for the run's status log.
func (f *FrameStore) AddStatus(rec StatusRecord) {
	f.mu.Lock()
	f.status = append(f.status, rec)
	f.mu.Unlock()
	f.collector.IncStatusRecord()
}

// FlushStatus writes the buffered status records as JSON lines.
func (f *FrameStore) FlushStatus(ctx context.Context) error {
	f.mu.Lock()
	records := make([]StatusRecord, len(f.status))
	copy(records, f.status)
	f.mu.Unlock()

	if len(records) == 0 {
		return nil
	}

	var buf []byte
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode status record: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return f.sink.Put(ctx, "status.jsonl", buf)
}

// EncodeAnimation assembles the stored frame sequences into one composite
// animation per session via ffmpeg. Best-effort in every direction: a
// non-filesystem sink, a missing ffmpeg binary, or an encoder failure all
// degrade to "no animation", never to a run failure.
func (f *FrameStore) EncodeAnimation(ctx context.Context) {
	fs, ok := f.sink.(*store.FSSink)
	if !ok {
		return
	}

	f.mu.Lock()
	sessions := make([]string, 0, len(f.counts))
	for id, n := range f.counts {
		if n > 0 {
			sessions = append(sessions, id)
		}
	}
	f.mu.Unlock()

	for _, id := range sessions {
		ectx, cancel := context.WithTimeout(ctx, encodeBound)
		pattern := filepath.Join(fs.Dir(), "frames", id, "frame_%04d.png")
		out := filepath.Join(fs.Dir(), fmt.Sprintf("match_%s.gif", id))

		cmd := exec.CommandContext(ectx, "ffmpeg",
			"-y",
			"-framerate", "2",
			"-start_number", "1",
			"-i", pattern,
			out,
		)
		if err := cmd.Run(); err != nil {
			f.logger.Warn("animation encode skipped", map[string]any{
				"session": id,
				"error":   err.Error(),
			})
		} else {
			f.logger.Info("animation written", map[string]any{
				"session": id,
				"path":    out,
			})
		}
		cancel()
	}
}
