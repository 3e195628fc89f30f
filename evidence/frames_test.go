package evidence

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/duelbench/duelbench/metrics"
	"github.com/duelbench/duelbench/store"
	"github.com/duelbench/duelbench/types"
)

func newTestFrameStore(t *testing.T) (*FrameStore, string) {
	t.Helper()
	dir := t.TempDir()
	sink, err := store.NewFSSink(dir)
	if err != nil {
		t.Fatalf("NewFSSink: %v", err)
	}
	return NewFrameStore(sink, testLogger(), metrics.NewCollector("run", "sub")), dir
}

func TestFrameStoreAddFrame(t *testing.T) {
	fs, dir := newTestFrameStore(t)
	ctx := context.Background()

	fs.AddFrame(ctx, "a", []byte("png-1"))
	fs.AddFrame(ctx, "a", []byte("png-2"))
	fs.AddFrame(ctx, "b", []byte("png-1"))
	fs.AddFrame(ctx, "a", nil)

	if n := fs.FrameCount("a"); n != 2 {
		t.Fatalf("FrameCount(a) = %d, want 2", n)
	}
	if n := fs.FrameCount("b"); n != 1 {
		t.Fatalf("FrameCount(b) = %d, want 1", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "frames", "a", "frame_0002.png"))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(data) != "png-2" {
		t.Fatalf("frame content = %q", data)
	}
}

func TestFrameStoreStatusLog(t *testing.T) {
	fs, dir := newTestFrameStore(t)
	ctx := context.Background()

	winner := "p1"
	fs.AddStatus(StatusRecord{
		ElapsedSeconds: 0.5,
		A:              &types.StatusSnapshot{LifecycleState: 2, TierLevel: 1},
		B:              &types.StatusSnapshot{LifecycleState: 2, TierLevel: 1},
	})
	fs.AddStatus(StatusRecord{
		ElapsedSeconds: 1.0,
		A:              &types.StatusSnapshot{LifecycleState: 3, TierLevel: 2, WinnerID: &winner},
		B:              nil,
	})

	if err := fs.FlushStatus(ctx); err != nil {
		t.Fatalf("FlushStatus: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "status.jsonl"))
	if err != nil {
		t.Fatalf("read status log: %v", err)
	}

	var records []StatusRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec StatusRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad status line %q: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].B != nil {
		t.Fatalf("nil snapshot not preserved: %v", records[1].B)
	}
	if records[1].A.WinnerID == nil || *records[1].A.WinnerID != "p1" {
		t.Fatalf("winner lost in round trip: %v", records[1].A)
	}
}

func TestFrameStoreFlushStatusEmpty(t *testing.T) {
	fs, dir := newTestFrameStore(t)
	if err := fs.FlushStatus(context.Background()); err != nil {
		t.Fatalf("FlushStatus: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "status.jsonl")); !os.IsNotExist(err) {
		t.Fatal("empty flush should not write a file")
	}
}

func TestLoadExternalResults(t *testing.T) {
	dir := t.TempDir()

	bare := filepath.Join(dir, "bare.json")
	if err := os.WriteFile(bare, []byte(`[{"check_id":"static:layout","result":"PASS","evidence":"ok"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	results, err := LoadExternalResults(bare)
	if err != nil {
		t.Fatalf("load bare array: %v", err)
	}
	if len(results) != 1 || results[0].CheckID != "static:layout" {
		t.Fatalf("results = %v", results)
	}

	wrapped := filepath.Join(dir, "wrapped.json")
	if err := os.WriteFile(wrapped, []byte(`{"results":[{"check_id":"static:size","result":"FAIL","evidence":"too big"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	results, err = LoadExternalResults(wrapped)
	if err != nil {
		t.Fatalf("load wrapped: %v", err)
	}
	if len(results) != 1 || results[0].Result != types.VerdictFail {
		t.Fatalf("results = %v", results)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"check_id":"","result":"PASS"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadExternalResults(bad); err == nil {
		t.Fatal("expected error for missing check_id")
	}

	if _, err := LoadExternalResults(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
