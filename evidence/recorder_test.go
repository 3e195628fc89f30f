package evidence

import (
	"io"
	"testing"

	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/types"
)

func testLogger() *log.Logger {
	return log.NewLogger(nil).WithOutput(io.Discard)
}

func TestRecorderCardinality(t *testing.T) {
	declared := []string{
		types.ServiceCheckID("matchmaker"),
		types.CheckSessionsLoaded,
		types.CheckHandshakeRoomCode,
		types.CheckReadySync,
		types.CheckMatchOutcome,
		types.CheckTierProgression,
		types.CheckRuntimeDiagnostics,
	}

	// Simulate aborting at every possible stage: record i results, fill,
	// and verify exactly one result per declared id.
	for aborted := 0; aborted <= len(declared); aborted++ {
		rec := NewRecorder(declared, testLogger())
		for i := 0; i < aborted; i++ {
			rec.Pass(declared[i], "ok")
		}
		filled := rec.FillMissing("run aborted")
		if filled != len(declared)-aborted {
			t.Fatalf("abort at %d: filled %d, want %d", aborted, filled, len(declared)-aborted)
		}

		results := rec.Results()
		if len(results) != len(declared) {
			t.Fatalf("abort at %d: %d results, want %d", aborted, len(results), len(declared))
		}
		for i, res := range results {
			if res.CheckID != declared[i] {
				t.Fatalf("abort at %d: result %d is %q, want %q", aborted, i, res.CheckID, declared[i])
			}
		}
		pass, fail := rec.Summary()
		if pass != aborted || fail != len(declared)-aborted {
			t.Fatalf("abort at %d: summary %d/%d", aborted, pass, fail)
		}
	}
}

func TestRecorderFirstWriteWins(t *testing.T) {
	rec := NewRecorder([]string{types.CheckReadySync}, testLogger())
	rec.Fail(types.CheckReadySync, "sessions never converged")
	rec.Pass(types.CheckReadySync, "late pass")

	results := rec.Results()
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Result != types.VerdictFail {
		t.Fatalf("result overwritten: %v", results[0])
	}
	if results[0].Evidence != "sessions never converged" {
		t.Fatalf("evidence overwritten: %q", results[0].Evidence)
	}
}

func TestRecorderFillMissingSkipsRecorded(t *testing.T) {
	rec := NewRecorder([]string{"a", "b", "c"}, testLogger())
	rec.Pass("b", "ok")

	if filled := rec.FillMissing("aborted"); filled != 2 {
		t.Fatalf("filled %d, want 2", filled)
	}
	for _, res := range rec.Results() {
		if res.CheckID == "b" {
			if res.Result != types.VerdictPass {
				t.Fatalf("recorded result clobbered: %v", res)
			}
		} else if res.Evidence != "aborted" {
			t.Fatalf("missing result not filled: %v", res)
		}
	}
}

func TestRecorderUndeclaredIDAppended(t *testing.T) {
	rec := NewRecorder([]string{"a"}, testLogger())
	rec.Fail("surprise", "unexpected")

	ids := rec.Declared()
	if len(ids) != 2 || ids[1] != "surprise" {
		t.Fatalf("declared = %v", ids)
	}
	if !rec.Recorded("surprise") {
		t.Fatal("undeclared result not recorded")
	}
}

func TestRecorderMergeExternal(t *testing.T) {
	rec := NewRecorder([]string{"a"}, testLogger())
	rec.Pass("a", "ok")

	rec.MergeExternal([]types.CheckResult{
		{CheckID: "static:layout", Result: types.VerdictPass, Evidence: "layout ok"},
		{CheckID: "a", Result: types.VerdictFail, Evidence: "conflicts with declared"},
		{CheckID: "static:layout", Result: types.VerdictFail, Evidence: "duplicate"},
	})

	results := rec.Results()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %v", len(results), results)
	}
	if results[0].CheckID != "a" || results[0].Result != types.VerdictPass {
		t.Fatalf("declared result displaced: %v", results[0])
	}
	if results[1].CheckID != "static:layout" || results[1].Result != types.VerdictPass {
		t.Fatalf("external merge wrong: %v", results[1])
	}
}
