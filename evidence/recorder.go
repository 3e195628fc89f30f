// Package evidence accumulates check results and captured artifacts for a
// validation run.
package evidence

import (
	"sync"

	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/types"
)

// Recorder accumulates check results against a set of check ids declared
// before the run starts. It guarantees the final result list carries
// exactly one entry per declared id, independent of which stage the run
// stopped at.
//
// Results are immutable once recorded: the first write for an id wins and
// later writes are ignored with a warning.
type Recorder struct {
	logger *log.Logger

	mu       sync.Mutex
	declared []string
	results  map[string]types.CheckResult
	// external holds merged results from outside collaborators (static
	// source checks). Appended after the declared set in output order.
	external []types.CheckResult
}

// NewRecorder creates a recorder for the declared check ids.
func NewRecorder(declared []string, logger *log.Logger) *Recorder {
	ids := make([]string, len(declared))
	copy(ids, declared)
	return &Recorder{
		logger:   logger,
		declared: ids,
		results:  make(map[string]types.CheckResult, len(ids)),
	}
}

// Declared returns the declared check ids in declaration order.
func (r *Recorder) Declared() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.declared))
	copy(out, r.declared)
	return out
}

// Pass records a passing result for a declared check.
func (r *Recorder) Pass(checkID, evidence string) {
	r.record(types.CheckResult{CheckID: checkID, Result: types.VerdictPass, Evidence: evidence})
}

// Fail records a failing result for a declared check.
func (r *Recorder) Fail(checkID, evidence string) {
	r.record(types.CheckResult{CheckID: checkID, Result: types.VerdictFail, Evidence: evidence})
}

func (r *Recorder) record(res types.CheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.results[res.CheckID]; exists {
		r.logger.Warn("duplicate check result ignored", map[string]any{
			"check_id": res.CheckID,
			"result":   res.Result,
		})
		return
	}
	if !r.isDeclared(res.CheckID) {
		r.logger.Warn("result for undeclared check", map[string]any{
			"check_id": res.CheckID,
		})
		r.declared = append(r.declared, res.CheckID)
	}
	r.results[res.CheckID] = res
}

func (r *Recorder) isDeclared(checkID string) bool {
	for _, id := range r.declared {
		if id == checkID {
			return true
		}
	}
	return false
}

// Recorded reports whether the check already has a result.
func (r *Recorder) Recorded(checkID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.results[checkID]
	return ok
}

// FillMissing records a FAIL with the given evidence for every declared
// check that has no result yet, and returns how many were filled. Called
// on every abort path so the cardinality invariant holds regardless of
// where the run stopped.
func (r *Recorder) FillMissing(evidence string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	filled := 0
	for _, id := range r.declared {
		if _, ok := r.results[id]; ok {
			continue
		}
		r.results[id] = types.CheckResult{
			CheckID:  id,
			Result:   types.VerdictFail,
			Evidence: evidence,
		}
		filled++
	}
	return filled
}

// MergeExternal appends results produced by outside collaborators. First
// write per id wins, consistent with recorded checks.
func (r *Recorder) MergeExternal(results []types.CheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.external))
	for _, res := range r.external {
		seen[res.CheckID] = true
	}
	for _, res := range results {
		if _, declared := r.results[res.CheckID]; declared || seen[res.CheckID] {
			r.logger.Warn("duplicate external check result ignored", map[string]any{
				"check_id": res.CheckID,
			})
			continue
		}
		seen[res.CheckID] = true
		r.external = append(r.external, res)
	}
}

// Results returns all results: declared checks in declaration order,
// then merged external results in merge order.
func (r *Recorder) Results() []types.CheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.CheckResult, 0, len(r.declared)+len(r.external))
	for _, id := range r.declared {
		if res, ok := r.results[id]; ok {
			out = append(out, res)
		}
	}
	out = append(out, r.external...)
	return out
}

// Summary returns the pass/fail tallies over all results, external
// included.
func (r *Recorder) Summary() (pass, fail int) {
	for _, res := range r.Results() {
		if res.Result == types.VerdictPass {
			pass++
		} else {
			fail++
		}
	}
	return pass, fail
}
