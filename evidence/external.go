package evidence

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/duelbench/duelbench/types"
)

// LoadExternalResults reads check results produced by an earlier tool stage
// so they can be merged into the final report. The file holds either a bare
// JSON array of results or an object with a "results" field.
func LoadExternalResults(path string) ([]types.CheckResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read external results: %w", err)
	}

	var results []types.CheckResult
	if err := json.Unmarshal(data, &results); err == nil {
		return validateExternal(results, path)
	}

	var wrapper struct {
		Results []types.CheckResult `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse external results %s: %w", path, err)
	}
	return validateExternal(wrapper.Results, path)
}

func validateExternal(results []types.CheckResult, path string) ([]types.CheckResult, error) {
	for i, r := range results {
		if r.CheckID == "" {
			return nil, fmt.Errorf("external results %s: entry %d has no check_id", path, i)
		}
		if r.Result != types.VerdictPass && r.Result != types.VerdictFail {
			return nil, fmt.Errorf("external results %s: entry %d has result %q", path, i, r.Result)
		}
	}
	return results, nil
}
