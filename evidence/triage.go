package evidence

import (
	"strings"

	"github.com/duelbench/duelbench/types"
)

// DefaultBenignPatterns covers diagnostic noise the harness expects from a
// working submission: transient asset fetches, audio autoplay policy, and
// pointer-lock denials under automation.
//
// Matching is by substring. A structured category/code taxonomy would be
// more precise, but substring matching is the documented behavior of the
// original tooling and is preserved here.
var DefaultBenignPatterns = []string{
	"favicon.ico",
	"Failed to load resource",
	"404 (File not found)",
	"net::ERR_",
	"Autoplay",
	"AudioContext",
	"pointer lock",
	"Pointer lock",
}

// Triage splits diagnostic events into significant and benign using the
// given substring patterns. An empty pattern list means every event is
// significant.
func Triage(events []types.DiagEvent, benignPatterns []string) (significant []types.DiagEvent, benign int) {
	for _, ev := range events {
		if matchesAny(ev.Message, benignPatterns) {
			benign++
			continue
		}
		significant = append(significant, ev)
	}
	return significant, benign
}

func matchesAny(message string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(message, p) {
			return true
		}
	}
	return false
}
