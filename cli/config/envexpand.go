// Package config handles YAML config file loading for duelbench run.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR} and ${VAR:-default}. Only the braced form is
// expanded; bare $VAR in YAML passes through untouched.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// ExpandEnv substitutes ${VAR} references with environment values before
// the YAML is decoded. ${VAR:-default} falls back to the default when VAR
// is unset or empty, and a plain ${VAR} that resolves to nothing expands
// to the empty string. Missing values are not an error here: whatever is
// actually required gets caught by Validate or the consuming component.
func ExpandEnv(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		if m[2] != "" {
			return strings.TrimPrefix(m[2], ":-")
		}
		return ""
	})
}
