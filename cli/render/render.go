// Package render provides centralized output rendering for the duelbench CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// Color handling: --no-color affects table output only.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/duelbench/duelbench/orchestrate"
	"github.com/duelbench/duelbench/types"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Verdict styles for table output.
var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context, applying the TTY
// default when no format is forced.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	formatStr := c.String("format")
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Render outputs the data in the configured format. Table output is
// specialized for reports; other data falls back to a plain dump.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatYAML:
		return r.renderYAML(data)
	case FormatTable:
		if report, ok := data.(*orchestrate.Report); ok {
			return r.renderReportTable(report)
		}
		_, err := fmt.Fprintf(r.out, "%+v\n", data)
		return err
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(data)
}

// renderReportTable writes a human-oriented summary: run header, one row
// per check, then the match outcome.
func (r *Renderer) renderReportTable(report *orchestrate.Report) error {
	fmt.Fprintf(r.out, "run %s  submission %s\n", report.RunID, report.Submission)
	if report.HarnessError != "" {
		fmt.Fprintf(r.out, "harness error: %s\n", report.HarnessError)
	}
	fmt.Fprintln(r.out)

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tRESULT\tEVIDENCE")
	for _, res := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", res.CheckID, r.verdict(res.Result), res.Evidence)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(r.out)
	if report.Match != nil {
		winner := "none"
		if report.Match.WinnerID != nil {
			winner = *report.Match.WinnerID
		}
		line := fmt.Sprintf("match: %s  winner: %s  duration: %.1fs  tiers: host %d / guest %d",
			report.Match.Outcome, winner, report.Match.DurationSeconds,
			report.Match.FinalTiers.A, report.Match.FinalTiers.B)
		if !r.noColor {
			line = dimStyle.Render(line)
		}
		fmt.Fprintln(r.out, line)
	}
	fmt.Fprintf(r.out, "%d passed, %d failed\n", report.Summary.Pass, report.Summary.Fail)
	return nil
}

func (r *Renderer) verdict(v types.Verdict) string {
	if r.noColor {
		return string(v)
	}
	if v == types.VerdictPass {
		return passStyle.Render(string(v))
	}
	return failStyle.Render(string(v))
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
