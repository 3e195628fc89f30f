package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/duelbench/duelbench/orchestrate"
	"github.com/duelbench/duelbench/types"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
		{"invalid with message", "csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat_InvalidErrorMessage(t *testing.T) {
	_, err := ParseFormat("xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

func testReport() *orchestrate.Report {
	winner := "p1"
	return &orchestrate.Report{
		Tool:       "duelbench",
		RunID:      "run-001",
		Submission: "fighter-game-v2",
		Summary:    orchestrate.Summary{Pass: 2, Fail: 1},
		Match: &types.MatchResult{
			Outcome:         types.OutcomeVictory,
			WinnerID:        &winner,
			DurationSeconds: 42.5,
			FinalTiers:      types.FinalTiers{A: 3, B: 2},
		},
		Results: []types.CheckResult{
			{CheckID: "service_reachable:matchmaker", Result: types.VerdictPass, Evidence: "responded"},
			{CheckID: "sessions_loaded", Result: types.VerdictPass, Evidence: "both loaded"},
			{CheckID: "ready_sync", Result: types.VerdictFail, Evidence: "guest stuck in lobby"},
		},
		DurationMS: 45210,
	}
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, false, &buf)

	if err := r.Render(testReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{`"run_id"`, `"run-001"`, `"check_id"`, `"ready_sync"`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON output missing %s: %s", want, got)
		}
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, false, &buf)

	if err := r.Render(map[string]string{"key": "value"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "key:") || !strings.Contains(got, "value") {
		t.Errorf("YAML output missing expected content: %s", got)
	}
}

func TestRenderer_ReportTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	if err := r.Render(testReport()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{
		"run run-001",
		"fighter-game-v2",
		"CHECK",
		"sessions_loaded",
		"PASS",
		"FAIL",
		"guest stuck in lobby",
		"winner: p1",
		"2 passed, 1 failed",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
}

func TestRenderer_ReportTable_HarnessError(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	report := testReport()
	report.HarnessError = "panic: boom"
	if err := r.Render(report); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "harness error: panic: boom") {
		t.Errorf("table output missing harness error:\n%s", buf.String())
	}
}

func TestRenderer_NoColor_DoesNotAffectJSON(t *testing.T) {
	// --no-color should not change JSON output
	var bufColor, bufNoColor bytes.Buffer

	rColor := NewRendererWithWriter(FormatJSON, false, &bufColor)
	rNoColor := NewRendererWithWriter(FormatJSON, true, &bufNoColor)

	if err := rColor.Render(testReport()); err != nil {
		t.Fatalf("Render with color failed: %v", err)
	}
	if err := rNoColor.Render(testReport()); err != nil {
		t.Fatalf("Render without color failed: %v", err)
	}

	if bufColor.String() != bufNoColor.String() {
		t.Errorf("--no-color should not affect JSON output")
	}
}
