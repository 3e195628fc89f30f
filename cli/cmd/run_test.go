package cmd

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	benchconfig "github.com/duelbench/duelbench/cli/config"
	"github.com/duelbench/duelbench/log"
	"github.com/duelbench/duelbench/store"
)

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("got %q, want b", got)
	}
	if got := firstNonEmpty("a", "b"); got != "a" {
		t.Errorf("got %q, want a", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestJoinPrefix(t *testing.T) {
	if got := joinPrefix("", "run-1"); got != "run-1" {
		t.Errorf("got %q", got)
	}
	if got := joinPrefix("runs", "run-1"); got != "runs/run-1" {
		t.Errorf("got %q", got)
	}
}

func TestRedisURL(t *testing.T) {
	cfg := &benchconfig.Config{}
	if got := redisURL(cfg); got != "" {
		t.Errorf("expected empty URL, got %q", got)
	}

	cfg.Delivery.Redis.Addr = "localhost:6379"
	if got := redisURL(cfg); got != "redis://localhost:6379/0" {
		t.Errorf("got %q", got)
	}

	cfg.Delivery.Redis.Password = "secret"
	cfg.Delivery.Redis.DB = 2
	if got := redisURL(cfg); got != "redis://:secret@localhost:6379/2" {
		t.Errorf("got %q", got)
	}
}

func TestBuildSink_FSDefault(t *testing.T) {
	dir := t.TempDir()
	app, set := flagApp(t, map[string]string{"evidence-dir": dir})

	sink, path, err := buildSink(context.Background(), cli.NewContext(app, set, nil), &benchconfig.Config{}, "run-1")
	if err != nil {
		t.Fatalf("buildSink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	if _, ok := sink.(*store.FSSink); !ok {
		t.Fatalf("expected FSSink, got %T", sink)
	}
	want := filepath.Join(dir, "run-1")
	if path != want {
		t.Errorf("evidence path = %q, want %q", path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("per-run directory not created: %v", err)
	}
}

func TestBuildSink_UnknownBackend(t *testing.T) {
	app, set := flagApp(t, map[string]string{"evidence-backend": "ftp"})

	_, _, err := buildSink(context.Background(), cli.NewContext(app, set, nil), &benchconfig.Config{}, "run-1")
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "fs or s3") {
		t.Errorf("error should name valid backends: %v", err)
	}
}

func TestBuildAdapters_NoneConfigured(t *testing.T) {
	app, set := flagApp(t, nil)
	logger := log.NewLogger(nil).WithOutput(io.Discard)

	adapters := buildAdapters(cli.NewContext(app, set, nil), &benchconfig.Config{}, logger)
	if len(adapters) != 0 {
		t.Fatalf("expected no adapters, got %d", len(adapters))
	}
}

func TestBuildAdapters_WebhookFromConfig(t *testing.T) {
	app, set := flagApp(t, nil)
	logger := log.NewLogger(nil).WithOutput(io.Discard)

	cfg := &benchconfig.Config{}
	cfg.Delivery.Webhook.URL = "https://hooks.example.com/duelbench"

	adapters := buildAdapters(cli.NewContext(app, set, nil), cfg, logger)
	if len(adapters) != 1 {
		t.Fatalf("expected 1 adapter, got %d", len(adapters))
	}
	for _, a := range adapters {
		_ = a.Close()
	}
}

func TestRunAction_MissingSubmission(t *testing.T) {
	app := newTestApp()

	err := app.Run([]string{"duelbench", "run", "--entry-url", "http://localhost:8080/"})
	exitErr := asExitCoder(t, err)
	if exitErr.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", exitErr.ExitCode())
	}
	if !strings.Contains(exitErr.Error(), "submission is required") {
		t.Errorf("error should mention submission, got: %v", exitErr)
	}
}

func TestRunAction_MissingEntryURL(t *testing.T) {
	app := newTestApp()

	err := app.Run([]string{"duelbench", "run", "--submission", "fighter-game-v2"})
	exitErr := asExitCoder(t, err)
	if exitErr.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", exitErr.ExitCode())
	}
	if !strings.Contains(exitErr.Error(), "entry URL is required") {
		t.Errorf("error should mention entry URL, got: %v", exitErr)
	}
}

func TestRunAction_ConfigFileNotFound(t *testing.T) {
	app := newTestApp()

	err := app.Run([]string{"duelbench", "run", "--config", "/nonexistent/duelbench.yaml"})
	exitErr := asExitCoder(t, err)
	if exitErr.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", exitErr.ExitCode())
	}
}

func TestRunAction_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "duelbench.yaml")
	yaml := `submission: fighter-game-v2
entry_url: http://localhost:8080/
services:
  - name: matchmaker
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp()
	err := app.Run([]string{"duelbench", "run", "--config", path})
	exitErr := asExitCoder(t, err)
	if exitErr.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", exitErr.ExitCode())
	}
	if !strings.Contains(exitErr.Error(), "command is required") {
		t.Errorf("error should surface validation failure, got: %v", exitErr)
	}
}

// flagApp builds a cli.App plus parsed flag set so helpers taking a
// *cli.Context can be exercised without running a command.
func flagApp(t *testing.T, values map[string]string) (*cli.App, *flag.FlagSet) {
	t.Helper()
	app := cli.NewApp()
	set := flag.NewFlagSet("run", flag.ContinueOnError)
	for _, f := range RunCommand().Flags {
		if err := f.Apply(set); err != nil {
			t.Fatalf("apply flag: %v", err)
		}
	}
	for name, value := range values {
		if err := set.Set(name, value); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	return app, set
}

// newTestApp creates a cli.App with RunCommand wired up and ExitErrHandler
// suppressed so errors are returned instead of calling os.Exit.
func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{RunCommand()}
	app.ExitErrHandler = func(*cli.Context, error) {} // suppress os.Exit
	return app
}

func asExitCoder(t *testing.T, err error) cli.ExitCoder {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var exitErr cli.ExitCoder
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected cli.ExitCoder, got %T: %v", err, err)
	}
	return exitErr
}
