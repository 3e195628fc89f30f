package config

import (
	"fmt"
	"time"

	"github.com/duelbench/duelbench/orchestrate"
	"github.com/duelbench/duelbench/supervise"
	"github.com/duelbench/duelbench/types"
)

// Config represents a duelbench.yaml configuration file.
// All values are optional and act as defaults for duelbench run flags.
// CLI flags always override config values.
type Config struct {
	Submission  string              `yaml:"submission"`
	EntryURL    string              `yaml:"entry_url"`
	Headless    *bool               `yaml:"headless"`
	BrowserPath string              `yaml:"browser_path"`
	Services    []supervise.Service `yaml:"services"`
	Timeouts    TimeoutsConfig      `yaml:"timeouts"`
	StateCodes  *types.StateCodes   `yaml:"state_codes"`
	// BenignPatterns replaces the built-in diagnostic triage allowlist
	// when set.
	BenignPatterns []string       `yaml:"benign_patterns"`
	Evidence       EvidenceConfig `yaml:"evidence"`
	Delivery       DeliveryConfig `yaml:"delivery"`
	StaticResults  string         `yaml:"static_results"`
}

// TimeoutsConfig holds the waiting-stage bounds from the config file.
// Zero values fall back to the built-in defaults.
type TimeoutsConfig struct {
	ServiceProbe  Duration `yaml:"service_probe"`
	HookSurface   Duration `yaml:"hook_surface"`
	RoomCode      Duration `yaml:"room_code"`
	ReadySync     Duration `yaml:"ready_sync"`
	Monitor       Duration `yaml:"monitor"`
	MonitorTick   Duration `yaml:"monitor_tick"`
	CaptureEvery  Duration `yaml:"capture_every"`
	SnapshotBound Duration `yaml:"snapshot_bound"`
}

// Timeouts converts the YAML timeouts into the orchestrator's form.
func (t TimeoutsConfig) Timeouts() orchestrate.Timeouts {
	return orchestrate.Timeouts{
		ServiceProbe:  t.ServiceProbe.Duration,
		HookSurface:   t.HookSurface.Duration,
		RoomCode:      t.RoomCode.Duration,
		ReadySync:     t.ReadySync.Duration,
		Monitor:       t.Monitor.Duration,
		MonitorTick:   t.MonitorTick.Duration,
		CaptureEvery:  t.CaptureEvery.Duration,
		SnapshotBound: t.SnapshotBound.Duration,
	}
}

// EvidenceConfig holds evidence storage defaults from the config file.
type EvidenceConfig struct {
	// Backend selects the sink: "fs" (default) or "s3".
	Backend string `yaml:"backend"`
	// Dir is the filesystem evidence directory.
	Dir string `yaml:"dir"`
	// Bucket, Prefix, Region, Endpoint configure the s3 backend.
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	// Animate enables composite animation encoding after the run.
	Animate bool `yaml:"animate"`
}

// DeliveryConfig holds report delivery defaults from the config file.
type DeliveryConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
	Redis   RedisConfig   `yaml:"redis"`
}

// WebhookConfig configures HTTP report delivery.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// RedisConfig configures pub/sub report delivery.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Channel  string `yaml:"channel"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks service entries for the fields a run cannot proceed
// without. Everything else has a default.
func (c *Config) Validate() error {
	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		if svc.Command == "" {
			return fmt.Errorf("services[%d] (%s): command is required", i, svc.Name)
		}
		if svc.HealthURL == "" {
			return fmt.Errorf("services[%d] (%s): health_url is required", i, svc.Name)
		}
	}
	if c.Evidence.Backend == "s3" && c.Evidence.Bucket == "" {
		return fmt.Errorf("evidence: s3 backend requires a bucket")
	}
	return nil
}
