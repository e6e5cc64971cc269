package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"dev/bravebird/messenger-e2e/pkg/snapshot"
	"dev/bravebird/messenger-e2e/pkg/verify"
)

// Duration decodes TOML strings such as "500ms" or "20s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds everything the runner, worker and api need.
type Config struct {
	// Environment is exported to the app as NODE_ENV and prefixes its data dirs.
	Environment string `toml:"environment" validate:"required"`

	App       AppConfig      `toml:"app"`
	Snapshots SnapshotConfig `toml:"snapshots"`
	Verify    VerifyConfig   `toml:"verify"`
	Suite     SuiteConfig    `toml:"suite"`
	Server    ServerConfig   `toml:"server"`
	Database  DatabaseConfig `toml:"database"`
	Temporal  TemporalConfig `toml:"temporal"`
}

type AppConfig struct {
	Bin           string   `toml:"bin"`
	URL           string   `toml:"url"`
	Headless      bool     `toml:"headless"`
	MultiPrefix   string   `toml:"multi_prefix" validate:"required"`
	ActionTimeout Duration `toml:"action_timeout" validate:"gt=0"`
}

type SnapshotConfig struct {
	Dir    string `toml:"dir" validate:"required"`
	Update string `toml:"update" validate:"oneof=none missing all"`
}

type VerifyConfig struct {
	TotalBudget Duration `toml:"total_budget" validate:"gt=0"`
	Interval    Duration `toml:"interval" validate:"gt=0"`
}

type SuiteConfig struct {
	Parallelism   int    `toml:"parallelism" validate:"gte=1,lte=5"`
	ScreenshotDir string `toml:"screenshot_dir" validate:"required"`
	RetryAttempts int    `toml:"retry_attempts" validate:"gte=1"`
}

type ServerConfig struct {
	Port string `toml:"port" validate:"required,numeric"`
}

type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type TemporalConfig struct {
	Host      string `toml:"host" validate:"required"`
	TaskQueue string `toml:"task_queue" validate:"required"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "test-integration",
		App: AppConfig{
			MultiPrefix:   "test-session",
			ActionTimeout: Duration(15 * time.Second),
		},
		Snapshots: SnapshotConfig{
			Dir:    snapshot.DefaultDir,
			Update: string(snapshot.UpdateNone),
		},
		Verify: VerifyConfig{
			TotalBudget: Duration(verify.DefaultTotalBudget),
			Interval:    Duration(verify.DefaultInterval),
		},
		Suite: SuiteConfig{
			Parallelism:   1,
			ScreenshotDir: "/tmp/screenshots",
			RetryAttempts: 2,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			DSN: "e2e:e2e@tcp(localhost:3306)/e2e?parseTime=true",
		},
		Temporal: TemporalConfig{
			Host:      "localhost:7233",
			TaskQueue: "messenger-e2e",
		},
	}
}

// Load applies defaults, then each TOML file in order, then the environment,
// and validates the result.
func Load(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if mode, err := snapshot.ParseUpdateMode(cfg.Snapshots.Update); err == nil {
		cfg.Snapshots.Update = string(mode)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireApp fails when nothing says how to open the application.
func (c *Config) RequireApp() error {
	if c.App.Bin == "" && c.App.URL == "" {
		return errors.New("invalid config: app.bin or app.url must be set (APP_BIN / APP_URL)")
	}
	return nil
}

// UpdateMode returns the parsed snapshot update mode.
func (c *Config) UpdateMode() snapshot.UpdateMode {
	mode, err := snapshot.ParseUpdateMode(c.Snapshots.Update)
	if err != nil {
		return snapshot.UpdateNone
	}
	return mode
}

// Verification returns the verifier settings, switching to the extended
// settle interval while baselines are being regenerated.
func (c *Config) Verification() verify.Config {
	return verify.Config{
		TotalBudget:           c.Verify.TotalBudget.Std(),
		Interval:              c.Verify.Interval.Std(),
		UseExtendedSettleMode: c.UpdateMode() == snapshot.UpdateAll,
	}
}

func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.Environment, "NODE_ENV")
	setString(&cfg.App.Bin, "APP_BIN")
	setString(&cfg.App.URL, "APP_URL")
	setString(&cfg.App.MultiPrefix, "MULTI_PREFIX")
	setString(&cfg.Snapshots.Dir, "SNAPSHOT_DIR")
	setString(&cfg.Snapshots.Update, "UPDATE_SNAPSHOTS")
	setString(&cfg.Suite.ScreenshotDir, "SCREENSHOT_DIR")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.DSN, "MYSQL_DSN")
	setString(&cfg.Temporal.Host, "TEMPORAL_HOST")
	setString(&cfg.Temporal.TaskQueue, "TEMPORAL_TASK_QUEUE")

	if v := os.Getenv("HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HEADLESS %q: %w", v, err)
		}
		cfg.App.Headless = b
	}
	if v := os.Getenv("SUITE_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SUITE_PARALLELISM %q: %w", v, err)
		}
		cfg.Suite.Parallelism = n
	}
	for key, dst := range map[string]*Duration{
		"ACTION_TIMEOUT":  &cfg.App.ActionTimeout,
		"VERIFY_BUDGET":   &cfg.Verify.TotalBudget,
		"VERIFY_INTERVAL": &cfg.Verify.Interval,
	} {
		if v := os.Getenv(key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
