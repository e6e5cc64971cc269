// Command e2e runs the user-action suite locally, without Temporal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/config"
	"dev/bravebird/messenger-e2e/pkg/logging"
	"dev/bravebird/messenger-e2e/pkg/models"
	"dev/bravebird/messenger-e2e/pkg/scenarios"
	"dev/bravebird/messenger-e2e/pkg/setup"
	"dev/bravebird/messenger-e2e/pkg/snapshot"
)

type options struct {
	configFile  string
	scenarios   []string
	update      string
	parallelism int
	list        bool
	jsonOut     bool
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "e2e:", err)
		os.Exit(2)
	}

	if opts.list {
		printScenarios(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := run(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "e2e:", err)
		os.Exit(1)
	}

	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
	} else {
		printResults(os.Stdout, results)
	}
	if !scenarios.Passed(results) {
		os.Exit(1)
	}
}

func parseOptions(args []string) (options, error) {
	var (
		opts  options
		names string
	)
	fs := flag.NewFlagSet("e2e", flag.ContinueOnError)
	fs.StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"), "TOML config file")
	fs.StringVar(&names, "run", "", "comma separated scenario names (default: all)")
	fs.StringVar(&opts.update, "update-snapshots", "", "baseline update mode: none, missing or all")
	fs.IntVar(&opts.parallelism, "parallel", 0, "scenarios run at once (default: suite.parallelism)")
	fs.BoolVar(&opts.list, "list", false, "list scenarios and exit")
	fs.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	for _, name := range strings.Split(names, ",") {
		if name = strings.TrimSpace(name); name != "" {
			opts.scenarios = append(opts.scenarios, name)
		}
	}
	if opts.update != "" {
		if _, err := snapshot.ParseUpdateMode(opts.update); err != nil {
			return options{}, err
		}
	}
	if opts.parallelism < 0 {
		return options{}, fmt.Errorf("invalid -parallel %d", opts.parallelism)
	}
	return opts, nil
}

func run(ctx context.Context, opts options) ([]models.ScenarioResult, error) {
	if opts.update != "" {
		os.Setenv("UPDATE_SNAPSHOTS", opts.update)
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireApp(); err != nil {
		return nil, err
	}
	if opts.parallelism > 0 {
		cfg.Suite.Parallelism = opts.parallelism
	}

	logger := logging.FromEnv()
	root, err := setup.DefaultConfigRoot()
	if err != nil {
		return nil, err
	}

	launcher := app.NewLauncher(app.LaunchConfig{
		Bin:           cfg.App.Bin,
		URL:           cfg.App.URL,
		Headless:      cfg.App.Headless,
		Environment:   cfg.Environment,
		MultiPrefix:   cfg.App.MultiPrefix,
		DataRoot:      root,
		ActionTimeout: cfg.App.ActionTimeout.Std(),
	}, logger)
	cleaner := setup.NewCleaner(root, app.DataDirPrefix(cfg.Environment, cfg.App.MultiPrefix), logger)

	runner := &scenarios.Runner{
		Fixtures:      setup.NewFixtures(launcher, cleaner, logger),
		Snapshots:     snapshot.NewMatcher(cfg.Snapshots.Dir, cfg.UpdateMode()),
		Verify:        cfg.Verification(),
		ScreenshotDir: cfg.Suite.ScreenshotDir,
		Parallelism:   cfg.Suite.Parallelism,
		Logger:        logger,
	}
	return runner.Run(ctx, opts.scenarios...)
}

func printScenarios(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tFIXTURE")
	for _, info := range scenarios.Infos() {
		fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Fixture)
	}
	tw.Flush()
}

func printResults(w io.Writer, results []models.ScenarioResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tDURATION\tATTEMPTS\tERROR")
	passed := 0
	for _, r := range results {
		if r.Status == models.StatusSuccess {
			passed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%d\t%s\n", r.Scenario, r.Status, r.Duration, len(r.Attempts), firstLine(r.ErrorMessage))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d passed, %d failed\n", passed, len(results)-passed)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
