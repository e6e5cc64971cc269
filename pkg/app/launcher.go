package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.temporal.io/sdk/log"
)

// LaunchConfig describes how application windows are started
type LaunchConfig struct {
	// Bin is the application (or chromium) binary. Empty means rod's bundled browser.
	Bin string
	// URL is opened when the binary does not open a window of its own.
	URL           string
	Headless      bool
	Environment   string
	MultiPrefix   string
	DataRoot      string
	ActionTimeout time.Duration
}

// WindowOptions are per-window settings
type WindowOptions struct {
	Name    string
	Offline bool
}

// Launcher starts one application instance per window, each with its own
// data directory so several users can run side by side.
type Launcher struct {
	cfg    LaunchConfig
	logger log.Logger
}

// NewLauncher creates a launcher
func NewLauncher(cfg LaunchConfig, logger log.Logger) *Launcher {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// DataDirPrefix is the directory-name prefix shared by every instance of this
// environment. Leftovers carrying it are removed by the cleaner.
func DataDirPrefix(environment, multiPrefix string) string {
	return fmt.Sprintf("%s-%s", environment, multiPrefix)
}

// Open launches an application instance and returns its main window
func (l *Launcher) Open(ctx context.Context, opts WindowOptions) (*Window, error) {
	instance := fmt.Sprintf("%s-%s", l.cfg.MultiPrefix, uuid.New().String()[:8])
	dataDir := filepath.Join(l.cfg.DataRoot, fmt.Sprintf("%s-%s", l.cfg.Environment, instance))

	l.logger.Info("Launching application window", "name", opts.Name, "dataDir", dataDir, "headless", l.cfg.Headless, "offline", opts.Offline)

	ln := launcher.New().Context(ctx)

	// Use CHROME_BIN if set (Docker environment)
	if l.cfg.Bin != "" {
		ln = ln.Bin(l.cfg.Bin)
	} else if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		ln = ln.Bin(chromeBin)
	}

	ln = ln.Headless(l.cfg.Headless).
		UserDataDir(dataDir).
		Env(append(os.Environ(),
			"NODE_ENV="+l.cfg.Environment,
			"NODE_APP_INSTANCE="+instance,
		)...)

	// Additional flags for Docker compatibility
	ln = ln.Set("no-sandbox")
	ln = ln.Set("disable-gpu")
	ln = ln.Set("disable-dev-shm-usage")

	url, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch application: %w", err)
	}

	browser := rod.New().ControlURL(url).Context(ctx)
	if err := browser.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("failed to connect to application: %w", err)
	}

	page, err := l.mainPage(browser)
	if err != nil {
		browser.Close()
		ln.Kill()
		return nil, err
	}

	w := &Window{
		Name:     opts.Name,
		page:     page,
		browser:  browser,
		launcher: ln,
		timeout:  l.cfg.ActionTimeout,
		logger:   l.logger,
	}

	if opts.Offline {
		if err := w.SetOffline(true); err != nil {
			w.Close()
			return nil, err
		}
	}

	return w, nil
}

// mainPage picks the window the application opened itself, or opens URL
func (l *Launcher) mainPage(browser *rod.Browser) (*rod.Page, error) {
	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err == nil && string(info.Type) == "page" && info.URL != "about:blank" {
			return p, nil
		}
	}

	target := l.cfg.URL
	if target == "" {
		target = "about:blank"
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", target, err)
	}
	return page, nil
}
