// Package app drives the messaging application's windows over the DevTools
// protocol using go-rod.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.temporal.io/sdk/log"
)

// DefaultActionTimeout bounds every lookup and click
const DefaultActionTimeout = 15 * time.Second

// Strategy selects how ClickOnElement interprets its selector
type Strategy string

const (
	StrategyTestID  Strategy = "data-testid"
	StrategyClass   Strategy = "class"
	StrategyCSS     Strategy = "css"
	StrategyHasText Strategy = "has-text"
)

// ErrNotOpen is returned by page-level calls on a window that never opened
var ErrNotOpen = errors.New("window is not open")

// Window is one running application instance
type Window struct {
	Name string

	page     *rod.Page
	browser  *rod.Browser
	launcher *launcher.Launcher
	timeout  time.Duration
	logger   log.Logger

	closeOnce sync.Once
	closeErr  error
}

// TestIDSelector returns the CSS selector for a data-testid
func TestIDSelector(testID string) string {
	return fmt.Sprintf("[data-testid='%s']", testID)
}

// Selector builds the CSS selector for a strategy
func Selector(strategy Strategy, selector string) (string, error) {
	switch strategy {
	case StrategyTestID:
		return TestIDSelector(selector), nil
	case StrategyClass:
		return "." + strings.Join(strings.Fields(selector), "."), nil
	case StrategyCSS:
		return selector, nil
	default:
		return "", fmt.Errorf("unsupported selector strategy: %s", strategy)
	}
}

// textPattern matches text anywhere in an element's rendered text
func textPattern(text string) string {
	return regexp.QuoteMeta(text)
}

// exactTextPattern matches an element whose whole text is text
func exactTextPattern(text string) string {
	return "^\\s*" + regexp.QuoteMeta(text) + "\\s*$"
}

// Page exposes the underlying rod page
func (w *Window) Page() *rod.Page {
	return w.page
}

// find locates the first element matching selector whose text contains text.
// The returned element is bound to ctx, not to the lookup timeout.
func (w *Window) find(ctx context.Context, selector, pattern string) (*rod.Element, error) {
	p := w.page.Context(ctx).Timeout(w.timeout)
	defer p.CancelTimeout()

	var (
		el  *rod.Element
		err error
	)
	if pattern == "" {
		el, err = p.Element(selector)
	} else {
		el, err = p.ElementR(selector, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("element not found: %s %s: %w", selector, pattern, err)
	}
	return el.Context(ctx), nil
}

func (w *Window) click(el *rod.Element, rightClick bool) error {
	button := proto.InputMouseButtonLeft
	if rightClick {
		button = proto.InputMouseButtonRight
	}
	el = el.Timeout(w.timeout)
	defer el.CancelTimeout()
	return el.Click(button, 1)
}

// ClickOnElement clicks the first element matching selector
func (w *Window) ClickOnElement(ctx context.Context, strategy Strategy, selector string) error {
	if strategy == StrategyHasText {
		return w.ClickOnMatchingText(ctx, selector, false)
	}
	css, err := Selector(strategy, selector)
	if err != nil {
		return err
	}
	el, err := w.find(ctx, css, "")
	if err != nil {
		return err
	}
	return w.click(el, false)
}

// ClickOnTestIDWithText clicks the element with testID, restricted to those
// containing text when text is not empty
func (w *Window) ClickOnTestIDWithText(ctx context.Context, testID, text string, rightClick bool) error {
	pattern := ""
	if text != "" {
		pattern = textPattern(text)
	}
	el, err := w.find(ctx, TestIDSelector(testID), pattern)
	if err != nil {
		return err
	}
	return w.click(el, rightClick)
}

// ClickOnMatchingText clicks the first element whose text is exactly text
func (w *Window) ClickOnMatchingText(ctx context.Context, text string, rightClick bool) error {
	el, err := w.find(ctx, "*", exactTextPattern(text))
	if err != nil {
		return err
	}
	return w.click(el, rightClick)
}

// TypeIntoInput replaces the content of the input with testID
func (w *Window) TypeIntoInput(ctx context.Context, testID, text string) error {
	el, err := w.find(ctx, TestIDSelector(testID), "")
	if err != nil {
		return err
	}
	el = el.Timeout(w.timeout)
	defer el.CancelTimeout()

	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select input %s: %w", testID, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", testID, err)
	}
	return nil
}

// WaitForTestIDWithText waits until an element with testID (and text, if set)
// is visible and returns it
func (w *Window) WaitForTestIDWithText(ctx context.Context, testID, text string) (*rod.Element, error) {
	pattern := ""
	if text != "" {
		pattern = textPattern(text)
	}
	el, err := w.find(ctx, TestIDSelector(testID), pattern)
	if err != nil {
		return nil, err
	}
	visible := el.Timeout(w.timeout)
	defer visible.CancelTimeout()
	if err := visible.WaitVisible(); err != nil {
		return nil, fmt.Errorf("element %s not visible: %w", testID, err)
	}
	return el, nil
}

// WaitForMatchingText waits until an element whose text is exactly text exists
func (w *Window) WaitForMatchingText(ctx context.Context, text string) error {
	_, err := w.find(ctx, "*", exactTextPattern(text))
	return err
}

// IsVisible reports whether text is currently shown, without waiting
func (w *Window) IsVisible(ctx context.Context, text string) (bool, error) {
	has, _, err := w.page.Context(ctx).HasR("*", exactTextPattern(text))
	return has, err
}

// InnerText returns the rendered text of the element with testID
func (w *Window) InnerText(ctx context.Context, testID string) (string, error) {
	el, err := w.find(ctx, TestIDSelector(testID), "")
	if err != nil {
		return "", err
	}
	return el.Text()
}

// PressKey presses a named key such as "Enter" or "Escape"
func (w *Window) PressKey(ctx context.Context, name string) error {
	key, err := KeyFromName(name)
	if err != nil {
		return err
	}
	return w.page.Context(ctx).Keyboard.Press(key)
}

// CheckPathLight waits until the onion path indicator reports a working path
func (w *Window) CheckPathLight(ctx context.Context) error {
	el, err := w.find(ctx, TestIDSelector("path-light-container"), "")
	if err != nil {
		return err
	}
	el = el.Timeout(w.timeout)
	defer el.CancelTimeout()

	err = el.Wait(rod.Eval(`() => {
		const svg = this.querySelector('svg') || this;
		const color = getComputedStyle(svg).color || '';
		return color !== '' && !color.startsWith('rgb(255');
	}`))
	if err != nil {
		return fmt.Errorf("path light never turned green: %w", err)
	}
	return nil
}

// ScreenshotElement captures el in the given format
func (w *Window) ScreenshotElement(el *rod.Element, format proto.PageCaptureScreenshotFormat) ([]byte, error) {
	data, err := el.Screenshot(format, 90)
	if err != nil {
		return nil, fmt.Errorf("failed to take element screenshot: %w", err)
	}
	return data, nil
}

// SaveScreenshot writes a full window screenshot to dir/filename
func (w *Window) SaveScreenshot(ctx context.Context, dir, filename string) (string, error) {
	if w.page == nil {
		return "", ErrNotOpen
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	data, err := w.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("failed to take screenshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return path, nil
}

// SetOffline toggles network emulation for the window
func (w *Window) SetOffline(offline bool) error {
	if w.page == nil {
		return ErrNotOpen
	}
	if err := (proto.NetworkEnable{}).Call(w.page); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}
	err := proto.NetworkEmulateNetworkConditions{
		Offline:            offline,
		Latency:            0,
		DownloadThroughput: -1,
		UploadThroughput:   -1,
	}.Call(w.page)
	if err != nil {
		return fmt.Errorf("failed to set offline=%v: %w", offline, err)
	}
	return nil
}

// Close shuts the window and its application instance down. Safe to call
// more than once.
func (w *Window) Close() error {
	w.closeOnce.Do(func() {
		if w.logger != nil {
			w.logger.Info("Closing application window", "name", w.Name)
		}
		if w.page != nil {
			_ = w.page.Close()
		}
		if w.browser != nil {
			w.closeErr = w.browser.Close()
		}
		if w.launcher != nil {
			w.launcher.Kill()
		}
	})
	return w.closeErr
}

// KeyFromName converts a key name to a rod input key
func KeyFromName(name string) (input.Key, error) {
	switch strings.ToLower(name) {
	case "enter":
		return input.Enter, nil
	case "tab":
		return input.Tab, nil
	case "escape":
		return input.Escape, nil
	case "backspace":
		return input.Backspace, nil
	case "arrowup":
		return input.ArrowUp, nil
	case "arrowdown":
		return input.ArrowDown, nil
	case "arrowleft":
		return input.ArrowLeft, nil
	case "arrowright":
		return input.ArrowRight, nil
	default:
		// For single characters, return as-is
		if len(name) == 1 {
			return input.Key(name[0]), nil
		}
		return 0, fmt.Errorf("unsupported key: %q", name)
	}
}
