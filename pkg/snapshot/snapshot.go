// Package snapshot compares captured screenshots against stored baselines.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"dev/bravebird/messenger-e2e/pkg/verify"
)

// DefaultDir is the baseline folder, relative to the suite root.
const DefaultDir = "__screenshots__"

// UpdateMode controls when baselines are (re)written.
type UpdateMode string

const (
	UpdateNone    UpdateMode = "none"
	UpdateMissing UpdateMode = "missing"
	UpdateAll     UpdateMode = "all"
)

// ParseUpdateMode maps a config or env value onto an UpdateMode.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "false":
		return UpdateNone, nil
	case "missing":
		return UpdateMissing, nil
	case "all", "true":
		return UpdateAll, nil
	default:
		return "", fmt.Errorf("unknown snapshot update mode %q", s)
	}
}

var (
	// ErrBaselineMissing is returned when no baseline exists and the update mode
	// does not allow writing one.
	ErrBaselineMissing = errors.New("baseline missing")
	// ErrSizeMismatch is returned when the capture and baseline dimensions differ.
	ErrSizeMismatch = errors.New("image size differs from baseline")
)

// MismatchError reports how many pixels differ from the baseline.
type MismatchError struct {
	Name       string
	DiffPixels int
	Total      int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("snapshot %q: %d of %d pixels differ", e.Name, e.DiffPixels, e.Total)
}

// Matcher compares images against baselines stored under Dir/Group.
type Matcher struct {
	Dir   string
	Group string
	Mode  UpdateMode

	// Threshold is the per-channel colour distance (0..1) above which a pixel
	// counts as different.
	Threshold float64
	// MaxDiffPixelRatio is the fraction of differing pixels tolerated.
	MaxDiffPixelRatio float64
}

// NewMatcher returns a matcher with the default threshold of 0.2.
func NewMatcher(dir string, mode UpdateMode) *Matcher {
	if dir == "" {
		dir = DefaultDir
	}
	if mode == "" {
		mode = UpdateNone
	}
	return &Matcher{
		Dir:       dir,
		Mode:      mode,
		Threshold: 0.2,
	}
}

// ForGroup returns a copy of the matcher storing baselines under group.
func (m *Matcher) ForGroup(group string) *Matcher {
	cp := *m
	cp.Group = sanitize(group)
	return &cp
}

// Updating reports whether every comparison rewrites its baseline.
func (m *Matcher) Updating() bool {
	return m.Mode == UpdateAll
}

// Path returns the baseline file for name.
func (m *Matcher) Path(name string) string {
	return filepath.Join(m.Dir, m.Group, name)
}

// Match compares data against the named baseline, writing it first when the
// update mode asks for it.
func (m *Matcher) Match(name string, data []byte) error {
	path := m.Path(name)

	baseline, err := os.ReadFile(path)
	switch {
	case m.Mode == UpdateAll, m.Mode == UpdateMissing && errors.Is(err, os.ErrNotExist):
		return m.write(path, data)
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("snapshot %q: %w (%s)", name, ErrBaselineMissing, path)
	case err != nil:
		return fmt.Errorf("failed to read baseline %s: %w", path, err)
	}

	if bytes.Equal(baseline, data) {
		return nil
	}

	want, _, err := image.Decode(bytes.NewReader(baseline))
	if err != nil {
		return fmt.Errorf("failed to decode baseline %s: %w", path, err)
	}
	got, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode capture for %q: %w", name, err)
	}

	diff, total, err := m.diff(want, got)
	if err != nil {
		return fmt.Errorf("snapshot %q: %w", name, err)
	}
	if float64(diff) > m.MaxDiffPixelRatio*float64(total) {
		return &MismatchError{Name: name, DiffPixels: diff, Total: total}
	}
	return nil
}

// Compare adapts Match to the retry verifier.
func (m *Matcher) Compare(name string) verify.Compare[[]byte] {
	return func(data []byte) error {
		return m.Match(name, data)
	}
}

func (m *Matcher) diff(want, got image.Image) (int, int, error) {
	wb, gb := want.Bounds(), got.Bounds()
	if wb.Dx() != gb.Dx() || wb.Dy() != gb.Dy() {
		return 0, 0, fmt.Errorf("%w: baseline %dx%d, capture %dx%d", ErrSizeMismatch, wb.Dx(), wb.Dy(), gb.Dx(), gb.Dy())
	}

	limit := uint32(m.Threshold * 0xffff)
	diff := 0
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			r1, g1, b1, a1 := want.At(wb.Min.X+x, wb.Min.Y+y).RGBA()
			r2, g2, b2, a2 := got.At(gb.Min.X+x, gb.Min.Y+y).RGBA()
			if delta(r1, r2) > limit || delta(g1, g2) > limit || delta(b1, b2) > limit || delta(a1, a2) > limit {
				diff++
			}
		}
	}
	return diff, wb.Dx() * wb.Dy(), nil
}

func (m *Matcher) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create baseline dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write baseline %s: %w", path, err)
	}
	return nil
}

func delta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
