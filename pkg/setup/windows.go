package setup

import (
	"golang.org/x/sync/errgroup"

	"dev/bravebird/messenger-e2e/pkg/app"
)

// OpenWindows holds up to five windows of one scenario
type OpenWindows struct {
	WindowA *app.Window
	WindowB *app.Window
	WindowC *app.Window
	WindowD *app.Window
	WindowE *app.Window
}

// All returns the windows that are set, in order
func (o *OpenWindows) All() []*app.Window {
	var out []*app.Window
	for _, w := range []*app.Window{o.WindowA, o.WindowB, o.WindowC, o.WindowD, o.WindowE} {
		if w != nil {
			out = append(out, w)
		}
	}
	return out
}

// CloseAll closes every window that is set
func (o *OpenWindows) CloseAll() error {
	return ForceCloseAllWindows(o.All())
}

// ForceCloseAllWindows closes every non-nil window concurrently and returns
// the first error. All windows are attempted regardless of failures.
func ForceCloseAllWindows(windows []*app.Window) error {
	var g errgroup.Group
	for _, w := range windows {
		if w == nil {
			continue
		}
		w := w
		g.Go(w.Close)
	}
	return g.Wait()
}
