// Package fake provides a scripted, in-memory device.Gateway for tests and dry runs.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mobilepilot/device"
)

// Call records one gateway invocation.
type Call struct {
	Op       string
	Point    device.Point
	To       device.Point
	Text     string
	Duration time.Duration
}

// Gateway is a deterministic gateway. Screens and foreground apps are served
// from queues; the last entry repeats once a queue runs dry. Errors can be
// scripted per operation and per call number (1-based).
type Gateway struct {
	mu sync.Mutex

	Screens    [][]byte
	Sources    []string
	Apps       []string
	Size       device.Size
	ProbeReady bool

	// OnAction runs after every successful gesture, letting tests move the
	// fake UI forward (for example switch the foreground app after a launch).
	OnAction func(g *Gateway, c Call)

	errs   map[string]map[int]error
	always map[string]error
	from   map[string]int
	counts map[string]int
	calls  []Call
}

var _ device.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		Size:       device.DefaultWindowSize,
		ProbeReady: true,
		errs:       make(map[string]map[int]error),
		always:     make(map[string]error),
		from:       make(map[string]int),
		counts:     make(map[string]int),
	}
}

// FailOn makes the nth call (1-based) of op return err.
func (g *Gateway) FailOn(op string, n int, err error) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errs[op] == nil {
		g.errs[op] = make(map[int]error)
	}
	g.errs[op][n] = err
	return g
}

// FailFrom makes every call of op from the nth on return err.
func (g *Gateway) FailFrom(op string, n int, err error) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.always[op] = err
	g.from[op] = n
	return g
}

// SetApp replaces the foreground app queue with a single app.
func (g *Gateway) SetApp(bundleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Apps = []string{bundleID}
}

// Calls returns the recorded calls.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// Count returns how many times op was invoked.
func (g *Gateway) Count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts[op]
}

func (g *Gateway) enter(c Call) error {
	g.mu.Lock()
	g.counts[c.Op]++
	n := g.counts[c.Op]
	var err error
	if e, ok := g.errs[c.Op][n]; ok {
		err = e
	} else if e, ok := g.always[c.Op]; ok && n >= g.from[c.Op] {
		err = e
	}
	if err == nil {
		g.calls = append(g.calls, c)
	}
	hook := g.OnAction
	g.mu.Unlock()

	if err == nil && hook != nil && isGesture(c.Op) {
		hook(g, c)
	}
	return err
}

func isGesture(op string) bool {
	switch op {
	case "tap", "long_press", "swipe", "type", "back", "home", "launch":
		return true
	}
	return false
}

func next[T any](queue *[]T) T {
	var zero T
	if len(*queue) == 0 {
		return zero
	}
	v := (*queue)[0]
	if len(*queue) > 1 {
		*queue = (*queue)[1:]
	}
	return v
}

func (g *Gateway) Probe(ctx context.Context) (*device.Status, error) {
	if err := g.enter(Call{Op: "probe"}); err != nil {
		return nil, err
	}
	return &device.Status{Ready: g.ProbeReady, Message: "fake"}, nil
}

func (g *Gateway) Screenshot(ctx context.Context) ([]byte, error) {
	if err := g.enter(Call{Op: "screenshot"}); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	shot := next(&g.Screens)
	if shot == nil {
		return nil, fmt.Errorf("fake: no screenshot scripted")
	}
	return shot, nil
}

func (g *Gateway) Source(ctx context.Context) (string, error) {
	if err := g.enter(Call{Op: "source"}); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return next(&g.Sources), nil
}

func (g *Gateway) ActiveApp(ctx context.Context) (string, error) {
	if err := g.enter(Call{Op: "active_app"}); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return next(&g.Apps), nil
}

func (g *Gateway) WindowSize(ctx context.Context) (device.Size, error) {
	if err := g.enter(Call{Op: "window_size"}); err != nil {
		return device.DefaultWindowSize, err
	}
	return g.Size, nil
}

func (g *Gateway) Tap(ctx context.Context, p device.Point) error {
	return g.enter(Call{Op: "tap", Point: p})
}

func (g *Gateway) LongPress(ctx context.Context, p device.Point, d time.Duration) error {
	return g.enter(Call{Op: "long_press", Point: p, Duration: d})
}

func (g *Gateway) Swipe(ctx context.Context, from, to device.Point, d time.Duration) error {
	return g.enter(Call{Op: "swipe", Point: from, To: to, Duration: d})
}

func (g *Gateway) TypeText(ctx context.Context, text string) error {
	return g.enter(Call{Op: "type", Text: text})
}

func (g *Gateway) Back(ctx context.Context) error {
	from, to := device.BackGesture(g.Size)
	return g.enter(Call{Op: "back", Point: from, To: to})
}

func (g *Gateway) Home(ctx context.Context) error {
	return g.enter(Call{Op: "home"})
}

func (g *Gateway) Launch(ctx context.Context, bundleID string) error {
	return g.enter(Call{Op: "launch", Text: bundleID})
}
