// Package device defines the capability surface the orchestrator drives: a
// Gateway issuing primitive UI operations against a phone (or a stand-in) and
// the geometry and UI-tree helpers shared by every implementation.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by gateways that cannot perform an operation.
var ErrUnsupported = errors.New("operation not supported by gateway")

// Point is a location in logical points, the coordinate space of the UI tree.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a window size in logical points.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultWindowSize is used when the device does not report a size.
var DefaultWindowSize = Size{Width: 375, Height: 812}

// Status is the result of a connectivity probe.
type Status struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
	Session string `json:"session,omitempty"`
}

// Gateway issues primitive operations to a device-automation endpoint.
// Implementations are not required to be safe for concurrent use; the
// orchestrator never has two calls in flight.
type Gateway interface {
	Probe(ctx context.Context) (*Status, error)

	Screenshot(ctx context.Context) ([]byte, error)
	Source(ctx context.Context) (string, error)
	ActiveApp(ctx context.Context) (string, error)
	WindowSize(ctx context.Context) (Size, error)

	Tap(ctx context.Context, p Point) error
	LongPress(ctx context.Context, p Point, d time.Duration) error
	Swipe(ctx context.Context, from, to Point, d time.Duration) error
	TypeText(ctx context.Context, text string) error
	Back(ctx context.Context) error
	Home(ctx context.Context) error
	Launch(ctx context.Context, bundleID string) error
}

// Closer is implemented by gateways that hold resources (sessions, browsers, plugin processes).
type Closer interface {
	Close() error
}

// Close releases the gateway if it holds resources.
func Close(g Gateway) error {
	if c, ok := g.(Closer); ok {
		return c.Close()
	}
	return nil
}
