package plugin

import (
	"context"
	"errors"
	"net/rpc"
	"time"

	"mobilepilot/device"
)

// GatewayRPC is the host-side device.Gateway that forwards to a plugin.
type GatewayRPC struct {
	client *rpc.Client
}

var _ device.Gateway = (*GatewayRPC)(nil)

// call honours ctx on the host side; the plugin gets the remaining budget.
func (g *GatewayRPC) call(ctx context.Context, method string, args Args, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	args.Timeout = timeoutOf(ctx)
	c := g.client.Go("Plugin."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-c.Done:
		return remoteError(c.Error)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Configure passes the device settings to the plugin, which builds its gateway.
func (g *GatewayRPC) Configure(settings map[string]string) error {
	return g.call(context.Background(), "Configure", Args{Settings: settings}, &Empty{})
}

func (g *GatewayRPC) Probe(ctx context.Context) (*device.Status, error) {
	var s device.Status
	if err := g.call(ctx, "Probe", Args{}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *GatewayRPC) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	err := g.call(ctx, "Screenshot", Args{}, &png)
	return png, err
}

func (g *GatewayRPC) Source(ctx context.Context) (string, error) {
	var s string
	err := g.call(ctx, "Source", Args{}, &s)
	return s, err
}

func (g *GatewayRPC) ActiveApp(ctx context.Context) (string, error) {
	var s string
	err := g.call(ctx, "ActiveApp", Args{}, &s)
	return s, err
}

func (g *GatewayRPC) WindowSize(ctx context.Context) (device.Size, error) {
	var s device.Size
	err := g.call(ctx, "WindowSize", Args{}, &s)
	return s, err
}

func (g *GatewayRPC) Tap(ctx context.Context, p device.Point) error {
	return g.call(ctx, "Tap", Args{Point: p}, &Empty{})
}

func (g *GatewayRPC) LongPress(ctx context.Context, p device.Point, d time.Duration) error {
	return g.call(ctx, "LongPress", Args{Point: p, Duration: d}, &Empty{})
}

func (g *GatewayRPC) Swipe(ctx context.Context, from, to device.Point, d time.Duration) error {
	return g.call(ctx, "Swipe", Args{Point: from, To: to, Duration: d}, &Empty{})
}

func (g *GatewayRPC) TypeText(ctx context.Context, text string) error {
	return g.call(ctx, "TypeText", Args{Text: text}, &Empty{})
}

func (g *GatewayRPC) Back(ctx context.Context) error {
	return g.call(ctx, "Back", Args{}, &Empty{})
}

func (g *GatewayRPC) Home(ctx context.Context) error {
	return g.call(ctx, "Home", Args{}, &Empty{})
}

func (g *GatewayRPC) Launch(ctx context.Context, bundleID string) error {
	return g.call(ctx, "Launch", Args{Text: bundleID}, &Empty{})
}

// Shutdown asks the plugin to release its gateway.
func (g *GatewayRPC) Shutdown() error {
	return g.call(context.Background(), "Close", Args{}, &Empty{})
}

var errNotConfigured = errors.New("gateway plugin is not configured")

// GatewayRPCServer runs in the plugin process.
type GatewayRPCServer struct {
	factory Factory
	impl    device.Gateway
}

func (s *GatewayRPCServer) gateway(args Args) (device.Gateway, context.Context, context.CancelFunc, error) {
	if s.impl == nil {
		return nil, nil, nil, errNotConfigured
	}
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if args.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, args.Timeout)
	}
	return s.impl, ctx, cancel, nil
}

func (s *GatewayRPCServer) Configure(args Args, _ *Empty) error {
	if s.factory == nil {
		return errors.New("gateway plugin has no factory")
	}
	if s.impl != nil {
		device.Close(s.impl)
	}
	gw, err := s.factory(args.Settings)
	if err != nil {
		return err
	}
	s.impl = gw
	return nil
}

func (s *GatewayRPCServer) Probe(args Args, reply *device.Status) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	st, err := gw.Probe(ctx)
	if err != nil {
		return err
	}
	*reply = *st
	return nil
}

func (s *GatewayRPCServer) Screenshot(args Args, reply *[]byte) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	*reply, err = gw.Screenshot(ctx)
	return err
}

func (s *GatewayRPCServer) Source(args Args, reply *string) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	*reply, err = gw.Source(ctx)
	return err
}

func (s *GatewayRPCServer) ActiveApp(args Args, reply *string) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	*reply, err = gw.ActiveApp(ctx)
	return err
}

func (s *GatewayRPCServer) WindowSize(args Args, reply *device.Size) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	*reply, err = gw.WindowSize(ctx)
	return err
}

func (s *GatewayRPCServer) Tap(args Args, _ *Empty) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	return gw.Tap(ctx, args.Point)
}

func (s *GatewayRPCServer) LongPress(args Args, _ *Empty) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	return gw.LongPress(ctx, args.Point, args.Duration)
}

func (s *GatewayRPCServer) Swipe(args Args, _ *Empty) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	return gw.Swipe(ctx, args.Point, args.To, args.Duration)
}

func (s *GatewayRPCServer) TypeText(args Args, _ *Empty) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	return gw.TypeText(ctx, args.Text)
}

func (s *GatewayRPCServer) Back(args Args, _ *Empty) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	return gw.Back(ctx)
}

func (s *GatewayRPCServer) Home(args Args, _ *Empty) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	return gw.Home(ctx)
}

func (s *GatewayRPCServer) Launch(args Args, _ *Empty) error {
	gw, ctx, cancel, err := s.gateway(args)
	if err != nil {
		return err
	}
	defer cancel()
	return gw.Launch(ctx, args.Text)
}

func (s *GatewayRPCServer) Close(_ Args, _ *Empty) error {
	if s.impl == nil {
		return nil
	}
	err := device.Close(s.impl)
	s.impl = nil
	return err
}
