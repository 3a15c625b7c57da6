package plugin

import (
	"context"
	"errors"
	"net/rpc"
	"time"

	goplugin "github.com/hashicorp/go-plugin"

	"mobilepilot/device"
)

// Handshake is the handshake config for gateway plugins. It is a UX
// feature, not a security one: it stops the host from running arbitrary
// binaries as plugins.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MOBILEPILOT_PLUGIN",
	MagicCookieValue: "gateway",
}

// GatewayPluginName is the key gateway plugins are dispensed under.
const GatewayPluginName = "gateway"

// Factory builds a gateway from the settings of a `device` block.
type Factory func(settings map[string]string) (device.Gateway, error)

// GatewayPlugin implements goplugin.Plugin over net/rpc. Only the plugin
// side sets Factory.
type GatewayPlugin struct {
	Factory Factory
}

func (p *GatewayPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &GatewayRPCServer{factory: p.Factory}, nil
}

func (p *GatewayPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &GatewayRPC{client: c}, nil
}

// PluginMap is the map of plugins we can dispense
func PluginMap(factory Factory) map[string]goplugin.Plugin {
	return map[string]goplugin.Plugin{
		GatewayPluginName: &GatewayPlugin{Factory: factory},
	}
}

// Args carries every gateway call. Timeout is the caller's remaining
// context budget; zero means none.
type Args struct {
	Timeout  time.Duration
	Settings map[string]string
	Point    device.Point
	To       device.Point
	Duration time.Duration
	Text     string
}

// Empty is the reply of calls that return nothing. gob refuses structs
// without exported fields.
type Empty struct {
	OK bool
}

// remoteError reconstructs sentinel errors lost in the net/rpc string encoding.
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	var se rpc.ServerError
	if errors.As(err, &se) && string(se) == device.ErrUnsupported.Error() {
		return device.ErrUnsupported
	}
	return err
}

func timeoutOf(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return 0
}
