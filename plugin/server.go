package plugin

import (
	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

// ServeGateway runs a gateway plugin; call it from the plugin's main. It
// blocks until the host disconnects.
func ServeGateway(factory Factory, logger hclog.Logger) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap(factory),
		Logger:          logger,
	})
}
