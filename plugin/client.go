package plugin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"mobilepilot/device"
)

// GatewayClient wraps a go-plugin client and exposes the plugin's gateway.
type GatewayClient struct {
	*GatewayRPC
	client *goplugin.Client
	name   string
}

var _ device.Gateway = (*GatewayClient)(nil)

// GetPluginsDir returns the base directory for plugins
func GetPluginsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".mobilepilot", "plugins"), nil
}

// ResolvePath turns a plugin reference into an executable path. Bare names
// live in the plugins directory; anything with a separator is a path.
func ResolvePath(ref string) (string, error) {
	if strings.ContainsRune(ref, filepath.Separator) || strings.HasPrefix(ref, ".") {
		return filepath.Abs(ref)
	}
	dir, err := GetPluginsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ref), nil
}

// LoadGateway starts the plugin executable, dispenses its gateway and
// configures it with settings.
func LoadGateway(ref string, settings map[string]string, logger hclog.Logger) (*GatewayClient, error) {
	path, err := ResolvePath(ref)
	if err != nil {
		return nil, err
	}

	// Check if plugin exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("plugin not found: %s at %s", ref, path)
	}

	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "plugin",
			Output: os.Stderr,
			Level:  hclog.Error, // Only show errors
		})
	}

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap(nil),
		Cmd:              exec.Command(path),
		Logger:           logger.Named(filepath.Base(path)),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(GatewayPluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	gw, ok := raw.(*GatewayRPC)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin does not implement the gateway protocol")
	}

	if err := gw.Configure(settings); err != nil {
		client.Kill()
		return nil, fmt.Errorf("configure plugin: %w", err)
	}

	return &GatewayClient{
		GatewayRPC: gw,
		client:     client,
		name:       ref,
	}, nil
}

// Close releases the plugin's gateway and shuts the process down.
func (p *GatewayClient) Close() error {
	if p.client == nil {
		return nil
	}
	err := p.GatewayRPC.Shutdown()
	p.client.Kill()
	return err
}

// Name returns the plugin reference
func (p *GatewayClient) Name() string {
	return p.name
}
