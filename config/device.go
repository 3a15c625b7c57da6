package config

import (
	"fmt"
	"time"
)

const (
	DeviceWDA     = "wda"
	DeviceBrowser = "browser"
	DevicePlugin  = "plugin"

	DefaultDeviceURL = "http://localhost:8100"
)

// Device selects and configures the gateway a task drives
type Device struct {
	Name    string `hcl:"name,label"`
	Type    string `hcl:"type,optional"`
	URL     string `hcl:"url,optional"`
	Timeout string `hcl:"timeout,optional"`
	Retries int    `hcl:"retries,optional"`
	Session string `hcl:"session,optional"`

	// browser
	Browser  string            `hcl:"browser,optional"`
	Headless *bool             `hcl:"headless,optional"`
	Endpoint string            `hcl:"endpoint,optional"`
	Apps     map[string]string `hcl:"apps,optional"`
	Width    int               `hcl:"width,optional"`
	Height   int               `hcl:"height,optional"`

	// plugin
	Plugin string `hcl:"plugin,optional"`
}

// Defaults fills in default values for unset fields
func (d *Device) Defaults() {
	if d.Type == "" {
		d.Type = DeviceWDA
	}
	if d.Type == DeviceWDA && d.URL == "" {
		d.URL = DefaultDeviceURL
	}
	if d.Timeout == "" {
		d.Timeout = "30s"
	}
	if d.Type == DeviceBrowser && d.Browser == "" {
		d.Browser = "chromium"
	}
}

func (d *Device) Validate() error {
	switch d.Type {
	case DeviceWDA, DeviceBrowser:
	case DevicePlugin:
		if d.Plugin == "" {
			return fmt.Errorf("plugin device requires 'plugin'")
		}
	default:
		return fmt.Errorf("unknown device type '%s' (expected wda, browser or plugin)", d.Type)
	}
	if d.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if d.Width < 0 || d.Height < 0 {
		return fmt.Errorf("width and height must not be negative")
	}
	_, err := parseDuration("timeout", d.Timeout)
	return err
}

func (d *Device) TimeoutDuration() time.Duration {
	t, _ := parseDuration("timeout", d.Timeout)
	return t
}

// IsHeadless defaults to true.
func (d *Device) IsHeadless() bool {
	return d.Headless == nil || *d.Headless
}
