// Command gateway_browser serves the playwright browser gateway as a
// go-plugin binary. Point a `device` block of type "plugin" at it to run the
// browser in its own process.
package main

import (
	"os"

	"github.com/hashicorp/go-hclog"

	"mobilepilot/device"
	"mobilepilot/device/browser"
	"mobilepilot/plugin"
)

func main() {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "gateway_browser",
		Level:      hclog.Info,
		Output:     os.Stderr,
		JSONFormat: true,
	})

	plugin.ServeGateway(func(settings map[string]string) (device.Gateway, error) {
		s, err := browser.ParseSettings(settings)
		if err != nil {
			return nil, err
		}
		if s.BrowserType == "" {
			s.BrowserType = "chromium"
		}
		logger.Info("configuring browser", "browser", s.BrowserType, "headless", s.Headless)
		return browser.New(s, logger.Named("browser")), nil
	}, logger)
}
