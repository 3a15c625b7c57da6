package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mobilepilot/device"
)

var (
	probeDevice    string
	probeDeviceURL string
	probeTimeout   time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the device is reachable",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runProbe(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runProbe(cmd *cobra.Command) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dev, err := cfg.GetDevice(probeDevice)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("device-url") {
		dev.URL = probeDeviceURL
	}

	gw, err := buildGateway(dev, newLogger(false))
	if err != nil {
		return err
	}
	defer device.Close(gw)

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	status, err := gw.Probe(ctx)
	if err != nil {
		return fmt.Errorf("device '%s' unreachable: %w", dev.Name, err)
	}
	if !status.Ready {
		return fmt.Errorf("device '%s' not ready: %s", dev.Name, status.Message)
	}

	fmt.Printf("Device '%s' (%s) is ready\n", dev.Name, dev.Type)
	if status.Message != "" {
		fmt.Printf("  status:  %s\n", status.Message)
	}
	if status.Session != "" {
		fmt.Printf("  session: %s\n", status.Session)
	}
	if size, err := gw.WindowSize(ctx); err == nil {
		fmt.Printf("  window:  %dx%d\n", size.Width, size.Height)
	}
	if app, err := gw.ActiveApp(ctx); err == nil && app != "" {
		fmt.Printf("  app:     %s\n", app)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVarP(&probeDevice, "device", "d", "", "Device to probe (default: the first configured)")
	probeCmd.Flags().StringVar(&probeDeviceURL, "device-url", "", "WebDriverAgent URL (overrides WDA_URL)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 15*time.Second, "How long to wait for the device")
}
