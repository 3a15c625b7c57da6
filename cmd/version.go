package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`MobilePilot %s

Drives an iOS device through WebDriverAgent with a vision-language model:
opens Mail, reads the newest emails, and reports what it found.

Define models, devices and tasks in HCL configuration files, or run
with the built-in defaults and environment overrides.

Get started:
  mobilepilot verify          Validate your configuration
  mobilepilot probe           Check that the device is reachable
  mobilepilot run [task]      Run a task
  mobilepilot analyze [dir]   Summarize the screenshots of a run`, Version)
}
