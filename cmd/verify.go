package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mobilepilot/config"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify that the configuration is valid",
	Long:  `Verify parses and validates the HCL configuration files. Path can be a file or directory; it defaults to --config.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}
		cfg, err := loadConfig(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var warnings []string
		for _, v := range cfg.Variables {
			resolved, _ := config.ResolveVariableValue(&v)
			if resolved == "" && v.Default == "" {
				warnings = append(warnings, fmt.Sprintf("variable '%s' has no default and no value set", v.Name))
			}
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Found %d variable(s)\n", len(cfg.Variables))
		for _, v := range cfg.Variables {
			resolved, _ := config.ResolveVariableValue(&v)
			if v.Sensitive() {
				if resolved != "" {
					fmt.Printf("  - %s (secret, set)\n", v.Name)
				} else {
					fmt.Printf("  - %s (secret, not set)\n", v.Name)
				}
			} else {
				fmt.Printf("  - %s = %q\n", v.Name, resolved)
			}
		}
		fmt.Printf("Found %d model(s)\n", len(cfg.Models))
		for _, m := range cfg.Models {
			fmt.Printf("  - %s (provider: %s, model: %s, agent: %s)\n", m.Name, m.Provider, m.Model, m.AgentType)
			if m.APIKey == config.DefaultAPIKey && m.Provider != config.ProviderOpenAI {
				warnings = append(warnings, fmt.Sprintf("model '%s' uses provider %s without an api_key", m.Name, m.Provider))
			}
		}
		fmt.Printf("Found %d device(s)\n", len(cfg.Devices))
		for _, d := range cfg.Devices {
			switch d.Type {
			case config.DeviceBrowser:
				fmt.Printf("  - %s (browser: %s, headless: %t)\n", d.Name, d.Browser, d.IsHeadless())
			case config.DevicePlugin:
				fmt.Printf("  - %s (plugin: %s)\n", d.Name, d.Plugin)
			default:
				fmt.Printf("  - %s (%s: %s)\n", d.Name, d.Type, d.URL)
			}
		}
		fmt.Printf("Found %d task(s)\n", len(cfg.Tasks))
		for _, t := range cfg.Tasks {
			app := t.App
			if t.BundleID != "" {
				app = t.BundleID
			}
			fmt.Printf("  - %s (app: %s, target: %d, max rounds: %d, dir: %s)\n", t.Name, app, t.TargetCount, t.MaxRounds, t.TaskDir)
			if t.TargetCount > t.MaxRounds {
				warnings = append(warnings, fmt.Sprintf("task '%s' cannot reach target_count %d within max_rounds %d", t.Name, t.TargetCount, t.MaxRounds))
			}
		}
		fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
		if cfg.Events != nil {
			fmt.Printf("Events: %s (queue: %d)\n", cfg.Events.URL, cfg.Events.QueueSize)
		}

		if len(warnings) > 0 {
			fmt.Printf("\nWarnings:\n")
			for _, w := range warnings {
				fmt.Printf("  - %s\n", w)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
