package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Defaults returns the configuration used when no HCL file is given: one
// local OpenAI-compatible model, one WDA device and the mail task.
func Defaults() *Config {
	cfg := &Config{
		Models:  []Model{{Name: "default"}},
		Devices: []Device{{Name: "phone"}},
		Tasks:   []Task{{Name: "mail_pipeline"}},
	}
	cfg.Defaults()
	return cfg
}

// Defaults fills in unset fields of every block and adds the optional
// singleton blocks.
func (c *Config) Defaults() {
	for i := range c.Models {
		c.Models[i].Defaults()
	}
	for i := range c.Devices {
		c.Devices[i].Defaults()
	}
	for i := range c.Tasks {
		c.Tasks[i].Defaults()
	}
	if c.Analysis == nil {
		c.Analysis = &Analysis{}
	}
	c.Analysis.Defaults()
	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	c.Storage.Defaults()
	if c.Events != nil {
		c.Events.Defaults()
	}
}

// Environment variables that override loaded configuration.
const (
	EnvDeviceURL = "WDA_URL"
	EnvAPIBase   = "API_BASE"
	EnvModelName = "MODEL_NAME"
	EnvAPIKey    = "API_KEY"
	EnvAgentType = "AGENT_TYPE"
)

// ApplyEnv overrides model and device settings from the environment. The
// model variables apply to every model, WDA_URL to every WDA device.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for i := range c.Models {
		m := &c.Models[i]
		if v := getenv(EnvAPIBase); v != "" {
			m.BaseURL = v
		}
		if v := getenv(EnvModelName); v != "" {
			m.Model = v
		}
		if v := getenv(EnvAPIKey); v != "" {
			m.APIKey = v
		}
		if v := getenv(EnvAgentType); v != "" {
			m.AgentType = v
		}
	}
	if v := getenv(EnvDeviceURL); v != "" {
		for i := range c.Devices {
			if c.Devices[i].Type == DeviceWDA {
				c.Devices[i].URL = v
			}
		}
	}
}

// LoadDotEnv loads .env from each directory that has one. Variables already
// set in the environment win.
func LoadDotEnv(dirs ...string) error {
	for _, dir := range dirs {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return err
		}
	}
	return nil
}
