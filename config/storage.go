package config

import "fmt"

// StorageConfig defines the storage backend for run history
type StorageConfig struct {
	Backend string `hcl:"backend,optional"` // "memory", "sqlite" or "postgres"
	Path    string `hcl:"path,optional"`    // SQLite file path (default: ".mobilepilot/store.db")
	DSN     string `hcl:"dsn,optional"`     // Postgres connection string
}

// Defaults fills in default values for unset fields
func (s *StorageConfig) Defaults() {
	if s.Backend == "" {
		s.Backend = "memory"
	}
	if s.Path == "" {
		s.Path = ".mobilepilot/store.db"
	}
}

func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "", "memory", "sqlite":
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("postgres backend requires dsn")
		}
	default:
		return fmt.Errorf("unknown backend '%s' (expected memory, sqlite or postgres)", s.Backend)
	}
	return nil
}

// Analysis configures the extraction pipeline
type Analysis struct {
	Model             string `hcl:"model,optional"`
	MaxScreenshots    int    `hcl:"max_screenshots,optional"`
	RequestsPerMinute int    `hcl:"requests_per_minute,optional"`
	CacheSize         int    `hcl:"cache_size,optional"`
	// AfterRun runs the pipeline when a run ends, as `run --analyze` does.
	AfterRun bool `hcl:"after_run,optional"`
}

func (a *Analysis) Defaults() {
	if a.CacheSize == 0 {
		a.CacheSize = 256
	}
}

func (a *Analysis) Validate() error {
	if a.MaxScreenshots < 0 {
		return fmt.Errorf("max_screenshots must not be negative")
	}
	if a.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	if a.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	return nil
}

// Events configures the websocket event sink
type Events struct {
	URL       string `hcl:"url"`
	QueueSize int    `hcl:"queue_size,optional"`
	Token     string `hcl:"token,optional"`
}

func (e *Events) Defaults() {
	if e.QueueSize == 0 {
		e.QueueSize = 256
	}
}

func (e *Events) Validate() error {
	if e.URL == "" {
		return fmt.Errorf("url is required")
	}
	if e.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative")
	}
	return nil
}
