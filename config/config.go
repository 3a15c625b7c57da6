package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config holds all configuration
type Config struct {
	Variables []Variable `hcl:"variable,block"`
	Models    []Model    `hcl:"model,block"`
	Devices   []Device   `hcl:"device,block"`
	Tasks     []Task     `hcl:"task,block"`

	Analysis *Analysis      `hcl:"analysis,block"`
	Storage  *StorageConfig `hcl:"storage,block"`
	Events   *Events        `hcl:"events,block"`

	// ResolvedVars holds the resolved variable values for runtime use
	ResolvedVars map[string]cty.Value `hcl:"-"`
}

func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadAndValidate loads the config, fills in defaults, applies environment
// overrides and validates all components
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Defaults()
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config components are valid
func (c *Config) Validate() error {
	for _, v := range c.Variables {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable '%s': %w", v.Name, err)
		}
	}

	models := make(map[string]bool)
	for _, m := range c.Models {
		if models[m.Name] {
			return fmt.Errorf("model '%s': declared twice", m.Name)
		}
		models[m.Name] = true
		if err := m.Validate(); err != nil {
			return fmt.Errorf("model '%s': %w", m.Name, err)
		}
	}

	devices := make(map[string]bool)
	for _, d := range c.Devices {
		if devices[d.Name] {
			return fmt.Errorf("device '%s': declared twice", d.Name)
		}
		devices[d.Name] = true
		if err := d.Validate(); err != nil {
			return fmt.Errorf("device '%s': %w", d.Name, err)
		}
	}

	for _, t := range c.Tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("task '%s': %w", t.Name, err)
		}
		if t.Model != "" && !models[t.Model] {
			return fmt.Errorf("task '%s': unknown model '%s'", t.Name, t.Model)
		}
		if t.Device != "" && !devices[t.Device] {
			return fmt.Errorf("task '%s': unknown device '%s'", t.Name, t.Device)
		}
	}

	if c.Analysis != nil {
		if err := c.Analysis.Validate(); err != nil {
			return fmt.Errorf("analysis: %w", err)
		}
		if c.Analysis.Model != "" && !models[c.Analysis.Model] {
			return fmt.Errorf("analysis: unknown model '%s'", c.Analysis.Model)
		}
	}

	if c.Storage != nil {
		if err := c.Storage.Validate(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}

	if c.Events != nil {
		if err := c.Events.Validate(); err != nil {
			return fmt.Errorf("events: %w", err)
		}
	}

	return nil
}

func LoadFile(filename string) (*Config, error) {
	return loadFromFiles([]string{filename})
}

func LoadDir(dir string) (*Config, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return loadFromFiles(files)
}

// parsedBlocks holds all blocks extracted from a file in one pass
type parsedBlocks struct {
	Variables []*hcl.Block
	Models    []*hcl.Block
	Devices   []*hcl.Block
	Tasks     []*hcl.Block
	Analysis  []*hcl.Block
	Storage   []*hcl.Block
	Events    []*hcl.Block
}

// loadFromFiles implements staged loading: variables → models → devices →
// tasks / analysis / storage / events
func loadFromFiles(files []string) (*Config, error) {
	parser := hclparse.NewParser()
	var allParsedBlocks []parsedBlocks

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}

		content, diags := hclFile.Body.Content(&hcl.BodySchema{
			Blocks: []hcl.BlockHeaderSchema{
				{Type: "variable", LabelNames: []string{"name"}},
				{Type: "model", LabelNames: []string{"name"}},
				{Type: "device", LabelNames: []string{"name"}},
				{Type: "task", LabelNames: []string{"name"}},
				{Type: "analysis"},
				{Type: "storage"},
				{Type: "events"},
			},
		})
		if diags.HasErrors() {
			return nil, fmt.Errorf("read %s: %w", file, diags)
		}

		var pb parsedBlocks
		for _, block := range content.Blocks {
			switch block.Type {
			case "variable":
				pb.Variables = append(pb.Variables, block)
			case "model":
				pb.Models = append(pb.Models, block)
			case "device":
				pb.Devices = append(pb.Devices, block)
			case "task":
				pb.Tasks = append(pb.Tasks, block)
			case "analysis":
				pb.Analysis = append(pb.Analysis, block)
			case "storage":
				pb.Storage = append(pb.Storage, block)
			case "events":
				pb.Events = append(pb.Events, block)
			}
		}
		allParsedBlocks = append(allParsedBlocks, pb)
	}

	// Stage 1: variables (no context needed)
	var allVars []Variable
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Variables {
			var v Variable
			v.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, nil, &v)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode variable %s: %w", v.Name, diags)
			}
			allVars = append(allVars, v)
		}
	}
	varsCtx, resolvedVars, err := buildVarsContext(allVars)
	if err != nil {
		return nil, fmt.Errorf("resolving variables: %w", err)
	}

	// Stage 2: models
	var allModels []Model
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Models {
			var m Model
			m.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, varsCtx, &m)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode model %s: %w", m.Name, diags)
			}
			allModels = append(allModels, m)
		}
	}
	modelsCtx := withNames(varsCtx, "models", modelNames(allModels))

	// Stage 3: devices
	var allDevices []Device
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Devices {
			var d Device
			d.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, modelsCtx, &d)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode device %s: %w", d.Name, diags)
			}
			allDevices = append(allDevices, d)
		}
	}
	fullCtx := withNames(modelsCtx, "devices", deviceNames(allDevices))

	// Stage 4: tasks and the singleton blocks
	cfg := &Config{
		Variables:    allVars,
		Models:       allModels,
		Devices:      allDevices,
		ResolvedVars: resolvedVars,
	}
	for _, pb := range allParsedBlocks {
		for _, block := range pb.Tasks {
			var t Task
			t.Name = block.Labels[0]
			diags := gohcl.DecodeBody(block.Body, fullCtx, &t)
			if diags.HasErrors() {
				return nil, fmt.Errorf("decode task %s: %w", t.Name, diags)
			}
			cfg.Tasks = append(cfg.Tasks, t)
		}
		for _, block := range pb.Analysis {
			if cfg.Analysis != nil {
				return nil, fmt.Errorf("%s: only one analysis block is allowed", block.DefRange)
			}
			cfg.Analysis = &Analysis{}
			if diags := gohcl.DecodeBody(block.Body, fullCtx, cfg.Analysis); diags.HasErrors() {
				return nil, fmt.Errorf("decode analysis: %w", diags)
			}
		}
		for _, block := range pb.Storage {
			if cfg.Storage != nil {
				return nil, fmt.Errorf("%s: only one storage block is allowed", block.DefRange)
			}
			cfg.Storage = &StorageConfig{}
			if diags := gohcl.DecodeBody(block.Body, varsCtx, cfg.Storage); diags.HasErrors() {
				return nil, fmt.Errorf("decode storage: %w", diags)
			}
		}
		for _, block := range pb.Events {
			if cfg.Events != nil {
				return nil, fmt.Errorf("%s: only one events block is allowed", block.DefRange)
			}
			cfg.Events = &Events{}
			if diags := gohcl.DecodeBody(block.Body, varsCtx, cfg.Events); diags.HasErrors() {
				return nil, fmt.Errorf("decode events: %w", diags)
			}
		}
	}

	return cfg, nil
}

// buildVarsContext creates the eval context holding only `vars`.
func buildVarsContext(vars []Variable) (*hcl.EvalContext, map[string]cty.Value, error) {
	resolved, err := resolveVars(vars)
	if err != nil {
		return nil, nil, err
	}
	varsMap := make(map[string]cty.Value, len(resolved))
	for name, val := range resolved {
		varsMap[name] = cty.StringVal(val)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"vars": cty.ObjectVal(varsMap),
		},
	}, varsMap, nil
}

// withNames copies ctx and adds a namespace whose attributes evaluate to
// their own names, so `models.local` yields "local".
func withNames(ctx *hcl.EvalContext, namespace string, names []string) *hcl.EvalContext {
	values := make(map[string]cty.Value, len(names))
	for _, n := range names {
		values[n] = cty.StringVal(n)
	}

	newVars := make(map[string]cty.Value)
	for k, v := range ctx.Variables {
		newVars[k] = v
	}
	newVars[namespace] = cty.ObjectVal(values)

	return &hcl.EvalContext{
		Variables: newVars,
	}
}

func modelNames(models []Model) []string {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return names
}

func deviceNames(devices []Device) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names
}

// GetModel returns the named model, or the first one when name is empty.
func (c *Config) GetModel(name string) (*Model, error) {
	if name == "" && len(c.Models) > 0 {
		return &c.Models[0], nil
	}
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], nil
		}
	}
	return nil, fmt.Errorf("model '%s' not found", name)
}

// GetDevice returns the named device, or the first one when name is empty.
func (c *Config) GetDevice(name string) (*Device, error) {
	if name == "" && len(c.Devices) > 0 {
		return &c.Devices[0], nil
	}
	for i := range c.Devices {
		if c.Devices[i].Name == name {
			return &c.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("device '%s' not found", name)
}

// GetTask returns the named task, or the first one when name is empty.
func (c *Config) GetTask(name string) (*Task, error) {
	if name == "" && len(c.Tasks) > 0 {
		return &c.Tasks[0], nil
	}
	for i := range c.Tasks {
		if c.Tasks[i].Name == name {
			return &c.Tasks[i], nil
		}
	}
	return nil, fmt.Errorf("task '%s' not found", name)
}
