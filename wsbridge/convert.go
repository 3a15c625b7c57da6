package wsbridge

import (
	"github.com/zclconf/go-cty/cty"

	"mobilepilot/config"
)

// InstanceInfo is the JSON-safe description of this instance's configuration.
// Secret variables are listed by name only.
type InstanceInfo struct {
	Models    []ModelInfo    `json:"models"`
	Devices   []DeviceInfo   `json:"devices"`
	Tasks     []TaskInfo     `json:"tasks"`
	Variables []VariableInfo `json:"variables"`
}

type ModelInfo struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	AgentType string `json:"agentType"`
}

type DeviceInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

type TaskInfo struct {
	Name      string `json:"name"`
	App       string `json:"app,omitempty"`
	BundleID  string `json:"bundleId,omitempty"`
	Model     string `json:"model,omitempty"`
	Device    string `json:"device,omitempty"`
	Target    int    `json:"target"`
	MaxRounds int    `json:"maxRounds"`
}

type VariableInfo struct {
	Name   string `json:"name"`
	Secret bool   `json:"secret"`
	Value  string `json:"value,omitempty"`
}

// ConfigToInstanceInfo converts the HCL config into an InstanceInfo.
func ConfigToInstanceInfo(cfg *config.Config) InstanceInfo {
	info := InstanceInfo{}
	if cfg == nil {
		return info
	}

	for _, m := range cfg.Models {
		info.Models = append(info.Models, ModelInfo{
			Name:      m.Name,
			Provider:  string(m.Provider),
			Model:     m.Model,
			AgentType: m.AgentType,
		})
	}

	for _, d := range cfg.Devices {
		di := DeviceInfo{Name: d.Name, Type: d.Type, URL: d.URL}
		if d.Type == config.DeviceBrowser {
			di.URL = d.Endpoint
		}
		info.Devices = append(info.Devices, di)
	}

	for _, t := range cfg.Tasks {
		info.Tasks = append(info.Tasks, TaskInfo{
			Name:      t.Name,
			App:       t.App,
			BundleID:  t.BundleID,
			Model:     t.Model,
			Device:    t.Device,
			Target:    t.TargetCount,
			MaxRounds: t.MaxRounds,
		})
	}

	for _, v := range cfg.Variables {
		vi := VariableInfo{Name: v.Name, Secret: v.Sensitive()}
		if !vi.Secret {
			if val, ok := cfg.ResolvedVars[v.Name]; ok && val.Type() == cty.String && !val.IsNull() {
				vi.Value = val.AsString()
			}
		}
		info.Variables = append(info.Variables, vi)
	}

	return info
}
