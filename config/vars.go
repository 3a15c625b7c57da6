package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// VarsFileEnv points the vars file somewhere other than ~/.mobilepilot/vars.txt.
	VarsFileEnv = "MOBILEPILOT_VARS_FILE"
	// VarEnvPrefix marks environment variables that set a config variable:
	// MOBILEPILOT_VAR_API_KEY sets vars.api_key.
	VarEnvPrefix = "MOBILEPILOT_VAR_"
)

func GetVarsFilePath() (string, error) {
	if p := os.Getenv(VarsFileEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mobilepilot", "vars.txt"), nil
}

// LoadVarsFromFile reads the vars file. A missing file is empty.
func LoadVarsFromFile() (map[string]string, error) {
	path, err := GetVarsFilePath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vars, nil
}

// SaveVarsToFile replaces the vars file. It is only readable by the owner.
func SaveVarsToFile(vars map[string]string) error {
	path, err := GetVarsFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	content, err := godotenv.Marshal(vars)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vars-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func GetVar(name string) (string, error) {
	vars, err := LoadVarsFromFile()
	if err != nil {
		return "", err
	}
	value, ok := vars[name]
	if !ok {
		return "", fmt.Errorf("variable '%s' not found", name)
	}
	return value, nil
}

func SetVar(name, value string) error {
	vars, err := LoadVarsFromFile()
	if err != nil {
		return err
	}
	vars[name] = value
	return SaveVarsToFile(vars)
}

func DeleteVar(name string) error {
	vars, err := LoadVarsFromFile()
	if err != nil {
		return err
	}
	if _, ok := vars[name]; !ok {
		return fmt.Errorf("variable '%s' not found", name)
	}
	delete(vars, name)
	return SaveVarsToFile(vars)
}

func ListVars() ([]string, error) {
	vars, err := LoadVarsFromFile()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func envVar(name string) (string, bool) {
	return os.LookupEnv(VarEnvPrefix + strings.ToUpper(name))
}

// ResolveVariableValue returns the effective value for a variable.
// Priority: MOBILEPILOT_VAR_<NAME> > vars file > default from config
func ResolveVariableValue(v *Variable) (string, error) {
	if val, ok := envVar(v.Name); ok {
		return val, nil
	}
	fileVars, err := LoadVarsFromFile()
	if err != nil {
		return "", err
	}
	if fileValue, ok := fileVars[v.Name]; ok {
		return fileValue, nil
	}
	return v.Default, nil
}

// resolveVars resolves every declared variable with one read of the vars file.
func resolveVars(vars []Variable) (map[string]string, error) {
	fileVars, err := LoadVarsFromFile()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(vars))
	for _, v := range vars {
		if val, ok := envVar(v.Name); ok {
			out[v.Name] = val
		} else if fileValue, ok := fileVars[v.Name]; ok {
			out[v.Name] = fileValue
		} else {
			out[v.Name] = v.Default
		}
	}
	return out, nil
}
