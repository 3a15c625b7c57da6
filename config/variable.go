package config

import (
	"fmt"
	"strings"
)

// Variable is a `variable` block; reference it as vars.<name>.
type Variable struct {
	Name    string `hcl:"name,label"`
	Default string `hcl:"default,optional"`
	Secret  bool   `hcl:"secret,optional"`
}

func (v *Variable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variable name must not be empty")
	}
	if v.Secret && v.Default != "" {
		return fmt.Errorf("Invalid secret; Secret variable '%s' cannot have a default value set in config", v.Name)
	}
	return nil
}

// Sensitive reports whether the value must not be shown: declared secret, or
// named like a credential.
func (v *Variable) Sensitive() bool {
	return v.Secret || IsSecretName(v.Name)
}

var secretSuffixes = []string{"_key", "_token", "_secret", "_password", "_dsn"}

// IsSecretName reports whether a variable name looks like a credential.
func IsSecretName(name string) bool {
	name = strings.ToLower(name)
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
