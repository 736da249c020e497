// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// ScopeConstraints narrows a key in one config scope
type ScopeConstraints struct {
	Forbidden  bool
	EnumValues []string // replaces the key's EnumValues in this scope
	Pattern    string   // replaces the key's Pattern in this scope
}

// ConfigKeyDefinition describes one setting in dot notation
type ConfigKeyDefinition struct {
	Key         string
	Type        string // "string", "bool", "enum", "int"
	Default     interface{}
	Description string
	Required    bool // must be present in repo config
	Secret      bool // masked by config get and list
	Dir         bool // names a directory; repo scope requires a path inside the repo
	NonNegative bool

	EnumValues []string
	Pattern    string

	UserConstraints *ScopeConstraints
	RepoConstraints *ScopeConstraints
}

// constraints returns the key's overrides for scope, or nil
func (def ConfigKeyDefinition) constraints(scope ConfigScope) *ScopeConstraints {
	if scope == ScopeUser {
		return def.UserConstraints
	}
	return def.RepoConstraints
}

// forbiddenIn reports whether the key may not be written in scope
func (def ConfigKeyDefinition) forbiddenIn(scope ConfigScope) bool {
	c := def.constraints(scope)
	return c != nil && c.Forbidden
}

func (def ConfigKeyDefinition) enumFor(scope ConfigScope) []string {
	if c := def.constraints(scope); c != nil && c.EnumValues != nil {
		return c.EnumValues
	}
	return def.EnumValues
}

func (def ConfigKeyDefinition) patternFor(scope ConfigScope) string {
	if c := def.constraints(scope); c != nil && c.Pattern != "" {
		return c.Pattern
	}
	return def.Pattern
}

// ConfigRegistry lists every known key. A key without scope constraints
// is accepted in both scopes under the same rules.
var ConfigRegistry = map[string]ConfigKeyDefinition{
	"use-tui": {
		Key:         "use-tui",
		Type:        "bool",
		Default:     true,
		Description: "Use TUI for interactive prompts",
	},

	"log-level": {
		Key:         "log-level",
		Type:        "enum",
		Default:     "debug",
		Description: "Log verbosity level",
		EnumValues:  []string{"disabled", "debug", "info", "warn", "error"},
	},

	"github-token": {
		Key:         "github-token",
		Type:        "string",
		Default:     "",
		Description: "GitHub personal access token used by 'warehouse publish'",
		Secret:      true,
		RepoConstraints: &ScopeConstraints{
			Forbidden: true,
		},
	},

	"signing.key.location": {
		Key:         "signing.key.location",
		Type:        "string",
		Default:     "", // Set in InitViper() using GlobalPaths.KeysDir
		Description: "Directory for the current signing key (absolute for user config, relative to repo root for repo config)",
		Dir:         true,
	},

	"signing.history.location": {
		Key:         "signing.history.location",
		Type:        "string",
		Default:     "keys/history",
		Description: "Directory for public key history (relative to the parent of the key directory)",
		Dir:         true,
	},

	"signing.encrypted-keys": {
		Key:         "signing.encrypted-keys",
		Type:        "bool",
		Default:     true,
		Description: "Encrypt generated private keys at rest (scrypt, minisign format)",
		RepoConstraints: &ScopeConstraints{
			Forbidden: true, // Key storage policy is a per-machine decision
		},
	},

	"release.config": {
		Key:         "release.config",
		Type:        "string",
		Default:     ReleaseConfigFile,
		Description: "Release request file read by 'warehouse release'",
		Pattern:     "\\.toml$",
	},

	"release.output": {
		Key:         "release.output",
		Type:        "string",
		Default:     "dist",
		Description: "Directory the published tree (archives, signatures, index.json) is written to",
		Dir:         true,
	},

	"release.work-dir": {
		Key:         "release.work-dir",
		Type:        "string",
		Default:     "", // Set in InitViper() using GlobalPaths.WorkDir
		Description: "Scratch directory for build outputs and staged archives",
		Dir:         true,
		RepoConstraints: &ScopeConstraints{
			Forbidden: true,
		},
	},

	"release.jobs": {
		Key:         "release.jobs",
		Type:        "int",
		Default:     0,
		Description: "Concurrent builds (0 = value from warehouse.toml, then CPU count)",
		NonNegative: true,
	},

	"release.timeout": {
		Key:         "release.timeout",
		Type:        "string",
		Default:     "",
		Description: "Per-build timeout as a Go duration (empty = value from warehouse.toml)",
		Pattern:     "^$|^([0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h))+$",
	},

	"release.patch-manifests": {
		Key:         "release.patch-manifests",
		Type:        "bool",
		Default:     true,
		Description: "Write binstall metadata into each crate's Cargo.toml",
	},

	"publish.repo": {
		Key:         "publish.repo",
		Type:        "string",
		Default:     "",
		Description: "GitHub repository (owner/name) that receives release assets",
		Pattern:     "^$|^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$",
	},
}

// GetKeyDefinition returns the definition for a key, or nil if not found
func GetKeyDefinition(key string) *ConfigKeyDefinition {
	if def, ok := ConfigRegistry[key]; ok {
		return &def
	}
	return nil
}

// GetRequiredRepoKeys returns all configuration keys that must be present in
// repo scope. Every key currently has a usable default.
func GetRequiredRepoKeys() []string {
	var required []string
	for key, def := range ConfigRegistry {
		if def.Required {
			required = append(required, key)
		}
	}
	sort.Strings(required)
	return required
}

// ValidateKeyScope rejects unknown keys and keys forbidden in scope
func ValidateKeyScope(key string, scope ConfigScope) error {
	def := GetKeyDefinition(key)
	if def == nil {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if !def.forbiddenIn(scope) {
		return nil
	}
	if scope == ScopeUser {
		return fmt.Errorf("key '%s' cannot be set in user config\n\n"+
			"Hint: drop --global to write ./%s%s:\n  warehouse config set %s <value>",
			key, LocalConfigFile, DefaultConfigExt, key)
	}
	return fmt.Errorf("key '%s' is a per-machine setting and cannot be set in repo config\n\n"+
		"Hint: write it to your user config instead:\n  warehouse config set --global %s <value>\n\n"+
		"Keep it out of version control.", key, key)
}

// ValidateValue checks a parsed value against the key's type and the
// constraints that apply in scope.
func ValidateValue(key string, value interface{}, scope ConfigScope) error {
	def := GetKeyDefinition(key)
	if def == nil {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	switch def.Type {
	case "bool":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("key '%s' must be a boolean", key)
		}
	case "int":
		n, ok := value.(int)
		if !ok {
			return fmt.Errorf("key '%s' must be an integer", key)
		}
		if def.NonNegative && n < 0 {
			return fmt.Errorf("key '%s' must not be negative", key)
		}
	case "string", "enum":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("key '%s' must be a string", key)
		}
		if def.Type == "enum" {
			allowed := def.enumFor(scope)
			if !slices.Contains(allowed, str) {
				return fmt.Errorf("key '%s' must be one of %v in %s scope (got '%s')", key, allowed, getScopeName(scope), str)
			}
			break
		}
		if pattern := def.patternFor(scope); pattern != "" {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("key '%s' has a bad pattern: %w", key, err)
			}
			if !re.MatchString(str) {
				return fmt.Errorf("key '%s' value '%s' does not match required format for %s scope", key, str, getScopeName(scope))
			}
		}
		if def.Dir && str != "" {
			if err := validateDir(str, scope == ScopeRepo); err != nil {
				return fmt.Errorf("key '%s': %w", key, err)
			}
		}
	}
	return nil
}

// validateDir accepts a directory or a path that does not exist yet. Repo
// config paths must also stay inside the repository.
func validateDir(path string, inRepo bool) error {
	cleaned := filepath.Clean(path)
	if inRepo {
		if filepath.IsAbs(cleaned) {
			return fmt.Errorf("path must be relative to repository root")
		}
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return fmt.Errorf("path must not traverse outside repository (no '../' allowed)")
		}
	}

	info, err := os.Stat(cleaned)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return fmt.Errorf("cannot access path: %w", err)
	case !info.IsDir():
		return fmt.Errorf("path points to an existing file; must be a directory or non-existent path")
	}
	return nil
}
