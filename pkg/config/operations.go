// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ConfigScope indicates whether to operate on repo or user config
type ConfigScope int

const (
	ScopeRepo ConfigScope = iota // ./warehouse.yaml, committed to git
	ScopeUser                    // ~/.config/warehouse/config.yaml, personal
)

// Value sources reported by get and list
const (
	SourceDefault = "default"
	SourceEnv     = "env"
	SourceRepo    = "repo"
	SourceUser    = "user"
)

// ConfigValue is a resolved setting and where it came from
type ConfigValue struct {
	Key    string
	Value  interface{}
	Source string
	// Origin names the env var or file behind Source
	Origin string
}

// Display renders the value, masking secrets
func (cv ConfigValue) Display() string {
	if def := GetKeyDefinition(cv.Key); def != nil && def.Secret {
		return maskSecret(fmt.Sprint(cv.Value))
	}
	return fmt.Sprint(cv.Value)
}

// Describe renders the source for humans, e.g. "from ENV: WAREHOUSE_USE_TUI"
func (cv ConfigValue) Describe() string {
	switch cv.Source {
	case SourceEnv:
		return "from ENV: " + cv.Origin
	case SourceRepo, SourceUser:
		return "from " + cv.Origin
	}
	return SourceDefault
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + strings.Repeat("*", 8)
}

// String names the scope as the config commands do
func (s ConfigScope) String() string {
	if s == ScopeUser {
		return "user"
	}
	return "repo"
}

// ParseScope accepts "user" or "repo"
func ParseScope(name string) (ConfigScope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "user", "global":
		return ScopeUser, nil
	case "repo", "local":
		return ScopeRepo, nil
	}
	return 0, fmt.Errorf("invalid scope: %s (must be 'user' or 'repo')", name)
}

// ScopePath returns the config file written for scope
func ScopePath(scope ConfigScope) string {
	return getConfigPath(scope)
}

func getConfigPath(scope ConfigScope) string {
	if scope == ScopeUser {
		return filepath.Join(GlobalPaths.ConfigDir, ConfigFileName+DefaultConfigExt)
	}
	return filepath.Join(".", LocalConfigFile+DefaultConfigExt)
}

func getScopeName(scope ConfigScope) string { return scope.String() }

// Keys returns every registered key, sorted
func Keys() []string {
	keys := make([]string, 0, len(ConfigRegistry))
	for k := range ConfigRegistry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// readScope loads one config file into an isolated viper instance. A
// missing file yields an empty instance.
func readScope(scope ConfigScope) (*viper.Viper, bool, error) {
	path := getConfigPath(scope)
	v := viper.New()
	v.SetConfigType(ConfigType)
	v.SetConfigFile(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return v, false, nil
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, false, fmt.Errorf("failed to read %s config: %w", getScopeName(scope), err)
	}
	return v, true, nil
}

// SetConfigValue parses valueStr for the key's type, validates it and
// writes it to the scope's config file.
func SetConfigValue(key, valueStr string, scope ConfigScope) error {
	if err := ValidateKeyScope(key, scope); err != nil {
		return err
	}
	value, err := ParseValue(key, valueStr)
	if err != nil {
		return err
	}
	if err := ValidateValue(key, value, scope); err != nil {
		return err
	}

	v, _, err := readScope(scope)
	if err != nil {
		return err
	}
	v.Set(key, value)

	path := getConfigPath(scope)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GetConfigValue resolves a key and its source
func GetConfigValue(key string) (*ConfigValue, error) {
	if GetKeyDefinition(key) == nil && !viper.IsSet(key) {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	cv := ConfigValue{Key: key, Value: viper.Get(key)}
	cv.Source, cv.Origin = sourceOf(key)
	return &cv, nil
}

// UnsetConfigValue removes a key from the scope's config file. Tables left
// empty by the removal are dropped too.
func UnsetConfigValue(key string, scope ConfigScope) error {
	v, exists, err := readScope(scope)
	if err != nil {
		return err
	}
	path := getConfigPath(scope)
	if !exists {
		return fmt.Errorf("%s config file does not exist: %s", getScopeName(scope), path)
	}
	if !v.IsSet(key) {
		return fmt.Errorf("key '%s' not found in %s config", key, getScopeName(scope))
	}

	settings := v.AllSettings()
	if err := deleteNestedKey(settings, key); err != nil {
		return err
	}

	out := viper.New()
	out.SetConfigType(ConfigType)
	for k, val := range settings {
		out.Set(k, val)
	}
	if err := out.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ListConfigValues returns every known key plus any extra keys found in
// config files, sorted.
func ListConfigValues() ([]ConfigValue, error) {
	seen := make(map[string]bool)
	for _, key := range Keys() {
		seen[key] = true
	}
	for _, key := range flattenKeys(viper.AllSettings(), "") {
		seen[key] = true
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]ConfigValue, 0, len(keys))
	for _, key := range keys {
		cv := ConfigValue{Key: key, Value: viper.Get(key)}
		cv.Source, cv.Origin = sourceOf(key)
		values = append(values, cv)
	}
	return values, nil
}

// ParseValue converts a command line string to the key's registry type.
// Unknown keys fall back to guessing bool, then int, then string.
func ParseValue(key, s string) (interface{}, error) {
	typ := ""
	if def := GetKeyDefinition(key); def != nil {
		typ = def.Type
	}

	switch typ {
	case "bool":
		if b, ok := parseBool(s); ok {
			return b, nil
		}
		return nil, fmt.Errorf("key '%s' must be a boolean (true/false, yes/no, on/off)", key)
	case "int":
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("key '%s' must be an integer", key)
		}
		return n, nil
	case "string", "enum":
		return s, nil
	}

	if b, ok := parseBool(s); ok {
		return b, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	return s, nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "enable", "enabled", "1":
		return true, true
	case "false", "no", "off", "disable", "disabled", "0":
		return false, true
	}
	return false, false
}

// keyToEnvVar converts a config key to its environment variable name
func keyToEnvVar(key string) string {
	return strings.ToUpper(EnvPrefix + "_" + strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// sourceOf reports which layer supplies key, highest precedence first
func sourceOf(key string) (string, string) {
	if env := keyToEnvVar(key); os.Getenv(env) != "" {
		return SourceEnv, env
	}
	if v, ok, err := readScope(ScopeRepo); err == nil && ok && v.IsSet(key) {
		return SourceRepo, "./" + LocalConfigFile + DefaultConfigExt
	}
	if v, ok, err := readScope(ScopeUser); err == nil && ok && v.IsSet(key) {
		return SourceUser, getConfigPath(ScopeUser)
	}
	return SourceDefault, ""
}

// deleteNestedKey removes a dot-notation key from m and prunes parent
// tables that become empty.
func deleteNestedKey(m map[string]interface{}, key string) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid key: %s", key)
		}
	}
	if !deleteIn(m, parts) {
		return fmt.Errorf("key not found: %s", key)
	}
	return nil
}

func deleteIn(m map[string]interface{}, parts []string) bool {
	if len(parts) == 1 {
		if _, ok := m[parts[0]]; !ok {
			return false
		}
		delete(m, parts[0])
		return true
	}
	child, ok := m[parts[0]].(map[string]interface{})
	if !ok || !deleteIn(child, parts[1:]) {
		return false
	}
	if len(child) == 0 {
		delete(m, parts[0])
	}
	return true
}

// flattenKeys recursively flattens nested map keys with dot notation
func flattenKeys(m map[string]interface{}, prefix string) []string {
	var keys []string
	for k, v := range m {
		fullKey := k
		if prefix != "" {
			fullKey = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(nested, fullKey)...)
		} else {
			keys = append(keys, fullKey)
		}
	}
	return keys
}
