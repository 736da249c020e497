// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// InitViper registers defaults from ConfigRegistry and WAREHOUSE_* env
// lookup. Precedence: flags > env > ./warehouse.yaml > user config > defaults.
func InitViper() {
	viper.SetConfigType(ConfigType)

	for key, def := range ConfigRegistry {
		viper.SetDefault(key, def.Default)
	}
	// Location defaults depend on the XDG dirs
	viper.SetDefault("signing.key.location", GlobalPaths.KeysDir)
	viper.SetDefault("release.work-dir", GlobalPaths.WorkDir)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// LoadConfig checks and merges the user config, then the repo config on
// top of it. Missing files are fine.
func LoadConfig() error {
	for _, scope := range []ConfigScope{ScopeUser, ScopeRepo} {
		v, exists, err := readScope(scope)
		if err != nil {
			return err
		}
		if err := checkScope(v, exists, scope); err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := viper.MergeConfigMap(v.AllSettings()); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", getScopeName(scope), err)
		}
		log.Debug("Loaded config", "scope", getScopeName(scope), "path", getConfigPath(scope))
	}
	return nil
}

// GetUseTUI returns the use-tui configuration value
func GetUseTUI() bool {
	return viper.GetBool("use-tui")
}

// GetLogLevel returns the log-level configuration value
func GetLogLevel() string {
	return viper.GetString("log-level")
}

// GetSigningKeyLocation returns the directory holding the current signing key
func GetSigningKeyLocation() string {
	return viper.GetString("signing.key.location")
}

// GetSigningHistoryLocation returns the signing.history.location configuration value
func GetSigningHistoryLocation() string {
	return viper.GetString("signing.history.location")
}

// GetSigningEncryptedKeys returns whether newly generated private keys are
// encrypted at rest
func GetSigningEncryptedKeys() bool {
	return viper.GetBool("signing.encrypted-keys")
}

// GetReleaseConfig returns the path of the release request file
func GetReleaseConfig() string {
	return viper.GetString("release.config")
}

// GetReleaseOutput returns the directory the published tree is written to
func GetReleaseOutput() string {
	return viper.GetString("release.output")
}

// GetReleaseWorkDir returns the scratch directory for builds and staging
func GetReleaseWorkDir() string {
	return viper.GetString("release.work-dir")
}

// GetReleaseJobs returns the worker count override (0 = not set)
func GetReleaseJobs() int {
	return viper.GetInt("release.jobs")
}

// GetReleaseTimeout returns the per-build timeout override (empty = not set)
func GetReleaseTimeout() string {
	return viper.GetString("release.timeout")
}

// GetReleasePatchManifests returns whether crate manifests get binstall metadata
func GetReleasePatchManifests() bool {
	return viper.GetBool("release.patch-manifests")
}

// GetPublishRepo returns the owner/repo used by `warehouse publish`
func GetPublishRepo() string {
	return viper.GetString("publish.repo")
}

// checkScope rejects forbidden keys, bad values and, in repo scope,
// missing required keys. Keys that belong in the other scope are logged.
func checkScope(v *viper.Viper, exists bool, scope ConfigScope) error {
	path := getConfigPath(scope)
	var keys []string
	if exists {
		keys = flattenKeys(v.AllSettings(), "")
	}

	for _, key := range keys {
		if err := ValidateKeyScope(key, scope); err != nil {
			return fmt.Errorf("invalid key in config file %s: %w", path, err)
		}
		if err := ValidateValue(key, v.Get(key), scope); err != nil {
			return fmt.Errorf("invalid value in config file %s: %w", path, err)
		}
		if other := otherScope(scope); GetKeyDefinition(key).forbiddenIn(other) {
			log.Debug("Key is usually kept in the other config", "key", key, "scope", getScopeName(scope), "usual", getScopeName(other))
		}
	}

	if scope != ScopeRepo {
		return nil
	}
	var missing []string
	for _, req := range GetRequiredRepoKeys() {
		if !slices.Contains(keys, req) {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required keys in repo config %s:\n  - %s\n\n"+
			"Run 'warehouse init' to generate a starting config.",
			path, strings.Join(missing, "\n  - "))
	}
	return nil
}

func otherScope(scope ConfigScope) ConfigScope {
	if scope == ScopeUser {
		return ScopeRepo
	}
	return ScopeUser
}

// BindFlags lets the global --use-tui and --log-level flags override
// every other config layer.
func BindFlags(flags *pflag.FlagSet) error {
	for _, name := range []string{"use-tui", "log-level"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}
