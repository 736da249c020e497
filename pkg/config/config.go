// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

const (
	GitHubAPI  = "https://api.github.com"
	GitHubRepo = "Work-Fort/Warehouse" // Source of self-updates

	appName = "warehouse"

	EnvPrefix        = "WAREHOUSE" // Environment variable prefix for Viper
	ConfigFileName   = "config"    // Config file name for XDG config dir (without extension)
	LocalConfigFile  = "warehouse" // Config file name for current directory (without extension)
	ConfigType       = "yaml"      // Config file type
	DefaultConfigExt = ".yaml"     // Default config file extension

	// ReleaseConfigFile is the default release request read by `warehouse release`
	ReleaseConfigFile = "warehouse.toml"
)

// Paths are the XDG locations warehouse keeps state in
type Paths struct {
	DataDir   string // $XDG_DATA_HOME/warehouse: keys, debug.log
	CacheDir  string // $XDG_CACHE_HOME/warehouse
	ConfigDir string // $XDG_CONFIG_HOME/warehouse

	KeysDir    string // private keys, 0700
	WorkDir    string // build scratch space
	SourcesDir string // crates fetched from crates.io
}

// GlobalPaths is resolved once at startup
var GlobalPaths *Paths

func init() {
	GlobalPaths = GetPaths()
}

// GetPaths resolves the XDG base directories, falling back to the
// defaults under $HOME. Without a home directory the fallbacks are
// relative to the working directory.
func GetPaths() *Paths {
	home, _ := os.UserHomeDir()
	xdg := func(env string, fallback ...string) string {
		if dir := os.Getenv(env); filepath.IsAbs(dir) {
			return filepath.Join(dir, appName)
		}
		return filepath.Join(append(append([]string{home}, fallback...), appName)...)
	}

	data := xdg("XDG_DATA_HOME", ".local", "share")
	cache := xdg("XDG_CACHE_HOME", ".cache")
	return &Paths{
		DataDir:    data,
		CacheDir:   cache,
		ConfigDir:  xdg("XDG_CONFIG_HOME", ".config"),
		KeysDir:    filepath.Join(data, "keys"),
		WorkDir:    filepath.Join(cache, "work"),
		SourcesDir: filepath.Join(cache, "sources"),
	}
}

// IsRepoMode returns true when a warehouse.yaml exists in the current
// working directory, meaning the CLI is operating within a managed repository.
func IsRepoMode() bool {
	_, err := os.Stat(filepath.Join(".", LocalConfigFile+DefaultConfigExt))
	return err == nil
}

// InitDirs creates the XDG directories. The key directory is private.
func InitDirs() error {
	p := GlobalPaths
	for _, d := range []struct {
		path string
		mode os.FileMode
	}{
		{p.DataDir, 0755},
		{p.ConfigDir, 0755},
		{p.CacheDir, 0755},
		{p.WorkDir, 0755},
		{p.SourcesDir, 0755},
		{p.KeysDir, 0700},
	} {
		if err := os.MkdirAll(d.path, d.mode); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d.path, err)
		}
	}
	return nil
}

// HostTriple returns the Rust target triple for the running host, or an
// error when the platform has no known mapping.
func HostTriple() (string, error) {
	var arch string
	switch runtime.GOARCH {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}

	switch runtime.GOOS {
	case "linux":
		return arch + "-unknown-linux-gnu", nil
	case "darwin":
		return arch + "-apple-darwin", nil
	case "windows":
		return arch + "-pc-windows-msvc", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// GetGitHubToken returns github-token. Repo config may not hold it, so it
// comes from WAREHOUSE_GITHUB_TOKEN or the user config.
func GetGitHubToken() string {
	return viper.GetString("github-token")
}
