// SPDX-License-Identifier: Apache-2.0

// Package release loads and validates warehouse.toml, the description of
// which crates to release, for which targets, and with which key.
package release

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-version"
	"github.com/pelletier/go-toml/v2"

	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/manifest"
)

const (
	// MaxConfigSize bounds how much of a config file is read
	MaxConfigSize = 10 << 20

	// KeyGenerate asks the key manager to load or create the default keypair
	KeyGenerate = "generate"

	BackendCargo = "cargo"
	BackendCross = "cross"

	DefaultTarget  = "x86_64-unknown-linux-gnu"
	DefaultTimeout = 30 * time.Minute

	// VersionLatest pins a tool dependency to whatever cargo installs
	VersionLatest = "latest"

	ToolCargoAuditable = "cargo-auditable"
	ToolCross          = "cross"
)

// KnownTools lists the tool dependencies a config may pin
var KnownTools = []string{ToolCargoAuditable, ToolCross}

// archAliases expands bare architecture names to full target triples
var archAliases = map[string]string{
	"x86_64":  "x86_64-unknown-linux-gnu",
	"amd64":   "x86_64-unknown-linux-gnu",
	"aarch64": "aarch64-unknown-linux-gnu",
	"arm64":   "aarch64-unknown-linux-gnu",
	"i686":    "i686-unknown-linux-gnu",
	"armv7":   "armv7-unknown-linux-gnueabihf",
	"riscv64": "riscv64gc-unknown-linux-gnu",
}

var (
	tripleComponent = regexp.MustCompile(`^[a-z0-9_.]+$`)
	tripleArch      = regexp.MustCompile(`^(x86_64|i[3-6]86|aarch64|arm|thumb|riscv|powerpc|s390x|mips|wasm|loongarch|sparc|nvptx|bpf|hexagon|avr|m68k|csky|msp430)`)
	crateName       = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
)

// ConfigError reports an invalid release config. Field names the offending
// key using TOML dotted notation.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid release config")
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " = %q", e.Value)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Crate is one crate to release. Local crates set Path; crates.io crates set
// Name and Version and are fetched before building.
type Crate struct {
	Path    string   `toml:"path"`
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Bins    []string `toml:"bins"`

	// ManifestPath is the absolute Cargo.toml path, set once the crate
	// sources are on disk.
	ManifestPath string `toml:"-"`
}

// Remote reports whether the crate is fetched from crates.io
func (c *Crate) Remote() bool { return c.Path == "" }

// Resolve reads the manifest at manifestPath and fills in name, version and
// bins. Values already set must agree with the manifest.
func (c *Crate) Resolve(manifestPath string) error {
	pkg, err := manifest.Read(manifestPath)
	if err != nil {
		return err
	}
	if _, err := manifest.ParseVersion(pkg.Version); err != nil {
		return err
	}
	if c.Name != "" && c.Name != pkg.Name {
		return fmt.Errorf("manifest declares package %q", pkg.Name)
	}
	if c.Version != "" && c.Version != pkg.Version {
		return fmt.Errorf("manifest declares version %s", pkg.Version)
	}

	c.Name = pkg.Name
	c.Version = pkg.Version
	c.ManifestPath = manifestPath
	if len(c.Bins) == 0 {
		c.Bins = pkg.Bins
	}
	return nil
}

// Dependency pins an external tool
type Dependency struct {
	Name    string `toml:"-"`
	Version string `toml:"version"`
	Enabled *bool  `toml:"enabled"`
}

// IsEnabled reports whether the dependency is used; unset means enabled
func (d Dependency) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

// Latest reports whether the dependency is unpinned
func (d Dependency) Latest() bool { return d.Version == "" || d.Version == VersionLatest }

// Config is a validated release request
type Config struct {
	Crates       []Crate               `toml:"crates"`
	Targets      []string              `toml:"targets"`
	Key          string                `toml:"key"`
	Auditable    bool                  `toml:"auditable"`
	BaseURL      string                `toml:"base-url"`
	Layout       string                `toml:"layout"`
	Format       string                `toml:"format"`
	Backend      string                `toml:"backend"`
	Jobs         int                   `toml:"jobs"`
	Timeout      string                `toml:"timeout"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory relative crate paths are resolved against
	Dir string `toml:"-"`

	timeout time.Duration
}

// targetsProbe distinguishes an absent targets key from an empty one
type targetsProbe struct {
	Targets *[]string `toml:"targets"`
}

// Load reads, decodes and validates the config at path
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Reason: "cannot open config", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ConfigError{Reason: "cannot stat config", Err: err}
	}
	if info.Size() > MaxConfigSize {
		return nil, &ConfigError{Reason: fmt.Sprintf("config file is %d bytes, refusing to parse more than %d", info.Size(), MaxConfigSize)}
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, &ConfigError{Reason: "cannot read config", Err: err}
	}
	if len(data) > MaxConfigSize {
		return nil, &ConfigError{Reason: fmt.Sprintf("config file exceeds %d bytes", MaxConfigSize)}
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, &ConfigError{Reason: "cannot resolve config directory", Err: err}
	}

	cfg, err := Parse(data, dir)
	if err != nil {
		return nil, err
	}
	log.Debugf("Loaded release config %s: %d crate(s), %d target(s)", path, len(cfg.Crates), len(cfg.Targets))
	return cfg, nil
}

// Parse decodes and validates config data. Relative crate paths are
// resolved against dir.
func Parse(data []byte, dir string) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, decodeError(err)
	}

	var probe targetsProbe
	if err := toml.Unmarshal(data, &probe); err != nil {
		return nil, decodeError(err)
	}
	if probe.Targets == nil {
		cfg.Targets = []string{DefaultTarget}
	}

	cfg.Dir = dir
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeError(err error) error {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) && len(strict.Errors) > 0 {
		return &ConfigError{
			Field:  strings.Join(strict.Errors[0].Key(), "."),
			Reason: "unknown key",
		}
	}
	var decErr *toml.DecodeError
	if errors.As(err, &decErr) {
		row, col := decErr.Position()
		field := strings.Join(decErr.Key(), ".")
		return &ConfigError{Field: field, Reason: fmt.Sprintf("line %d column %d: %s", row, col, decErr.Error())}
	}
	return &ConfigError{Reason: "cannot decode config", Err: err}
}

func (c *Config) applyDefaults() {
	if c.Key == "" {
		c.Key = KeyGenerate
	}
	if c.Layout == "" {
		c.Layout = layout.Tree
	}
	if c.Format == "" {
		c.Format = layout.FormatTxz
	}
	if c.Backend == "" {
		c.Backend = BackendCargo
	}
	if c.Jobs == 0 {
		c.Jobs = runtime.NumCPU()
	}
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout.String()
	}
	for name, dep := range c.Dependencies {
		dep.Name = name
		if dep.Version == "" {
			dep.Version = VersionLatest
		}
		c.Dependencies[name] = dep
	}
	for i, t := range c.Targets {
		if full, ok := archAliases[strings.TrimSpace(t)]; ok {
			c.Targets[i] = full
		}
	}
}

// Validate checks every invariant. It stops at the first violation.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return &ConfigError{Field: "targets", Reason: "at least one target is required"}
	}
	seenTargets := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		if err := ValidateTriple(t); err != nil {
			return &ConfigError{Field: field, Value: t, Reason: err.Error()}
		}
		if seenTargets[t] {
			return &ConfigError{Field: field, Value: t, Reason: "duplicate target"}
		}
		seenTargets[t] = true
	}

	switch c.Format {
	case layout.FormatTxz, layout.FormatTgz:
	default:
		return &ConfigError{Field: "format", Value: c.Format, Reason: "must be txz or tgz"}
	}
	switch c.Layout {
	case layout.Tree, layout.GitHub:
	default:
		return &ConfigError{Field: "layout", Value: c.Layout, Reason: "must be tree or github"}
	}
	switch c.Backend {
	case BackendCargo, BackendCross:
	default:
		return &ConfigError{Field: "backend", Value: c.Backend, Reason: "must be cargo or cross"}
	}
	if c.Jobs < 1 {
		return &ConfigError{Field: "jobs", Value: fmt.Sprint(c.Jobs), Reason: "must be greater than zero"}
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return &ConfigError{Field: "timeout", Value: c.Timeout, Reason: "not a duration", Err: err}
	}
	if d <= 0 {
		return &ConfigError{Field: "timeout", Value: c.Timeout, Reason: "must be positive"}
	}
	c.timeout = d

	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "https://") && !strings.HasPrefix(c.BaseURL, "http://") {
		return &ConfigError{Field: "base-url", Value: c.BaseURL, Reason: "must be an http(s) URL"}
	}
	if strings.TrimSpace(c.Key) == "" {
		return &ConfigError{Field: "key", Reason: "must be a key path or \"generate\""}
	}

	if err := c.validateDependencies(); err != nil {
		return err
	}
	return c.validateCrates()
}

func (c *Config) validateDependencies() error {
	for _, name := range slices.Sorted(maps.Keys(c.Dependencies)) {
		dep := c.Dependencies[name]
		field := "dependencies." + name
		if !isKnownTool(name) {
			return &ConfigError{Field: field, Reason: "unknown tool, expected one of " + strings.Join(KnownTools, ", ")}
		}
		if err := ValidatePin(dep.Version); err != nil {
			return &ConfigError{Field: field + ".version", Value: dep.Version, Reason: err.Error()}
		}
	}
	if c.Auditable {
		if dep, ok := c.Dependencies[ToolCargoAuditable]; ok && !dep.IsEnabled() {
			return &ConfigError{Field: "dependencies.cargo-auditable.enabled", Value: "false", Reason: "auditable builds need cargo-auditable"}
		}
	}
	if c.Backend == BackendCross {
		if dep, ok := c.Dependencies[ToolCross]; ok && !dep.IsEnabled() {
			return &ConfigError{Field: "dependencies.cross.enabled", Value: "false", Reason: "the cross backend needs cross"}
		}
	}
	return nil
}

func (c *Config) validateCrates() error {
	if len(c.Crates) == 0 {
		return &ConfigError{Field: "crates", Reason: "at least one crate is required"}
	}

	seen := make(map[string]bool, len(c.Crates))
	for i := range c.Crates {
		cr := &c.Crates[i]
		field := fmt.Sprintf("crates[%d]", i)

		if cr.Remote() {
			if cr.Name == "" {
				return &ConfigError{Field: field + ".name", Reason: "crates without a path need a name"}
			}
			if !crateName.MatchString(cr.Name) {
				return &ConfigError{Field: field + ".name", Value: cr.Name, Reason: "not a valid crate name"}
			}
			if _, err := manifest.ParseVersion(cr.Version); err != nil {
				return &ConfigError{Field: field + ".version", Value: cr.Version, Reason: "crates.io crates need an exact semantic version", Err: err}
			}
		} else {
			p := cr.Path
			if !filepath.IsAbs(p) {
				p = filepath.Join(c.Dir, p)
			}
			info, err := os.Stat(p)
			if err != nil {
				return &ConfigError{Field: field + ".path", Value: cr.Path, Reason: "crate directory not found", Err: err}
			}
			if !info.IsDir() {
				return &ConfigError{Field: field + ".path", Value: cr.Path, Reason: "not a directory"}
			}
			if cr.Version != "" {
				if _, err := manifest.ParseVersion(cr.Version); err != nil {
					return &ConfigError{Field: field + ".version", Value: cr.Version, Reason: "not a semantic version", Err: err}
				}
			}
			if err := cr.Resolve(filepath.Join(p, manifest.FileName)); err != nil {
				return &ConfigError{Field: field + ".path", Value: cr.Path, Reason: "invalid crate manifest", Err: err}
			}
		}

		for j, bin := range cr.Bins {
			if strings.TrimSpace(bin) == "" || strings.ContainsAny(bin, `/\`) {
				return &ConfigError{Field: fmt.Sprintf("%s.bins[%d]", field, j), Value: bin, Reason: "not a binary name"}
			}
		}

		if seen[cr.Name] {
			return &ConfigError{Field: field + ".name", Value: cr.Name, Reason: "duplicate crate"}
		}
		seen[cr.Name] = true
	}
	return nil
}

// TimeoutDuration returns the per-task build timeout
func (c *Config) TimeoutDuration() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}

// Requirements lists the tools this release needs, sorted by name. Tools
// implied by auditable or the cross backend are included unpinned when the
// config does not mention them. Disabled dependencies are left out.
func (c *Config) Requirements() []Dependency {
	need := make(map[string]Dependency)
	for name, dep := range c.Dependencies {
		if dep.IsEnabled() {
			dep.Name = name
			need[name] = dep
		}
	}
	if c.Auditable {
		if _, ok := need[ToolCargoAuditable]; !ok {
			need[ToolCargoAuditable] = Dependency{Name: ToolCargoAuditable, Version: VersionLatest}
		}
	}
	if c.Backend == BackendCross {
		if _, ok := need[ToolCross]; !ok {
			need[ToolCross] = Dependency{Name: ToolCross, Version: VersionLatest}
		}
	}

	out := make([]Dependency, 0, len(need))
	for _, dep := range need {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Pins returns the version pin of every enabled dependency
func (c *Config) Pins() map[string]string {
	pins := make(map[string]string)
	for _, dep := range c.Requirements() {
		pins[dep.Name] = dep.Version
	}
	return pins
}

// ValidateTriple checks that t looks like a target triple: two to four
// dash-separated components with a known architecture first.
func ValidateTriple(t string) error {
	parts := strings.Split(t, "-")
	if len(parts) < 2 || len(parts) > 4 {
		return errors.New("target triple must have 2 to 4 dash-separated components")
	}
	for _, p := range parts {
		if !tripleComponent.MatchString(p) {
			return fmt.Errorf("invalid triple component %q", p)
		}
	}
	if !tripleArch.MatchString(parts[0]) {
		return fmt.Errorf("unknown architecture %q", parts[0])
	}
	return nil
}

// ValidatePin accepts "latest", an exact semantic version or a version
// requirement such as "^1.2" or ">= 0.5, < 0.6".
func ValidatePin(pin string) error {
	if pin == "" || pin == VersionLatest {
		return nil
	}
	if _, err := manifest.ParseVersion(pin); err == nil {
		return nil
	}
	if _, err := version.NewConstraint(normalizeRequirement(pin)); err != nil {
		return fmt.Errorf("expected %q, a semantic version or a version requirement", VersionLatest)
	}
	return nil
}

// normalizeRequirement maps cargo's caret requirement onto the pessimistic
// operator go-version understands. "^1.2" means ">= 1.2, < 2.0".
func normalizeRequirement(req string) string {
	parts := strings.Split(req, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "^") {
			v := strings.TrimSpace(strings.TrimPrefix(p, "^"))
			if sv, err := version.NewVersion(v); err == nil {
				segs := sv.Segments()
				upper := fmt.Sprintf("%d.0.0", segs[0]+1)
				if segs[0] == 0 && len(segs) > 1 {
					upper = fmt.Sprintf("0.%d.0", segs[1]+1)
				}
				p = fmt.Sprintf(">= %s, < %s", v, upper)
			}
		}
		parts[i] = p
	}
	return strings.Join(parts, ",")
}

// PinSatisfied reports whether installed satisfies pin
func PinSatisfied(pin, installed string) bool {
	if pin == "" || pin == VersionLatest {
		return true
	}
	iv, err := version.NewVersion(installed)
	if err != nil {
		return false
	}
	if pv, err := manifest.ParseVersion(pin); err == nil {
		return iv.Equal(pv)
	}
	c, err := version.NewConstraint(normalizeRequirement(pin))
	if err != nil {
		return false
	}
	return c.Check(iv)
}

func isKnownTool(name string) bool {
	for _, t := range KnownTools {
		if t == name {
			return true
		}
	}
	return false
}
