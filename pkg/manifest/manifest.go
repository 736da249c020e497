// SPDX-License-Identifier: Apache-2.0

// Package manifest reads Cargo.toml files and writes the binstall metadata
// tables that let cargo-binstall locate and verify published archives.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/hashicorp/go-version"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the manifest file inside a crate directory
const FileName = "Cargo.toml"

// Package is the subset of a Cargo manifest the release pipeline needs
type Package struct {
	Name    string
	Version string
	Bins    []string
}

type cargoManifest struct {
	Package *struct {
		Name    string      `toml:"name"`
		Version interface{} `toml:"version"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
	} `toml:"bin"`
}

// semverPattern requires MAJOR.MINOR.PATCH; go-version alone accepts "1.2"
var semverPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

// ParseVersion parses a strict semantic version
func ParseVersion(s string) (*version.Version, error) {
	if !semverPattern.MatchString(s) {
		return nil, fmt.Errorf("%q is not a semantic version (MAJOR.MINOR.PATCH)", s)
	}
	v, err := version.NewSemver(s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a semantic version: %w", s, err)
	}
	return v, nil
}

// Parse extracts package name, version and binary targets from manifest data
func Parse(data []byte) (*Package, error) {
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid TOML: %w", err)
	}

	if m.Package == nil {
		return nil, errors.New("missing [package] table")
	}
	if m.Package.Name == "" {
		return nil, errors.New("missing package.name")
	}

	var ver string
	switch v := m.Package.Version.(type) {
	case string:
		ver = v
	case nil:
		return nil, errors.New("missing package.version")
	default:
		return nil, errors.New("package.version must be a literal string (workspace-inherited versions are not supported)")
	}

	pkg := &Package{Name: m.Package.Name, Version: ver}
	for _, b := range m.Bin {
		if b.Name != "" {
			pkg.Bins = append(pkg.Bins, b.Name)
		}
	}
	if len(pkg.Bins) == 0 {
		pkg.Bins = []string{pkg.Name}
	}

	return pkg, nil
}

// Read parses the manifest at path
func Read(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	pkg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pkg, nil
}
