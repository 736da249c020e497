// SPDX-License-Identifier: Apache-2.0
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/util"
	"github.com/pelletier/go-toml/v2"
)

// PatchError reports a manifest that could not be patched. It only affects
// the crate it belongs to.
type PatchError struct {
	Path string
	Err  error
}

func (e *PatchError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("manifest patch failed: %v", e.Err)
	}
	return fmt.Sprintf("manifest patch failed for %s: %v", e.Path, e.Err)
}

func (e *PatchError) Unwrap() error { return e.Err }

// Coordinates describe where a crate release will be hosted
type Coordinates struct {
	Crate     string // expected package name (optional)
	Version   string // expected package version (optional)
	BaseURL   string
	Layout    string
	Format    string
	Targets   []string
	PublicKey string // minisign public key, base64
}

// binstallHeader matches [package.metadata.binstall] and all of its subtables
var binstallHeader = regexp.MustCompile(`^\[\s*package\s*\.\s*metadata\s*\.\s*binstall\s*(\.[^\]]*)?\]\s*(#.*)?$`)

type binstallTable struct {
	PkgURL             string   `toml:"pkg-url"`
	BinDir             string   `toml:"bin-dir"`
	PkgFmt             string   `toml:"pkg-fmt"`
	DisabledStrategies []string `toml:"disabled-strategies"`
}

type signingTable struct {
	Algorithm string `toml:"algorithm"`
	Pubkey    string `toml:"pubkey"`
}

type overrideTable struct {
	PkgURL string `toml:"pkg-url"`
	BinDir string `toml:"bin-dir"`
	PkgFmt string `toml:"pkg-fmt"`
}

const binDir = "{ bin }{ binary-ext }"

// Patch returns src with the binstall metadata tables replaced by ones
// rendered from coords. Everything outside those tables is preserved byte
// for byte, apart from trailing whitespace at the end of the file. Patching
// an already patched manifest with the same coordinates returns identical
// bytes.
func Patch(src []byte, coords Coordinates) ([]byte, error) {
	pkg, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if _, err := ParseVersion(pkg.Version); err != nil {
		return nil, fmt.Errorf("package.version: %w", err)
	}
	if coords.Crate != "" && coords.Crate != pkg.Name {
		return nil, fmt.Errorf("package name %q does not match crate %q", pkg.Name, coords.Crate)
	}
	if coords.Version != "" && coords.Version != pkg.Version {
		return nil, fmt.Errorf("package version %s does not match release version %s", pkg.Version, coords.Version)
	}
	if coords.BaseURL == "" {
		return nil, errors.New("no base URL to point pkg-url at")
	}
	if coords.PublicKey == "" {
		return nil, errors.New("no public key for signature verification")
	}
	if len(coords.Targets) == 0 {
		return nil, errors.New("no targets")
	}

	block, err := render(coords)
	if err != nil {
		return nil, err
	}

	newline := "\n"
	if bytes.Contains(src, []byte("\r\n")) {
		newline = "\r\n"
		block = strings.ReplaceAll(block, "\n", "\r\n")
	}

	body := strings.TrimRight(stripBinstall(string(src)), " \t\r\n")
	out := []byte(body + newline + newline + block)

	// The remaining document may still define binstall keys inline or via
	// dotted keys; those collide with the appended tables.
	var doc map[string]interface{}
	if err := toml.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("patched manifest does not parse (conflicting binstall definition?): %w", err)
	}

	return out, nil
}

// PatchFile patches the manifest at path in place. It reports whether the
// file content changed.
func PatchFile(path string, coords Coordinates) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, &PatchError{Path: path, Err: err}
	}

	out, err := Patch(src, coords)
	if err != nil {
		return false, &PatchError{Path: path, Err: err}
	}
	if bytes.Equal(src, out) {
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, &PatchError{Path: path, Err: err}
	}
	if err := util.WriteFileAtomic(path, out, info.Mode().Perm()); err != nil {
		return false, &PatchError{Path: path, Err: err}
	}
	return true, nil
}

// stripBinstall drops every binstall table block. A block runs from its
// header to the next table header.
func stripBinstall(src string) string {
	var out strings.Builder
	skipping := false
	for _, line := range strings.SplitAfter(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			skipping = binstallHeader.MatchString(trimmed)
		}
		if !skipping {
			out.WriteString(line)
		}
	}
	return out.String()
}

func render(coords Coordinates) (string, error) {
	format := coords.Format
	if format == "" {
		format = layout.FormatTxz
	}
	pkgURL := layout.URLTemplate(coords.BaseURL, coords.Layout)

	var b strings.Builder

	main, err := toml.Marshal(binstallTable{
		PkgURL:             pkgURL,
		BinDir:             binDir,
		PkgFmt:             format,
		DisabledStrategies: []string{"quick-install"},
	})
	if err != nil {
		return "", fmt.Errorf("render binstall table: %w", err)
	}
	b.WriteString("[package.metadata.binstall]\n")
	b.WriteString("# managed by `warehouse release`, edits are overwritten\n")
	b.Write(main)

	signing, err := toml.Marshal(signingTable{Algorithm: "minisign", Pubkey: coords.PublicKey})
	if err != nil {
		return "", fmt.Errorf("render signing table: %w", err)
	}
	b.WriteString("\n[package.metadata.binstall.signing]\n")
	b.Write(signing)

	targets := make([]string, len(coords.Targets))
	copy(targets, coords.Targets)
	sort.Strings(targets)

	for _, target := range targets {
		override, err := toml.Marshal(overrideTable{PkgURL: pkgURL, BinDir: binDir, PkgFmt: format})
		if err != nil {
			return "", fmt.Errorf("render override for %s: %w", target, err)
		}
		fmt.Fprintf(&b, "\n[package.metadata.binstall.overrides.%s]\n", quoteKey(target))
		b.Write(override)
	}

	return b.String(), nil
}

var bareKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// quoteKey quotes a table key segment when it is not a valid bare key
// (target triples such as thumbv7em-none-eabihf are, but "x86_64.custom" is not).
func quoteKey(k string) string {
	if bareKey.MatchString(k) {
		return k
	}
	return `"` + strings.ReplaceAll(k, `"`, `\"`) + `"`
}
