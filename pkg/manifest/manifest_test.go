// SPDX-License-Identifier: Apache-2.0
package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

const sampleManifest = `[package]
name = "foo"
version = "1.2.3"
edition = "2021"

# keep this comment
[package.metadata.docs.rs]
all-features = true

[dependencies]
serde = { version = "1", features = ["derive"] }

[profile.release]
lto = true
`

func testCoords() Coordinates {
	return Coordinates{
		Crate:     "foo",
		Version:   "1.2.3",
		BaseURL:   "https://pkgs.example.com",
		Layout:    "tree",
		Format:    "txz",
		Targets:   []string{"x86_64-unknown-linux-gnu", "aarch64-unknown-linux-gnu"},
		PublicKey: "RWQf6LRCGA9i53mlYecO4IzT51TGPpvWucNSCh1CBM0QTaLn73Y7GFO3",
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantName string
		wantBins []string
		wantErr  bool
	}{
		{
			name:     "default bin",
			data:     sampleManifest,
			wantName: "foo",
			wantBins: []string{"foo"},
		},
		{
			name:     "explicit bins",
			data:     "[package]\nname = \"tools\"\nversion = \"0.1.0\"\n\n[[bin]]\nname = \"a\"\n\n[[bin]]\nname = \"b\"\n",
			wantName: "tools",
			wantBins: []string{"a", "b"},
		},
		{
			name:    "workspace version",
			data:    "[package]\nname = \"foo\"\nversion.workspace = true\n",
			wantErr: true,
		},
		{
			name:    "missing package",
			data:    "[workspace]\nmembers = []\n",
			wantErr: true,
		},
		{
			name:    "not toml",
			data:    "[package\nname=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := Parse([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if pkg.Name != tt.wantName {
				t.Errorf("Parse() name = %s, want %s", pkg.Name, tt.wantName)
			}
			if strings.Join(pkg.Bins, ",") != strings.Join(tt.wantBins, ",") {
				t.Errorf("Parse() bins = %v, want %v", pkg.Bins, tt.wantBins)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "1.2.3"},
		{in: "0.1.0-alpha.1"},
		{in: "2.0.0+build.5"},
		{in: "1.2", wantErr: true},
		{in: "v1.2.3", wantErr: true},
		{in: "latest", wantErr: true},
		{in: "01.2.3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseVersion(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestPatch_Idempotent(t *testing.T) {
	once, err := Patch([]byte(sampleManifest), testCoords())
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	twice, err := Patch(once, testCoords())
	if err != nil {
		t.Fatalf("Patch() second pass error = %v", err)
	}
	if string(once) != string(twice) {
		t.Errorf("Patch() not idempotent:\n--- once ---\n%s\n--- twice ---\n%s", once, twice)
	}
	if n := strings.Count(string(twice), "[package.metadata.binstall]"); n != 1 {
		t.Errorf("binstall table appears %d times, want 1", n)
	}
}

func TestPatch_PreservesForeignSections(t *testing.T) {
	out, err := Patch([]byte(sampleManifest), testCoords())
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if !strings.HasPrefix(string(out), strings.TrimRight(sampleManifest, "\n")) {
		t.Errorf("Patch() altered existing content:\n%s", out)
	}
}

func TestPatch_ReplacesExistingBinstall(t *testing.T) {
	src := `[package]
name = "foo"
version = "1.2.3"

[package.metadata.binstall]
pkg-url = "https://old.example.com/{ name }"
pkg-fmt = "zip"

[package.metadata.binstall.overrides.x86_64-pc-windows-msvc]
pkg-fmt = "zip"

[dependencies]
anyhow = "1"
`
	out, err := Patch([]byte(src), testCoords())
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	text := string(out)
	if strings.Contains(text, "old.example.com") {
		t.Error("old pkg-url survived patching")
	}
	if strings.Contains(text, "x86_64-pc-windows-msvc") {
		t.Error("stale override survived patching")
	}
	if !strings.Contains(text, "[dependencies]\nanyhow = \"1\"") {
		t.Error("dependencies section lost")
	}
}

func TestPatch_Content(t *testing.T) {
	out, err := Patch([]byte(sampleManifest), testCoords())
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	var doc struct {
		Package struct {
			Metadata struct {
				Binstall struct {
					PkgURL  string `toml:"pkg-url"`
					BinDir  string `toml:"bin-dir"`
					PkgFmt  string `toml:"pkg-fmt"`
					Signing struct {
						Algorithm string `toml:"algorithm"`
						Pubkey    string `toml:"pubkey"`
					} `toml:"signing"`
					Overrides map[string]struct {
						PkgURL string `toml:"pkg-url"`
					} `toml:"overrides"`
				} `toml:"binstall"`
			} `toml:"metadata"`
		} `toml:"package"`
	}
	if err := toml.Unmarshal(out, &doc); err != nil {
		t.Fatalf("patched manifest does not parse: %v", err)
	}

	bs := doc.Package.Metadata.Binstall
	wantURL := "https://pkgs.example.com/{ name }/{ version }/{ name }-{ target }-v{ version }{ archive-suffix }"
	if bs.PkgURL != wantURL {
		t.Errorf("pkg-url = %s, want %s", bs.PkgURL, wantURL)
	}
	if bs.BinDir != "{ bin }{ binary-ext }" {
		t.Errorf("bin-dir = %s", bs.BinDir)
	}
	if bs.PkgFmt != "txz" {
		t.Errorf("pkg-fmt = %s, want txz", bs.PkgFmt)
	}
	if bs.Signing.Algorithm != "minisign" || bs.Signing.Pubkey != testCoords().PublicKey {
		t.Errorf("signing = %+v", bs.Signing)
	}
	if len(bs.Overrides) != 2 {
		t.Errorf("overrides = %d, want 2", len(bs.Overrides))
	}
	if _, ok := bs.Overrides["aarch64-unknown-linux-gnu"]; !ok {
		t.Error("missing aarch64 override")
	}
}

func TestPatch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		mutate func(*Coordinates)
	}{
		{
			name: "invalid semver",
			src:  "[package]\nname = \"foo\"\nversion = \"1.2\"\n",
		},
		{
			name: "unparsable manifest",
			src:  "[package\n",
		},
		{
			name:   "version mismatch",
			src:    sampleManifest,
			mutate: func(c *Coordinates) { c.Version = "9.9.9" },
		},
		{
			name:   "missing public key",
			src:    sampleManifest,
			mutate: func(c *Coordinates) { c.PublicKey = "" },
		},
		{
			name: "inline binstall table conflicts",
			src:  "[package]\nname = \"foo\"\nversion = \"1.2.3\"\n\n[package.metadata]\nbinstall = { pkg-fmt = \"zip\" }\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coords := testCoords()
			if tt.mutate != nil {
				tt.mutate(&coords)
			}
			if _, err := Patch([]byte(tt.src), coords); err == nil {
				t.Error("Patch() expected error")
			}
		})
	}
}

func TestPatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(sampleManifest), 0644); err != nil {
		t.Fatal(err)
	}

	changed, err := PatchFile(path, testCoords())
	if err != nil {
		t.Fatalf("PatchFile() error = %v", err)
	}
	if !changed {
		t.Error("first PatchFile() should report a change")
	}

	changed, err = PatchFile(path, testCoords())
	if err != nil {
		t.Fatalf("PatchFile() error = %v", err)
	}
	if changed {
		t.Error("second PatchFile() should be a no-op")
	}

	if err := os.WriteFile(path, []byte("[package]\nname = \"foo\"\nversion = \"one\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = PatchFile(path, testCoords())
	var patchErr *PatchError
	if !errors.As(err, &patchErr) {
		t.Fatalf("PatchFile() error = %v, want *PatchError", err)
	}
	if patchErr.Path != path {
		t.Errorf("PatchError.Path = %s, want %s", patchErr.Path, path)
	}
}
