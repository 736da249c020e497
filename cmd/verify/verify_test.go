// SPDX-License-Identifier: Apache-2.0
package verify

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/index"
	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/packager"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

func newKey(t *testing.T) *signing.Manager {
	t.Helper()
	m, err := signing.LoadOrGenerate(signing.RefGenerate, signing.Options{
		KeyDir: t.TempDir(),
		Getenv: func(string) string { return "" },
	})
	if err != nil {
		t.Fatalf("LoadOrGenerate() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// publishTree finalizes foo at version into dir, signed by key
func publishTree(t *testing.T, key *signing.Manager, dir, version string) string {
	t.Helper()
	content := "archive bits " + version
	target := "x86_64-unknown-linux-gnu"
	name := layout.ArchiveName("foo", version, target, layout.FormatTxz)
	src := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(src, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	f := &index.Finalizer{
		Dir:    dir,
		Layout: layout.Tree,
		Format: layout.FormatTxz,
		Signer: key,
	}
	_, err := f.Finalize([]*packager.Artifact{{
		Crate:    "foo",
		Version:  version,
		Target:   target,
		Path:     src,
		FileName: name,
		SHA256:   util.SHA256Bytes([]byte(content)),
		Size:     int64(len(content)),
	}})
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return f.Dir
}

func TestResolvePublicKey(t *testing.T) {
	tree := t.TempDir()
	if err := os.WriteFile(filepath.Join(tree, layout.PublicKeyFile), []byte("from-tree\n"), 0644); err != nil {
		t.Fatal(err)
	}
	keyFile := filepath.Join(t.TempDir(), "ci.pub")
	if err := os.WriteFile(keyFile, []byte("from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		flag        string
		env         string
		dir         string
		want        string
		wantTrusted bool
		wantErr     bool
	}{
		{name: "flag file", flag: keyFile, env: "from-env", dir: tree, want: "from-file\n", wantTrusted: true},
		{name: "flag literal", flag: "RWQliteral", env: "from-env", dir: tree, want: "RWQliteral", wantTrusted: true},
		{name: "env", env: "  from-env\n", dir: tree, want: "from-env", wantTrusted: true},
		{name: "tree fallback", dir: tree, want: "from-tree\n"},
		{name: "nothing", dir: t.TempDir(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(signing.EnvPublic, tt.env)

			got, trusted, err := resolvePublicKey(tt.flag, tt.dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolvePublicKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
			if trusted != tt.wantTrusted {
				t.Errorf("trusted = %v, want %v", trusted, tt.wantTrusted)
			}
		})
	}
}

func runVerify(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewVerifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVerifyCmd(t *testing.T) {
	t.Setenv(signing.EnvPublic, "")
	key := newKey(t)
	tree := publishTree(t, key, t.TempDir(), "1.0.0")

	t.Run("trusted key", func(t *testing.T) {
		out, err := runVerify(t, tree, "--public-key", key.ExportPublic())
		if err != nil {
			t.Fatalf("verify error = %v\n%s", err, out)
		}
		if !strings.Contains(out, "1 entries verified") {
			t.Errorf("output = %q", out)
		}
		if strings.Contains(out, "shipped in the tree") {
			t.Error("warned about an untrusted key although --public-key was given")
		}
	})

	t.Run("tree key warns", func(t *testing.T) {
		out, err := runVerify(t, tree)
		if err != nil {
			t.Fatalf("verify error = %v\n%s", err, out)
		}
		if !strings.Contains(out, "shipped in the tree") {
			t.Errorf("no warning about the tree key in %q", out)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other := newKey(t)
		_, err := runVerify(t, tree, "--public-key", other.ExportPublic())
		var exitErr *cmdutil.ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 1 {
			t.Fatalf("verify error = %v, want exit status 1", err)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		if _, err := runVerify(t, tree, "--public-key", "not-a-key"); err == nil {
			t.Error("verify accepted a malformed public key")
		}
	})
}

func TestVerifyCmd_RotatedKey(t *testing.T) {
	t.Setenv(signing.EnvPublic, "")
	tree := t.TempDir()
	old := newKey(t)
	publishTree(t, old, tree, "1.0.0")
	current := newKey(t)
	publishTree(t, current, tree, "1.1.0")

	history := t.TempDir()
	oldPub := filepath.Join(history, "2026-01-01-000000-"+old.KeyID()+signing.PublicKeyExt)
	if err := os.WriteFile(oldPub, signing.PublicKeyFile(old.PublicKey()), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runVerify(t, tree, "--public-key", current.ExportPublic(), "--history-dir", history)
	if err != nil {
		t.Fatalf("verify with key history error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 entries verified") {
		t.Errorf("output = %q", out)
	}

	out, err = runVerify(t, tree, "--public-key", current.ExportPublic(), "--history-dir", "")
	var exitErr *cmdutil.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("verify without the old key error = %v, want exit status", err)
	}
	if !strings.Contains(out, "unknown key "+old.KeyID()) {
		t.Errorf("output does not name the unknown key %s:\n%s", old.KeyID(), out)
	}
	if strings.Contains(out, "1.1.0") {
		t.Errorf("releases signed by the current key reported:\n%s", out)
	}
}
