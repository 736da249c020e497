// SPDX-License-Identifier: Apache-2.0
package key

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/Work-Fort/Warehouse/pkg/signing"
)

// keySandbox points the key settings at temp dirs and clears key env vars
func keySandbox(t *testing.T) (string, string) {
	t.Helper()
	keyDir := t.TempDir()
	historyDir := filepath.Join(t.TempDir(), "history")
	viper.Set("signing.key.location", keyDir)
	viper.Set("signing.history.location", historyDir)
	viper.Set("signing.encrypted-keys", false)
	t.Cleanup(viper.Reset)
	t.Setenv(signing.EnvSecret, "")
	t.Setenv(signing.EnvPublic, "")
	t.Setenv(signing.EnvPassword, "test-password")
	return keyDir, historyDir
}

func runKey(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewKeyCmd()
	cmd.SetArgs(append(args, "--password-source", "env"))
	cmd.SilenceUsage = true
	return cmd.Execute()
}

func TestKeyOptions(t *testing.T) {
	keyDir, historyDir := keySandbox(t)

	opts, pw, err := keyOptions("env")
	if err != nil {
		t.Fatalf("keyOptions() error = %v", err)
	}
	if pw == nil {
		t.Fatal("keyOptions() returned no password resolver")
	}
	if opts.KeyDir != keyDir || opts.HistoryDir != historyDir {
		t.Errorf("dirs = %s, %s; want %s, %s", opts.KeyDir, opts.HistoryDir, keyDir, historyDir)
	}
	got, err := opts.Password("unlock")
	if err != nil || got != "test-password" {
		t.Errorf("Password() = %q, %v; want test-password", got, err)
	}

	if _, _, err := keyOptions("carrier-pigeon"); err == nil {
		t.Error("keyOptions() accepted an unknown password source")
	}
}

func TestGenerateAndShow(t *testing.T) {
	keyDir, historyDir := keySandbox(t)

	if err := runKey(t, "generate"); err != nil {
		t.Fatalf("key generate error = %v", err)
	}
	priv, pub := signing.KeyPaths(signing.RefGenerate, keyDir)
	info, err := os.Stat(priv)
	if err != nil {
		t.Fatalf("private key missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("private key mode = %o, want 600", perm)
	}
	data, err := os.ReadFile(pub)
	if err != nil {
		t.Fatalf("public key missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "untrusted comment:") {
		t.Errorf("public key file = %q", data)
	}

	if err := runKey(t, "generate"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second generate error = %v, want already exists", err)
	}

	if err := runKey(t, "show", "--history"); err != nil {
		t.Errorf("key show error = %v", err)
	}
	keys, err := signing.History(historyDir)
	if err != nil || len(keys) != 1 {
		t.Errorf("history = %v, %v; want one key", keys, err)
	}
}

func TestShow_MissingKey(t *testing.T) {
	keySandbox(t)
	if err := runKey(t, "show"); err == nil {
		t.Error("key show succeeded without a key")
	}
}
