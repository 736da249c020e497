// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/signing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    log.Level
		enabled bool
		wantErr bool
	}{
		{in: "", want: log.DebugLevel, enabled: true},
		{in: "debug", want: log.DebugLevel, enabled: true},
		{in: "info", want: log.InfoLevel, enabled: true},
		{in: "warn", want: log.WarnLevel, enabled: true},
		{in: "error", want: log.ErrorLevel, enabled: true},
		{in: "disabled"},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, enabled, err := parseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", enabled, tt.enabled)
			}
			if tt.enabled && level != tt.want {
				t.Errorf("level = %v, want %v", level, tt.want)
			}
		})
	}
}

func TestSetupLogging(t *testing.T) {
	saved := log.Default()
	t.Cleanup(func() { log.SetDefault(saved) })

	path := filepath.Join(t.TempDir(), debugLogFile)
	if err := setupLogging("info", path); err != nil {
		t.Fatalf("setupLogging() error = %v", err)
	}
	log.Debug("dropped")
	log.Info("kept", "crate", "foo")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "dropped") {
		t.Error("debug record written at info level")
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"crate":"foo"`) {
		t.Errorf("log file = %q, want a JSON record", out)
	}

	if err := setupLogging("loud", path); err == nil {
		t.Error("setupLogging() accepted an unknown level")
	}
}

func TestSetupLogging_Disabled(t *testing.T) {
	saved := log.Default()
	t.Cleanup(func() { log.SetDefault(saved) })

	path := filepath.Join(t.TempDir(), debugLogFile)
	if err := setupLogging("disabled", path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("log file created while logging is disabled")
	}
}

func TestGenerateHelpMarkdown(t *testing.T) {
	tests := []struct {
		args    []string
		want    []string
		notWant []string
	}{
		{
			args:    []string{"release"},
			want:    []string{"# warehouse release", "## Usage", "## Flags", "## Environment", signing.EnvSecret, signing.EnvPassword},
			notWant: []string{"## Available Commands"},
		},
		{
			args: []string{"key", "rotate"},
			want: []string{"## Environment", signing.EnvPublic},
		},
		{
			args:    []string{"completion"},
			want:    []string{"## Examples", "completion bash"},
			notWant: []string{"## Environment"},
		},
		{
			args:    []string{},
			want:    []string{"## Available Commands", "**release**", "**completion**"},
			notWant: []string{"## Environment"},
		},
	}
	for _, tt := range tests {
		t.Run(strings.Join(append([]string{"warehouse"}, tt.args...), " "), func(t *testing.T) {
			cmd, _, err := rootCmd.Find(tt.args)
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			md := generateHelpMarkdown(cmd)
			for _, s := range tt.want {
				if !strings.Contains(md, s) {
					t.Errorf("help lacks %q", s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(md, s) {
					t.Errorf("help contains %q", s)
				}
			}
		})
	}
}

func TestCompletionCmd(t *testing.T) {
	for _, shell := range shellNames() {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := newCompletionCmd(rootCmd)
			cmd.SetOut(&buf)
			if err := cmd.RunE(cmd, []string{shell}); err != nil {
				t.Fatalf("completion %s error = %v", shell, err)
			}
			if !strings.Contains(buf.String(), "warehouse") {
				t.Errorf("completion %s script does not mention warehouse", shell)
			}
		})
	}

	cmd := newCompletionCmd(rootCmd)
	if err := cmd.RunE(cmd, []string{"powershell"}); err == nil {
		t.Error("powershell completion accepted")
	}
}
