// SPDX-License-Identifier: Apache-2.0
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestGetKeyDefinition(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		found bool
	}{
		{name: "top-level key", key: "log-level", found: true},
		{name: "nested key", key: "release.output", found: true},
		{name: "unknown key", key: "build.arch", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := GetKeyDefinition(tt.key)
			if (def != nil) != tt.found {
				t.Errorf("GetKeyDefinition(%q) found = %v, want %v", tt.key, def != nil, tt.found)
			}
		})
	}
}

func TestValidateKeyScope(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		scope   ConfigScope
		wantErr bool
	}{
		{name: "token in user scope", key: "github-token", scope: ScopeUser, wantErr: false},
		{name: "token in repo scope", key: "github-token", scope: ScopeRepo, wantErr: true},
		{name: "work dir in repo scope", key: "release.work-dir", scope: ScopeRepo, wantErr: true},
		{name: "encrypted keys in repo scope", key: "signing.encrypted-keys", scope: ScopeRepo, wantErr: true},
		{name: "output in repo scope", key: "release.output", scope: ScopeRepo, wantErr: false},
		{name: "unknown key", key: "does.not.exist", scope: ScopeUser, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyScope(tt.key, tt.scope)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKeyScope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateValue(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   interface{}
		wantErr bool
	}{
		{name: "bool ok", key: "use-tui", value: false, wantErr: false},
		{name: "bool wrong type", key: "use-tui", value: "nope", wantErr: true},
		{name: "enum ok", key: "log-level", value: "warn", wantErr: false},
		{name: "enum invalid", key: "log-level", value: "loud", wantErr: true},
		{name: "jobs ok", key: "release.jobs", value: 4, wantErr: false},
		{name: "jobs negative", key: "release.jobs", value: -1, wantErr: true},
		{name: "jobs wrong type", key: "release.jobs", value: "four", wantErr: true},
		{name: "timeout ok", key: "release.timeout", value: "45m", wantErr: false},
		{name: "timeout compound", key: "release.timeout", value: "1h30m", wantErr: false},
		{name: "timeout empty", key: "release.timeout", value: "", wantErr: false},
		{name: "timeout garbage", key: "release.timeout", value: "soon", wantErr: true},
		{name: "release config toml", key: "release.config", value: "release/warehouse.toml", wantErr: false},
		{name: "release config yaml", key: "release.config", value: "warehouse.yaml", wantErr: true},
		{name: "publish repo ok", key: "publish.repo", value: "Work-Fort/packages", wantErr: false},
		{name: "publish repo missing owner", key: "publish.repo", value: "packages", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValue(tt.key, tt.value, ScopeUser)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateValue(%q, %v) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateValue_SigningKeyLocationRepoScope(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "relative", path: "keys", wantErr: false},
		{name: "absolute", path: "/etc/keys", wantErr: true},
		{name: "traversal", path: "../keys", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValue("signing.key.location", tt.path, ScopeRepo)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateValue() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateJSONSchemaForScope_RepoExcludesForbidden(t *testing.T) {
	scope := ScopeRepo
	data, err := GenerateJSONSchemaForScope(&scope)
	if err != nil {
		t.Fatalf("GenerateJSONSchemaForScope() error = %v", err)
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	props := schema["properties"].(map[string]interface{})
	if _, ok := props["github-token"]; ok {
		t.Error("repo schema should not contain github-token")
	}

	release, ok := props["release"].(map[string]interface{})
	if !ok {
		t.Fatal("repo schema should contain nested release object")
	}
	releaseProps := release["properties"].(map[string]interface{})
	if _, ok := releaseProps["work-dir"]; ok {
		t.Error("repo schema should not contain release.work-dir")
	}
	jobs, ok := releaseProps["jobs"].(map[string]interface{})
	if !ok {
		t.Fatal("repo schema should contain release.jobs")
	}
	if jobs["type"] != "integer" {
		t.Errorf("release.jobs type = %v, want integer", jobs["type"])
	}
}

func TestSetAndUnsetConfigValue_UserScope(t *testing.T) {
	tmpDir := t.TempDir()
	orig := GlobalPaths
	GlobalPaths = &Paths{ConfigDir: tmpDir}
	defer func() { GlobalPaths = orig }()

	if err := SetConfigValue("release.jobs", "6", ScopeUser); err != nil {
		t.Fatalf("SetConfigValue() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ConfigFileName+DefaultConfigExt))
	if err != nil {
		t.Fatalf("user config not written: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("user config is empty")
	}

	if err := SetConfigValue("github-token", "ghp_test", ScopeRepo); err == nil {
		t.Error("SetConfigValue() should refuse github-token in repo scope")
	}

	if err := UnsetConfigValue("release.jobs", ScopeUser); err != nil {
		t.Fatalf("UnsetConfigValue() error = %v", err)
	}
	if err := UnsetConfigValue("release.jobs", ScopeUser); err == nil {
		t.Error("UnsetConfigValue() of a removed key should fail")
	}
}

func TestFlattenKeys(t *testing.T) {
	settings := map[string]interface{}{
		"log-level": "info",
		"release": map[string]interface{}{
			"output": "dist",
			"jobs":   2,
		},
	}

	keys := flattenKeys(settings, "")
	want := map[string]bool{"log-level": true, "release.output": true, "release.jobs": true}
	if len(keys) != len(want) {
		t.Fatalf("flattenKeys() = %v, want %d keys", keys, len(want))
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}
}

func TestValidateValue_DirKeys(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		key     string
		value   string
		scope   ConfigScope
		wantErr bool
	}{
		{name: "existing dir", key: "release.output", value: dir, scope: ScopeUser},
		{name: "new dir", key: "release.output", value: filepath.Join(dir, "new"), scope: ScopeUser},
		{name: "file", key: "release.output", value: file, scope: ScopeUser, wantErr: true},
		{name: "absolute in repo", key: "release.output", value: dir, scope: ScopeRepo, wantErr: true},
		{name: "nested traversal in repo", key: "signing.history.location", value: "keys/../../up", scope: ScopeRepo, wantErr: true},
		{name: "dotdot prefix name", key: "signing.history.location", value: "..history", scope: ScopeRepo},
		{name: "work dir file", key: "release.work-dir", value: file, scope: ScopeUser, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateValue(tt.key, tt.value, tt.scope)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateValue(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}
}
