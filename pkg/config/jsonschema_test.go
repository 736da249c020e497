// SPDX-License-Identifier: Apache-2.0
package config

import (
	"encoding/json"
	"testing"
)

func decodeSchema(t *testing.T, scope *ConfigScope) map[string]interface{} {
	t.Helper()
	schema, err := GenerateJSONSchemaForScope(scope)
	if err != nil {
		t.Fatalf("GenerateJSONSchemaForScope failed: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(schema, &result); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	return result
}

func TestGenerateJSONSchema(t *testing.T) {
	schema, err := GenerateJSONSchema()
	if err != nil {
		t.Fatalf("GenerateJSONSchema failed: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(schema, &result); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}

	if got := result["$schema"]; got != "https://json-schema.org/draft/2020-12/schema" {
		t.Errorf("$schema = %v, want Draft 2020-12", got)
	}
	if title, _ := result["title"].(string); title != "Warehouse Configuration" {
		t.Errorf("title = %q", title)
	}

	properties, ok := result["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("properties field missing or not an object")
	}
	for _, key := range []string{"use-tui", "log-level", "github-token", "signing", "release", "publish"} {
		if _, exists := properties[key]; !exists {
			t.Errorf("Expected property '%s' not found in schema", key)
		}
	}
}

func TestGenerateJSONSchema_NestedProperties(t *testing.T) {
	properties := decodeSchema(t, nil)["properties"].(map[string]interface{})

	tests := []struct {
		path     []string
		wantType string
	}{
		{[]string{"signing", "key", "location"}, "string"},
		{[]string{"signing", "encrypted-keys"}, "boolean"},
		{[]string{"release", "jobs"}, "integer"},
		{[]string{"release", "patch-manifests"}, "boolean"},
		{[]string{"log-level"}, "string"},
	}

	for _, tt := range tests {
		name := ""
		for i, p := range tt.path {
			if i > 0 {
				name += "."
			}
			name += p
		}
		t.Run(name, func(t *testing.T) {
			current := properties
			var prop map[string]interface{}
			for i, part := range tt.path {
				next, ok := current[part].(map[string]interface{})
				if !ok {
					t.Fatalf("%s missing at %q", name, part)
				}
				prop = next
				if i < len(tt.path)-1 {
					if prop["type"] != "object" {
						t.Fatalf("%s should be an object", part)
					}
					current, _ = prop["properties"].(map[string]interface{})
				}
			}
			if prop["type"] != tt.wantType {
				t.Errorf("type = %v, want %s", prop["type"], tt.wantType)
			}
		})
	}
}

func TestGenerateJSONSchema_Constraints(t *testing.T) {
	properties := decodeSchema(t, nil)["properties"].(map[string]interface{})

	logLevel := properties["log-level"].(map[string]interface{})
	enum, ok := logLevel["enum"].([]interface{})
	if !ok || len(enum) != 5 {
		t.Errorf("log-level enum = %v, want 5 values", logLevel["enum"])
	}

	release := properties["release"].(map[string]interface{})["properties"].(map[string]interface{})
	timeout := release["timeout"].(map[string]interface{})
	if timeout["pattern"] == nil || timeout["pattern"] == "" {
		t.Error("release.timeout should carry a duration pattern")
	}
	cfg := release["config"].(map[string]interface{})
	if cfg["default"] != ReleaseConfigFile {
		t.Errorf("release.config default = %v, want %s", cfg["default"], ReleaseConfigFile)
	}
}

func TestGenerateJSONSchemaForScope(t *testing.T) {
	user, repo := ScopeUser, ScopeRepo

	tests := []struct {
		name    string
		scope   *ConfigScope
		present []string
		absent  []string
	}{
		{"user", &user, []string{"use-tui", "github-token", "signing"}, nil},
		{"repo", &repo, []string{"signing", "release", "log-level"}, []string{"github-token"}},
		{"all", nil, []string{"use-tui", "github-token", "release"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			properties := decodeSchema(t, tt.scope)["properties"].(map[string]interface{})
			for _, key := range tt.present {
				if _, ok := properties[key]; !ok {
					t.Errorf("%s missing from %s schema", key, tt.name)
				}
			}
			for _, key := range tt.absent {
				if _, ok := properties[key]; ok {
					t.Errorf("%s should not be in %s schema", key, tt.name)
				}
			}
		})
	}
}

func TestGenerateJSONSchemaForScope_RepoDropsForbiddenNested(t *testing.T) {
	repo := ScopeRepo
	properties := decodeSchema(t, &repo)["properties"].(map[string]interface{})

	signing := properties["signing"].(map[string]interface{})["properties"].(map[string]interface{})
	if _, ok := signing["encrypted-keys"]; ok {
		t.Error("signing.encrypted-keys is forbidden in repo config")
	}
	release := properties["release"].(map[string]interface{})["properties"].(map[string]interface{})
	if _, ok := release["work-dir"]; ok {
		t.Error("release.work-dir is forbidden in repo config")
	}
}

func TestGenerateJSONSchema_SecretsAndBounds(t *testing.T) {
	properties := decodeSchema(t, nil)["properties"].(map[string]interface{})

	token := properties["github-token"].(map[string]interface{})
	if token["writeOnly"] != true {
		t.Error("github-token should be writeOnly")
	}
	if _, ok := properties["use-tui"].(map[string]interface{})["writeOnly"]; ok {
		t.Error("use-tui should not be writeOnly")
	}

	release := properties["release"].(map[string]interface{})
	if release["additionalProperties"] != false {
		t.Error("release table should reject unknown keys")
	}
	jobs := release["properties"].(map[string]interface{})["jobs"].(map[string]interface{})
	if min, ok := jobs["minimum"].(float64); !ok || min != 0 {
		t.Errorf("release.jobs minimum = %v, want 0", jobs["minimum"])
	}
}
