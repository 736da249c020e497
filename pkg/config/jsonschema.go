// SPDX-License-Identifier: Apache-2.0
package config

import (
	"encoding/json"
	"strings"
)

const jsonSchemaDraft = "https://json-schema.org/draft/2020-12/schema"

// schemaNode is one JSON Schema object. Tables of the registry become
// nested object nodes; leaves carry the key's type and constraints.
type schemaNode struct {
	Schema               string                 `json:"$schema,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type"`
	Default              interface{}            `json:"default,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	Minimum              *int                   `json:"minimum,omitempty"`
	WriteOnly            bool                   `json:"writeOnly,omitempty"`
	Properties           map[string]*schemaNode `json:"properties,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// table returns the child object named name, creating it if needed
func (n *schemaNode) table(name string) *schemaNode {
	if n.Properties == nil {
		n.Properties = make(map[string]*schemaNode)
	}
	child, ok := n.Properties[name]
	if !ok {
		closed := false
		child = &schemaNode{Type: "object", AdditionalProperties: &closed}
		n.Properties[name] = child
	}
	return child
}

// GenerateJSONSchema describes every known key, for editors validating
// either config file.
func GenerateJSONSchema() ([]byte, error) {
	return GenerateJSONSchemaForScope(nil)
}

// GenerateJSONSchemaForScope describes the keys accepted in one scope.
// A nil scope includes every key with its global constraints.
func GenerateJSONSchemaForScope(scope *ConfigScope) ([]byte, error) {
	closed := false
	root := &schemaNode{
		Schema:               jsonSchemaDraft,
		Title:                "Warehouse Configuration",
		Description:          "Settings for the warehouse CLI",
		Type:                 "object",
		Properties:           make(map[string]*schemaNode),
		AdditionalProperties: &closed,
	}
	if scope != nil {
		if *scope == ScopeUser {
			root.Title = "Warehouse User Configuration"
			root.Description = "Per-user settings: " + ConfigFileName + DefaultConfigExt + " in the XDG config dir"
		} else {
			root.Title = "Warehouse Repo Configuration"
			root.Description = "Per-repository settings: ./" + LocalConfigFile + DefaultConfigExt
		}
	}

	for _, def := range ConfigRegistry {
		if scope != nil && def.forbiddenIn(*scope) {
			continue
		}
		parts := strings.Split(def.Key, ".")
		parent := root
		for _, p := range parts[:len(parts)-1] {
			parent = parent.table(p)
		}
		parent.Properties[parts[len(parts)-1]] = leafNode(def, scope)
	}

	return json.MarshalIndent(root, "", "  ")
}

func leafNode(def ConfigKeyDefinition, scope *ConfigScope) *schemaNode {
	n := &schemaNode{
		Description: def.Description,
		Default:     def.Default,
		WriteOnly:   def.Secret,
	}
	enum, pattern := def.EnumValues, def.Pattern
	if scope != nil {
		enum, pattern = def.enumFor(*scope), def.patternFor(*scope)
	}

	switch def.Type {
	case "bool":
		n.Type = "boolean"
	case "int":
		n.Type = "integer"
		if def.NonNegative {
			zero := 0
			n.Minimum = &zero
		}
	case "enum":
		n.Type = "string"
		n.Enum = enum
	default:
		n.Type = "string"
		n.Pattern = pattern
	}
	return n
}
