// SPDX-License-Identifier: Apache-2.0
package init

// ReleaseConfigTemplate renders warehouse.toml
const ReleaseConfigTemplate = `# Release request for 'warehouse release'
{{if .Targets}}
targets = [{{range $i, $t := .Targets}}{{if $i}}, {{end}}"{{$t}}"{{end}}]
{{- else}}
# targets = ["x86_64", "aarch64"]
{{- end}}
key = "generate"
auditable = true
{{- if .BaseURL}}
base-url = "{{.BaseURL}}"
{{- else}}
# base-url = "https://downloads.example.com"
{{- end}}
layout = "{{.Layout}}"
format = "txz"
backend = "cargo"
timeout = "30m"
{{range .Crates}}
[[crates]]
path = "{{.}}"
{{end}}
# [dependencies.cargo-auditable]
# version = "latest"
`

// RepoConfigTemplate renders warehouse.yaml
const RepoConfigTemplate = `# Warehouse repository configuration
signing:
  key:
    location: {{.KeyLocation}}
  history:
    location: {{.HistoryLocation}}

release:
  config: warehouse.toml
  output: {{.OutputLocation}}
`

// GitignoreTemplate renders .gitignore
const GitignoreTemplate = `# Published tree
/{{.OutputLocation}}/

# Private signing keys never leave this machine
/{{.KeyLocation}}/*.key
*.backup

# Cargo
/target/
`
