// SPDX-License-Identifier: Apache-2.0
package init

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Generated file names
const (
	ReleaseConfigFile = "warehouse.toml"
	RepoConfigFile    = "warehouse.yaml"
	GitignoreFile     = ".gitignore"
)

// GenerateRepoFiles creates all repository files in the current directory
// atomically. It returns the created files on success, or rolls back all
// changes on error. An existing warehouse.toml is left untouched.
func GenerateRepoFiles(settings InitSettings) ([]string, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var createdItems []string // Track files and directories for rollback

	trackCreated := func(path string) {
		createdItems = append(createdItems, path)
	}

	rollback := func() {
		// Delete in reverse order
		for i := len(createdItems) - 1; i >= 0; i-- {
			os.RemoveAll(createdItems[i])
		}
	}

	for _, dir := range []string{settings.KeyLocation, settings.HistoryLocation} {
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			rollback()
			return nil, fmt.Errorf("failed to create directory %s (rolled back): %w", dir, err)
		}
		trackCreated(dir)
	}

	files := []struct {
		path string
		tmpl string
		keep bool
	}{
		{RepoConfigFile, RepoConfigTemplate, false},
		{ReleaseConfigFile, ReleaseConfigTemplate, true},
		{GitignoreFile, GitignoreTemplate, true},
	}

	var created []string
	for _, f := range files {
		if f.keep {
			if _, err := os.Stat(f.path); err == nil {
				continue
			}
		}
		data, err := render(f.path, f.tmpl, settings)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("%w (rolled back)", err)
		}
		if err := os.WriteFile(f.path, data, 0644); err != nil {
			rollback()
			return nil, fmt.Errorf("failed to write %s (rolled back): %w", f.path, err)
		}
		trackCreated(f.path)
		created = append(created, f.path)
	}

	return created, nil
}

func render(name, text string, settings InitSettings) ([]byte, error) {
	tmpl, err := template.New(filepath.Base(name)).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, settings); err != nil {
		return nil, fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.Bytes(), nil
}
