// SPDX-License-Identifier: Apache-2.0

// Package sources fetches published crate sources from crates.io so they
// can be built like local crates.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/download"
	"github.com/Work-Fort/Warehouse/pkg/manifest"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

const (
	// StaticURL serves crate tarballs without rate limiting
	StaticURL = "https://static.crates.io/crates"
	// APIURL is the registry API, used when the static host fails
	APIURL = "https://crates.io/api/v1/crates"

	maxCrateSize = 256 << 20
)

// Client downloads and unpacks crates
type Client struct {
	StaticURL  string
	APIURL     string
	HTTPClient *http.Client
}

// NewClient returns a Client for the public registry
func NewClient() *Client {
	return &Client{StaticURL: StaticURL, APIURL: APIURL}
}

// URLs returns the download locations for a crate, preferred first
func (c *Client) URLs(name, version string) []string {
	file := fmt.Sprintf("%s-%s.crate", name, version)
	return []string{
		fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.StaticURL, "/"), name, file),
		fmt.Sprintf("%s/%s/%s/download", strings.TrimRight(c.APIURL, "/"), name, version),
	}
}

// Fetch downloads name@version into dir and returns the unpacked crate
// directory. An already unpacked crate is reused.
func (c *Client) Fetch(ctx context.Context, name, version, dir string) (string, error) {
	crateDir := filepath.Join(dir, fmt.Sprintf("%s-%s", name, version))
	if _, err := os.Stat(filepath.Join(crateDir, manifest.FileName)); err == nil {
		log.Debugf("Reusing unpacked sources %s", crateDir)
		return crateDir, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create sources dir: %w", err)
	}
	archive := filepath.Join(dir, fmt.Sprintf("%s-%s.crate", name, version))

	var errs []error
	for _, u := range c.URLs(name, version) {
		err := download.FileWithOptions(ctx, u, archive, &download.Options{
			HTTPClient: c.HTTPClient,
			MaxBytes:   maxCrateSize,
		})
		if err == nil {
			errs = nil
			break
		}
		log.Debugf("Download from %s failed: %v", u, err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("failed to download %s %s: %w", name, version, errors.Join(errs...))
	}
	defer os.Remove(archive)

	staging, err := os.MkdirTemp(dir, ".unpack-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	if err := util.ExtractTarGz(archive, staging); err != nil {
		return "", fmt.Errorf("failed to unpack %s: %w", filepath.Base(archive), err)
	}

	unpacked := filepath.Join(staging, fmt.Sprintf("%s-%s", name, version))
	if _, err := os.Stat(filepath.Join(unpacked, manifest.FileName)); err != nil {
		return "", fmt.Errorf("crate archive has no %s-%s/%s", name, version, manifest.FileName)
	}
	os.RemoveAll(crateDir)
	if err := os.Rename(unpacked, crateDir); err != nil {
		return "", fmt.Errorf("failed to move sources into place: %w", err)
	}

	log.Infof("Fetched %s %s from crates.io", name, version)
	return crateDir, nil
}
