// SPDX-License-Identifier: Apache-2.0
package github

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/index"
	"github.com/Work-Fort/Warehouse/pkg/layout"
)

// Publisher mirrors releases of a published tree to GitHub releases
type Publisher struct {
	Client *Client
	Owner  string
	Repo   string
	// Dir is the published tree containing index.json
	Dir    string
	Logger *log.Logger
}

// Upload records one asset handled by Publish
type Upload struct {
	Tag     string
	Name    string
	Skipped bool
}

func (p *Publisher) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// Publish uploads every file of crate@version. An empty version publishes
// every release of the crate; an empty crate publishes the whole index.
// Assets that already exist on the release are left alone.
func (p *Publisher) Publish(ctx context.Context, crate, version string) ([]Upload, error) {
	idx, err := index.Load(index.IndexPath(p.Dir))
	if err != nil {
		return nil, err
	}

	releases := make(map[[2]string][]index.Entry)
	for _, e := range idx.Entries {
		if crate != "" && e.Crate != crate {
			continue
		}
		if version != "" && e.Version != version {
			continue
		}
		k := [2]string{e.Crate, e.Version}
		releases[k] = append(releases[k], e)
	}
	if len(releases) == 0 {
		return nil, fmt.Errorf("nothing in %s matches %s", layout.IndexFile, describe(crate, version))
	}

	keys := make([][2]string, 0, len(releases))
	for k := range releases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	var uploads []Upload
	for _, k := range keys {
		u, err := p.publishRelease(ctx, k[0], k[1], releases[k])
		uploads = append(uploads, u...)
		if err != nil {
			return uploads, err
		}
	}
	return uploads, nil
}

func (p *Publisher) publishRelease(ctx context.Context, crate, version string, entries []index.Entry) ([]Upload, error) {
	tag := layout.ReleaseTag(crate, version)

	release, err := p.Client.GetReleaseByTag(ctx, p.Owner, p.Repo, tag)
	if errors.Is(err, ErrNotFound) {
		p.logger().Info("Creating release", "tag", tag)
		release, err = p.Client.CreateRelease(ctx, p.Owner, p.Repo, tag,
			fmt.Sprintf("%s %s", crate, version),
			fmt.Sprintf("Prebuilt binaries of %s %s for cargo-binstall.", crate, version))
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		files = append(files, e.File, e.File+layout.DigestExt, e.File+layout.SignatureExt)
	}
	sums := path.Join(layout.ReleaseDir(crate, version), layout.ChecksumsFile)
	files = append(files, sums, sums+layout.MinisigExt)

	var uploads []Upload
	for _, rel := range files {
		name := path.Base(rel)
		if release.HasAsset(name) {
			p.logger().Debug("Asset already uploaded", "tag", tag, "asset", name)
			uploads = append(uploads, Upload{Tag: tag, Name: name, Skipped: true})
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.Dir, filepath.FromSlash(rel)))
		if err != nil {
			return uploads, fmt.Errorf("read %s: %w", rel, err)
		}
		if _, err := p.Client.UploadAsset(ctx, release, name, contentType(name), data); err != nil {
			return uploads, err
		}
		p.logger().Info("Uploaded asset", "tag", tag, "asset", name)
		uploads = append(uploads, Upload{Tag: tag, Name: name})
	}
	return uploads, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".xz":
		return "application/x-xz"
	case ".gz":
		return "application/gzip"
	default:
		return "text/plain"
	}
}

func describe(crate, version string) string {
	switch {
	case crate == "":
		return "any crate"
	case version == "":
		return crate
	default:
		return crate + " " + version
	}
}
