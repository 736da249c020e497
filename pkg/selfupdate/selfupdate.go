// SPDX-License-Identifier: Apache-2.0

// Package selfupdate replaces the running warehouse binary with the newest
// release published by warehouse itself: a minisign-signed SHA256SUMS next
// to per-target archives on a GitHub release tagged warehouse-v<version>.
package selfupdate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aead.dev/minisign"
	"github.com/charmbracelet/log"
	goversion "github.com/hashicorp/go-version"

	"github.com/Work-Fort/Warehouse/pkg/github"
	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

// ErrNoRelease is returned when the repository has no usable release
var ErrNoRelease = errors.New("no release found")

// Candidate is a release that can be installed
type Candidate struct {
	Version *goversion.Version
	Release *github.Release
	Archive string // asset name of the archive for the target
}

// Updater finds and installs releases of Binary
type Updater struct {
	Client *github.Client
	Owner  string
	Repo   string
	// Binary is both the crate name in release tags and the executable
	// name inside the archive
	Binary    string
	Target    string
	PublicKey minisign.PublicKey
	// TempDir receives downloads; removed after Apply
	TempDir string
}

// Latest returns the newest stable release carrying an archive for the
// target, or ErrNoRelease.
func (u *Updater) Latest(ctx context.Context) (*Candidate, error) {
	releases, err := u.Client.GetReleases(ctx, u.Owner, u.Repo, 30)
	if err != nil {
		return nil, err
	}

	prefix := u.Binary + "-v"
	var best *Candidate
	for i := range releases {
		rel := &releases[i]
		if rel.Draft || rel.Prerelease || !strings.HasPrefix(rel.TagName, prefix) {
			continue
		}
		v, err := goversion.NewSemver(strings.TrimPrefix(rel.TagName, prefix))
		if err != nil || v.Prerelease() != "" {
			log.Debugf("Ignoring release %s", rel.TagName)
			continue
		}
		archive := ""
		for _, format := range []string{layout.FormatTxz, layout.FormatTgz} {
			name := layout.ArchiveName(u.Binary, v.Original(), u.Target, format)
			if rel.HasAsset(name) {
				archive = name
				break
			}
		}
		if archive == "" {
			log.Debugf("Release %s has no archive for %s", rel.TagName, u.Target)
			continue
		}
		if best == nil || v.GreaterThan(best.Version) {
			best = &Candidate{Version: v, Release: rel, Archive: archive}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w for %s on %s/%s", ErrNoRelease, u.Target, u.Owner, u.Repo)
	}
	return best, nil
}

// Newer reports whether c is newer than current. Unparseable current
// versions (development builds) are always older.
func Newer(c *Candidate, current string) bool {
	cur, err := goversion.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return true
	}
	return c.Version.GreaterThan(cur)
}

// Apply downloads c, checks the checksum list signature and the archive
// checksum, and atomically replaces the executable at exePath.
func (u *Updater) Apply(ctx context.Context, c *Candidate, exePath string) error {
	if err := os.MkdirAll(u.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(u.TempDir)

	sumsName := layout.ChecksumsFile
	sigName := layout.ChecksumsFile + layout.MinisigExt
	files := map[string]string{}
	for _, name := range []string{c.Archive, sumsName, sigName} {
		asset := findAsset(c.Release, name)
		if asset == nil {
			return fmt.Errorf("release %s has no asset %s", c.Release.TagName, name)
		}
		dest := filepath.Join(u.TempDir, name)
		if err := u.Client.DownloadFile(ctx, asset.BrowserDownloadURL, dest, nil); err != nil {
			return fmt.Errorf("failed to download %s: %w", name, err)
		}
		files[name] = dest
	}

	sums, err := os.ReadFile(files[sumsName])
	if err != nil {
		return err
	}
	sig, err := os.ReadFile(files[sigName])
	if err != nil {
		return err
	}
	if !signing.Verify(u.PublicKey, sums, sig) {
		return fmt.Errorf("%s signature does not verify with the trusted key", sumsName)
	}
	log.Debug("Checksum list signature verified", "release", c.Release.TagName)

	// Parse the bytes that were verified, not a second read of the file
	listed, err := util.ParseChecksums(bytes.NewReader(sums))
	if err != nil {
		return fmt.Errorf("%s: %w", sumsName, err)
	}
	if err := listed.Check(files[c.Archive]); err != nil {
		return err
	}

	extractDir := filepath.Join(u.TempDir, "extract")
	extract := util.ExtractTarXz
	if strings.HasSuffix(c.Archive, layout.ArchiveSuffix(layout.FormatTgz)) {
		extract = util.ExtractTarGz
	}
	if err := extract(files[c.Archive], extractDir); err != nil {
		return err
	}

	bin := filepath.Join(extractDir, u.Binary+layout.BinaryExt(u.Target))
	info, err := os.Stat(bin)
	if err != nil {
		return fmt.Errorf("archive does not contain %s: %w", filepath.Base(bin), err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s in archive is not a regular file", filepath.Base(bin))
	}

	if err := util.CopyFileAtomic(bin, exePath, 0755); err != nil {
		return fmt.Errorf("failed to replace %s: %w", exePath, err)
	}
	log.Info("Installed update", "version", c.Version.Original(), "path", exePath)
	return nil
}

func findAsset(r *github.Release, name string) *github.Asset {
	for i := range r.Assets {
		if r.Assets[i].Name == name {
			return &r.Assets[i]
		}
	}
	return nil
}
