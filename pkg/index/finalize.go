// SPDX-License-Identifier: Apache-2.0
package index

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/packager"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

// Signer produces detached minisign signatures
type Signer interface {
	Sign(msg []byte) ([]byte, error)
	ExportPublic() string
	KeyID() string
}

// IndexError aborts a finalize. The published tree is left unchanged when
// it is returned.
type IndexError struct {
	Collisions []Coordinate
	Err        error
}

func (e *IndexError) Error() string {
	if len(e.Collisions) > 0 {
		names := make([]string, len(e.Collisions))
		for i, c := range e.Collisions {
			names[i] = c.String()
		}
		return fmt.Sprintf("refusing to republish %d artifact(s): %s", len(e.Collisions), strings.Join(names, ", "))
	}
	return fmt.Sprintf("index update failed: %v", e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Finalizer publishes artifacts into Dir and updates Dir/index.json
type Finalizer struct {
	Dir     string
	BaseURL string
	Layout  string
	Format  string
	Signer  Signer
	Logger  *log.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

func (f *Finalizer) logger() *log.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return log.Default()
}

func (f *Finalizer) now() time.Time {
	if f.Now != nil {
		return f.Now().UTC()
	}
	return time.Now().UTC()
}

// IndexPath returns the index file inside dir
func IndexPath(dir string) string { return filepath.Join(dir, layout.IndexFile) }

// Finalize signs and publishes every artifact, or none of them. Coordinates
// that are already in the index, or repeated within artifacts, are
// rejected with an *IndexError before anything is written. Every file is
// signed and staged first; only then are the files moved into the tree,
// and index.json is written last. A failure at any step leaves the tree as
// it was.
func (f *Finalizer) Finalize(artifacts []*packager.Artifact) (*Index, error) {
	if f.Signer == nil {
		return nil, &IndexError{Err: fmt.Errorf("no signer")}
	}

	lk, err := acquireLock(f.Dir)
	if err != nil {
		return nil, &IndexError{Err: err}
	}
	defer func() {
		if err := lk.release(); err != nil {
			f.logger().Warn("Failed to release index lock", "err", err)
		}
	}()

	if err := removeStaleStages(f.Dir); err != nil {
		f.logger().Warn("Failed to remove stale staging dirs", "err", err)
	}

	idx, err := Load(IndexPath(f.Dir))
	if err != nil {
		return nil, &IndexError{Err: err}
	}

	if err := checkCollisions(idx, artifacts); err != nil {
		return nil, err
	}

	st, err := newStage(f.Dir)
	if err != nil {
		return nil, &IndexError{Err: err}
	}
	defer func() {
		if err := st.discard(); err != nil {
			f.logger().Warn("Failed to remove staging dir", "dir", st.dir, "err", err)
		}
	}()

	publishedAt := f.now()
	entries := make([]Entry, 0, len(artifacts))
	releases := make(map[string][2]string)

	for _, art := range artifacts {
		entry, err := f.stageArtifact(st, art, publishedAt)
		if err != nil {
			return nil, &IndexError{Err: fmt.Errorf("%s: %w", art.FileName, err)}
		}
		entries = append(entries, *entry)
		releases[layout.ReleaseDir(art.Crate, art.Version)] = [2]string{art.Crate, art.Version}
	}

	merged := &Index{
		Schema:    SchemaVersion,
		PublicKey: f.Signer.ExportPublic(),
		KeyID:     f.Signer.KeyID(),
		Updated:   publishedAt,
		Entries:   append(append([]Entry(nil), idx.Entries...), entries...),
	}
	if idx.PublicKey != "" && idx.PublicKey != merged.PublicKey {
		f.logger().Warn("Signing key changed since the last release", "previous", idx.KeyID, "current", merged.KeyID)
	}
	merged.Sort()

	dirs := make([]string, 0, len(releases))
	for d := range releases {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		cv := releases[d]
		if err := f.stageChecksums(st, merged.Release(cv[0], cv[1]), d); err != nil {
			return nil, &IndexError{Err: err}
		}
	}
	if err := st.add(layout.PublicKeyFile, publicKeyFile(f.Signer)); err != nil {
		return nil, &IndexError{Err: fmt.Errorf("stage public key: %w", err)}
	}

	if err := st.commit(); err != nil {
		return nil, &IndexError{Err: err}
	}
	if err := merged.Save(IndexPath(f.Dir)); err != nil {
		st.undo()
		return nil, &IndexError{Err: err}
	}

	f.logger().Info("Index updated", "new", len(entries), "total", len(merged.Entries))
	return merged, nil
}

func checkCollisions(idx *Index, artifacts []*packager.Artifact) error {
	var collisions []Coordinate
	seen := make(map[Coordinate]bool, len(artifacts))
	for _, art := range artifacts {
		c := Coordinate{Crate: art.Crate, Version: art.Version, Target: art.Target}
		if idx.Has(c) || seen[c] {
			collisions = append(collisions, c)
		}
		seen[c] = true
	}
	if len(collisions) > 0 {
		return &IndexError{Collisions: collisions}
	}
	return nil
}

// stageArtifact stages one archive with its digest and signature
func (f *Finalizer) stageArtifact(st *stage, art *packager.Artifact, at time.Time) (*Entry, error) {
	data, err := os.ReadFile(art.Path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if sum := util.SHA256Bytes(data); sum != art.SHA256 {
		return nil, fmt.Errorf("archive changed since packaging: digest %s, expected %s", sum, art.SHA256)
	}

	sig, err := f.Signer.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("sign archive: %w", err)
	}

	rel := path.Join(layout.ReleaseDir(art.Crate, art.Version), art.FileName)
	if err := st.add(rel, data); err != nil {
		return nil, fmt.Errorf("stage archive: %w", err)
	}
	digestLine := fmt.Sprintf("%s  %s\n", art.SHA256, art.FileName)
	if err := st.add(rel+layout.DigestExt, []byte(digestLine)); err != nil {
		return nil, fmt.Errorf("stage digest: %w", err)
	}
	if err := st.add(rel+layout.SignatureExt, sig); err != nil {
		return nil, fmt.Errorf("stage signature: %w", err)
	}

	return &Entry{
		Coordinate: Coordinate{Crate: art.Crate, Version: art.Version, Target: art.Target},
		File:       rel,
		URL:        layout.URL(f.BaseURL, f.Layout, art.Crate, art.Version, art.Target, f.Format),
		SHA256:     art.SHA256,
		Signature:  string(sig),
		Size:       art.Size,
		KeyID:      f.Signer.KeyID(),
		Published:  at,
	}, nil
}

// stageChecksums stages SHA256SUMS for one release and its signature
func (f *Finalizer) stageChecksums(st *stage, entries []Entry, releaseDir string) error {
	sums := make(util.Checksums, len(entries))
	for _, e := range entries {
		sums[path.Base(e.File)] = e.SHA256
	}
	data := sums.Bytes()

	sig, err := f.Signer.Sign(data)
	if err != nil {
		return fmt.Errorf("sign %s: %w", layout.ChecksumsFile, err)
	}

	sumsFile := path.Join(releaseDir, layout.ChecksumsFile)
	if err := st.add(sumsFile, data); err != nil {
		return fmt.Errorf("stage %s: %w", layout.ChecksumsFile, err)
	}
	if err := st.add(sumsFile+layout.MinisigExt, sig); err != nil {
		return fmt.Errorf("stage %s%s: %w", layout.ChecksumsFile, layout.MinisigExt, err)
	}
	return nil
}

func publicKeyFile(s Signer) []byte {
	return []byte(fmt.Sprintf("untrusted comment: minisign public key: %s\n%s\n", s.KeyID(), s.ExportPublic()))
}
