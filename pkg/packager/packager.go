// SPDX-License-Identifier: Apache-2.0

// Package packager turns successful builds into deterministic, digested
// archives ready for signing.
package packager

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/build"
	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

// ProvenanceFile is added to archives of auditable builds
const ProvenanceFile = "provenance.json"

// Artifact is one packaged archive
type Artifact struct {
	Crate    string
	Version  string
	Target   string
	Path     string
	FileName string
	SHA256   string
	Size     int64
	Binaries []string
}

// PackageError reports an archive that could not be produced
type PackageError struct {
	Crate  string
	Target string
	Err    error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("packaging %s for %s failed: %v", e.Crate, e.Target, e.Err)
}

func (e *PackageError) Unwrap() error { return e.Err }

// Provenance records how an archive was built
type Provenance struct {
	Crate        string            `json:"crate"`
	Version      string            `json:"version"`
	Target       string            `json:"target"`
	Backend      string            `json:"backend"`
	Auditable    bool              `json:"auditable"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Binaries     []string          `json:"binaries"`
	BuiltAt      time.Time         `json:"built_at"`
}

// Packager writes archives into OutDir
type Packager struct {
	Format string
	OutDir string
	// ModTime is stamped on every archive entry
	ModTime   time.Time
	Auditable bool
	Backend   string
	// Pins lists tool versions recorded in provenance
	Pins map[string]string
}

// ModTimeFromEnv returns SOURCE_DATE_EPOCH as a time, or the Unix epoch
func ModTimeFromEnv() time.Time {
	if v := os.Getenv("SOURCE_DATE_EPOCH"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
			return time.Unix(secs, 0).UTC()
		}
		log.Warnf("Ignoring invalid SOURCE_DATE_EPOCH %q", v)
	}
	return time.Unix(0, 0).UTC()
}

// Package archives the binaries of a succeeded build
func (p *Packager) Package(res build.Result) (*Artifact, error) {
	task := res.Task
	if res.State != build.StateSucceeded {
		return nil, &PackageError{Crate: task.Crate, Target: task.Target, Err: fmt.Errorf("build %s, nothing to package", res.State)}
	}
	art, err := p.pack(task, res.Binaries)
	if err != nil {
		return nil, &PackageError{Crate: task.Crate, Target: task.Target, Err: err}
	}
	log.Debugf("Packaged %s (%d bytes, sha256 %s)", art.FileName, art.Size, art.SHA256)
	return art, nil
}

func (p *Packager) pack(task build.Task, binaries []string) (*Artifact, error) {
	if len(binaries) == 0 {
		return nil, fmt.Errorf("no binaries")
	}

	names := make([]string, 0, len(binaries))
	tarEntries := make([]util.TarEntry, 0, len(binaries)+1)
	seen := make(map[string]bool)
	for _, b := range binaries {
		name := filepath.Base(b)
		if seen[name] {
			return nil, fmt.Errorf("duplicate binary name %s", name)
		}
		seen[name] = true
		info, err := os.Stat(b)
		if err != nil {
			return nil, fmt.Errorf("binary missing: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file", b)
		}
		names = append(names, name)
		tarEntries = append(tarEntries, util.TarEntry{Name: name, Mode: 0755, Source: b})
	}
	sort.Strings(names)

	if p.Auditable {
		prov, err := json.MarshalIndent(Provenance{
			Crate:        task.Crate,
			Version:      task.Version,
			Target:       task.Target,
			Backend:      p.Backend,
			Auditable:    true,
			Dependencies: p.Pins,
			Binaries:     names,
			BuiltAt:      p.ModTime.UTC(),
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode provenance: %w", err)
		}
		tarEntries = append(tarEntries, util.TarEntry{Name: ProvenanceFile, Mode: 0644, Data: append(prov, '\n')})
	}

	if err := os.MkdirAll(p.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}

	fileName := layout.ArchiveName(task.Crate, task.Version, task.Target, p.Format)
	finalPath := filepath.Join(p.OutDir, fileName)

	tmp, err := os.CreateTemp(p.OutDir, "."+fileName+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	counter := &countingWriter{}
	w := io.MultiWriter(tmp, hasher, counter)

	if p.Format == layout.FormatTgz {
		err = util.WriteTarGz(w, tarEntries, p.ModTime)
	} else {
		err = util.WriteTarXz(w, tarEntries, p.ModTime)
	}
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	return &Artifact{
		Crate:    task.Crate,
		Version:  task.Version,
		Target:   task.Target,
		Path:     finalPath,
		FileName: fileName,
		SHA256:   hex.EncodeToString(hasher.Sum(nil)),
		Size:     counter.n,
		Binaries: names,
	}, nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
