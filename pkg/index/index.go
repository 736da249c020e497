// SPDX-License-Identifier: Apache-2.0

// Package index signs packaged artifacts, lays them out in the published
// tree and maintains index.json, the append-only catalogue of everything
// ever published there.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/Work-Fort/Warehouse/pkg/util"
)

// SchemaVersion is the index.json format version written by this package
const SchemaVersion = 1

// Coordinate identifies one published artifact
type Coordinate struct {
	Crate   string `json:"crate"`
	Version string `json:"version"`
	Target  string `json:"target"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s@%s/%s", c.Crate, c.Version, c.Target)
}

// Entry is one published artifact
type Entry struct {
	Coordinate
	// File is the archive path relative to the tree root, slash separated
	File      string    `json:"file"`
	URL       string    `json:"url"`
	SHA256    string    `json:"sha256"`
	Signature string    `json:"signature"`
	Size      int64     `json:"size"`
	KeyID     string    `json:"key_id"`
	Published time.Time `json:"published"`
}

// Index is the content of index.json
type Index struct {
	Schema    int       `json:"schema"`
	PublicKey string    `json:"public_key"`
	KeyID     string    `json:"key_id"`
	Updated   time.Time `json:"updated"`
	Entries   []Entry   `json:"entries"`
}

// Load reads an index. A missing file is an empty index.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Index{Schema: SchemaVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index %s: %w", path, err)
	}
	if idx.Schema > SchemaVersion {
		return nil, fmt.Errorf("index %s has schema %d, this version understands up to %d", path, idx.Schema, SchemaVersion)
	}
	if idx.Schema == 0 {
		idx.Schema = SchemaVersion
	}
	return &idx, nil
}

// Save writes the index atomically
func (idx *Index) Save(path string) error {
	idx.Sort()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return util.WriteFileAtomic(path, append(data, '\n'), 0644)
}

// Has reports whether c is already published
func (idx *Index) Has(c Coordinate) bool {
	return idx.Find(c) != nil
}

// Find returns the entry for c, or nil
func (idx *Index) Find(c Coordinate) *Entry {
	for i := range idx.Entries {
		if idx.Entries[i].Coordinate == c {
			return &idx.Entries[i]
		}
	}
	return nil
}

// Release returns the entries of one crate version
func (idx *Index) Release(crate, ver string) []Entry {
	var out []Entry
	for _, e := range idx.Entries {
		if e.Crate == crate && e.Version == ver {
			out = append(out, e)
		}
	}
	return out
}

// Sort orders entries by crate, semantic version, then target
func (idx *Index) Sort() {
	sort.SliceStable(idx.Entries, func(i, j int) bool {
		a, b := idx.Entries[i], idx.Entries[j]
		if a.Crate != b.Crate {
			return a.Crate < b.Crate
		}
		if a.Version != b.Version {
			return versionLess(a.Version, b.Version)
		}
		return a.Target < b.Target
	})
}

func versionLess(a, b string) bool {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}
