// SPDX-License-Identifier: Apache-2.0
package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Work-Fort/Warehouse/pkg/util"
)

// stagePrefix names the scratch dirs a finalize stages files in. They live
// inside the tree so that commit is a rename on one filesystem.
const stagePrefix = ".finalize-"

// stage collects every file of a finalize before any of them becomes
// visible in the tree. commit moves them into place and undo puts the tree
// back the way it was.
type stage struct {
	root   string
	dir    string
	files  []string
	placed []placed
}

type placed struct {
	dst    string
	backup string
}

func newStage(root string) (*stage, error) {
	dir, err := os.MkdirTemp(root, stagePrefix)
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &stage{root: root, dir: dir}, nil
}

// removeStaleStages deletes staging dirs left by an interrupted finalize.
// Callers hold the index lock.
func removeStaleStages(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), stagePrefix) {
			errs = append(errs, os.RemoveAll(filepath.Join(root, e.Name())))
		}
	}
	return errors.Join(errs...)
}

func (s *stage) path(area, rel string) string {
	return filepath.Join(s.dir, area, filepath.FromSlash(rel))
}

// add stages data for rel, a slash separated path under the tree root
func (s *stage) add(rel string, data []byte) error {
	if err := util.WriteFileAtomic(s.path("new", rel), data, 0644); err != nil {
		return err
	}
	s.files = append(s.files, rel)
	return nil
}

// commit renames the staged files into the tree in the order they were
// added. Files they replace are kept until discard so undo can restore
// them. On error the tree is restored before returning.
func (s *stage) commit() error {
	for _, rel := range s.files {
		dst := filepath.Join(s.root, filepath.FromSlash(rel))
		if err := s.place(rel, dst); err != nil {
			s.undo()
			return fmt.Errorf("publish %s: %w", rel, err)
		}
	}
	return nil
}

func (s *stage) place(rel, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	p := placed{dst: dst}
	if _, err := os.Lstat(dst); err == nil {
		p.backup = s.path("old", rel)
		if err := os.MkdirAll(filepath.Dir(p.backup), 0755); err != nil {
			return err
		}
		if err := os.Rename(dst, p.backup); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(s.path("new", rel), dst); err != nil {
		if p.backup != "" {
			os.Rename(p.backup, dst)
		}
		return err
	}
	s.placed = append(s.placed, p)
	return nil
}

// undo reverses commit, newest first, and prunes release dirs it created
func (s *stage) undo() {
	for i := len(s.placed) - 1; i >= 0; i-- {
		p := s.placed[i]
		os.Remove(p.dst)
		if p.backup != "" {
			os.Rename(p.backup, p.dst)
		}
		for dir := filepath.Dir(p.dst); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
			if os.Remove(dir) != nil {
				break
			}
		}
	}
	s.placed = nil
}

// discard removes the staging dir and any replaced files kept for undo
func (s *stage) discard() error {
	return os.RemoveAll(s.dir)
}
