// SPDX-License-Identifier: Apache-2.0

// Package build cross-compiles release binaries for every (crate, target)
// pair on a bounded worker pool.
package build

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Work-Fort/Warehouse/pkg/layout"
)

// State is the lifecycle state of one build task
type State int

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether the task has finished
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

func allowed(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed || to == StateSkipped
	case StateRunning:
		return to == StateSucceeded || to == StateFailed || to == StateSkipped
	default:
		return false
	}
}

// Task is one crate built for one target
type Task struct {
	Crate        string
	Version      string
	ManifestPath string
	Target       string
	Bins         []string
	// TargetDir is private to this task
	TargetDir string
}

// String identifies the task in logs
func (t Task) String() string {
	return fmt.Sprintf("%s@%s (%s)", t.Crate, t.Version, t.Target)
}

// BinaryPath returns where cargo leaves bin for this task
func (t Task) BinaryPath(bin string) string {
	return filepath.Join(t.TargetDir, t.Target, "release", bin+layout.BinaryExt(t.Target))
}

// Result is the outcome of one task
type Result struct {
	Task     Task
	State    State
	Binaries []string
	// Reason is a one-line explanation for Failed and Skipped
	Reason   string
	Err      error
	Duration time.Duration
}

// transition moves r to state to, refusing edges the lifecycle forbids
func (r *Result) transition(to State) error {
	if !allowed(r.State, to) {
		return fmt.Errorf("invalid transition for %s: %s -> %s", r.Task, r.State, to)
	}
	r.State = to
	return nil
}
