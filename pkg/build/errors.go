// SPDX-License-Identifier: Apache-2.0
package build

import (
	"fmt"
	"strings"
)

// Failure reports a build that ran and did not produce its binaries
type Failure struct {
	Crate  string
	Target string
	Reason string
	Err    error
}

func (e *Failure) Error() string {
	msg := fmt.Sprintf("build of %s for %s failed: %s", e.Crate, e.Target, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Failure) Unwrap() error { return e.Err }

// Skipped reports a target the backend cannot build on this host
type Skipped struct {
	Target string
	Reason string
}

func (e *Skipped) Error() string {
	return fmt.Sprintf("target %s skipped: %s", e.Target, e.Reason)
}

// CommandError carries the exit status and trailing output of a failed tool
type CommandError struct {
	Args   []string
	Err    error
	Output string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	if tail := lastLines(e.Output, 20); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
