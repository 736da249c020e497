// SPDX-License-Identifier: Apache-2.0
package build

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

const outputTail = 16 << 10

// Cargo builds with `cargo build`, or `cargo auditable build` when
// Auditable is set. Foreign targets must be installed with rustup.
type Cargo struct {
	Auditable bool
	// Output receives the build output of every task; nil discards it
	Output io.Writer

	targets targetCache
}

// Name returns the backend name used in reports and provenance
func (c *Cargo) Name() string {
	if c.Auditable {
		return "cargo-auditable"
	}
	return "cargo"
}

// Check skips targets rustup has not installed. The host target is always
// available.
func (c *Cargo) Check(ctx context.Context, target string) error {
	if _, err := exec.LookPath("cargo"); err != nil {
		return &Skipped{Target: target, Reason: "cargo not found on PATH"}
	}
	if c.Auditable {
		if _, err := exec.LookPath("cargo-auditable"); err != nil {
			return &Skipped{Target: target, Reason: "cargo-auditable not installed (run `warehouse deps install`)"}
		}
	}

	host, installed, err := c.targets.get(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("listing installed targets: %w", ctx.Err())
	}

	if target == host {
		return nil
	}
	if err != nil {
		return &Skipped{Target: target, Reason: fmt.Sprintf("cannot list installed targets: %v", err)}
	}
	if !installed[target] {
		return &Skipped{Target: target, Reason: fmt.Sprintf("target not installed (rustup target add %s)", target)}
	}
	return nil
}

// targetCache runs the installed-target query once per backend. A query
// cut short by its caller's context is not remembered, so one cancelled
// or timed out task does not decide the fate of the others.
type targetCache struct {
	// query defaults to rustupTargets
	query func(ctx context.Context) (host string, installed map[string]bool, err error)

	mu        sync.Mutex
	done      bool
	host      string
	installed map[string]bool
	err       error
}

func (t *targetCache) get(ctx context.Context) (string, map[string]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.host, t.installed, t.err
	}

	query := t.query
	if query == nil {
		query = rustupTargets
	}
	host, installed, err := query(ctx)
	if err != nil && ctx.Err() != nil {
		return host, nil, err
	}
	t.host, t.installed, t.err, t.done = host, installed, err, true
	return host, installed, err
}

func rustupTargets(ctx context.Context) (string, map[string]bool, error) {
	host, _ := config.HostTriple()

	if _, err := exec.LookPath("rustup"); err != nil {
		return host, nil, fmt.Errorf("rustup not found on PATH")
	}

	var out strings.Builder
	cmd := exec.Command("rustup", "target", "list", "--installed")
	cmd.Stdout = &out
	if err := util.RunCommand(ctx, cmd); err != nil {
		return host, nil, err
	}
	installed := ParseTargetList(out.String())
	log.Debugf("rustup reports %d installed target(s)", len(installed))
	return host, installed, nil
}

// ParseTargetList parses `rustup target list --installed`
func ParseTargetList(out string) map[string]bool {
	installed := make(map[string]bool)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimSuffix(line, " (installed)")
		if line != "" {
			installed[line] = true
		}
	}
	return installed
}

// Build runs cargo for task
func (c *Cargo) Build(ctx context.Context, task Task) ([]string, error) {
	args := c.Args(task)
	return runBuild(ctx, c.Output, task, "cargo", args)
}

// Args returns the cargo arguments for task
func (c *Cargo) Args(task Task) []string {
	var args []string
	if c.Auditable {
		args = append(args, "auditable")
	}
	return append(args, buildArgs(task)...)
}

// Cross builds inside cross-rs containers
type Cross struct {
	Output io.Writer
}

// Name returns the backend name
func (x *Cross) Name() string { return "cross" }

// Check requires cross and a container engine
func (x *Cross) Check(ctx context.Context, target string) error {
	if _, err := exec.LookPath("cross"); err != nil {
		return &Skipped{Target: target, Reason: "cross not installed (run `warehouse deps install`)"}
	}
	if os.Getenv("CROSS_CONTAINER_ENGINE") != "" {
		return nil
	}
	for _, engine := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(engine); err == nil {
			return nil
		}
	}
	return &Skipped{Target: target, Reason: "cross needs docker or podman"}
}

// Build runs cross for task
func (x *Cross) Build(ctx context.Context, task Task) ([]string, error) {
	return runBuild(ctx, x.Output, task, "cross", buildArgs(task))
}

func buildArgs(task Task) []string {
	args := []string{
		"build", "--release",
		"--manifest-path", task.ManifestPath,
		"--target", task.Target,
		"--target-dir", task.TargetDir,
	}
	for _, b := range task.Bins {
		args = append(args, "--bin", b)
	}
	return args
}

func runBuild(ctx context.Context, output io.Writer, task Task, name string, args []string) ([]string, error) {
	if err := os.MkdirAll(task.TargetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create target dir: %w", err)
	}

	tail := &util.TailBuffer{Max: outputTail}
	var w io.Writer = tail
	if output != nil {
		w = io.MultiWriter(tail, output)
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Env = append(os.Environ(), "CARGO_TERM_COLOR=never")

	log.Debugf("Running %s %s", name, strings.Join(args, " "))
	if err := util.RunCommand(ctx, cmd); err != nil {
		return nil, &CommandError{Args: append([]string{name}, args...), Err: err, Output: tail.String()}
	}

	bins := make([]string, 0, len(task.Bins))
	for _, b := range task.Bins {
		bins = append(bins, task.BinaryPath(b))
	}
	return bins, nil
}
