// SPDX-License-Identifier: Apache-2.0

// Package deps checks and installs the cargo tools a release depends on,
// such as cargo-auditable and cross.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/Work-Fort/Warehouse/pkg/release"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

// Runner executes cargo and returns its stdout
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// CargoRunner runs the real cargo binary
type CargoRunner struct{}

// Run executes cargo with args
func (CargoRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	stderr := &util.TailBuffer{Max: 8 << 10}
	cmd := exec.Command("cargo", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	if err := util.RunCommand(ctx, cmd); err != nil {
		return stdout.Bytes(), fmt.Errorf("cargo %s: %w\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Status describes one required tool
type Status struct {
	Name      string
	Pin       string
	Installed string
}

// Satisfied reports whether the installed version meets the pin
func (s Status) Satisfied() bool {
	return s.Installed != "" && release.PinSatisfied(s.Pin, s.Installed)
}

// ParseInstallList parses `cargo install --list` into name -> version.
// Indented lines list the binaries of the preceding package and are skipped.
func ParseInstallList(out []byte) (map[string]string, error) {
	installed := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed cargo install --list line: %q", line)
		}
		ver := strings.TrimSuffix(strings.TrimPrefix(fields[1], "v"), ":")
		installed[fields[0]] = ver
	}
	return installed, sc.Err()
}

// Check reports the state of every tool the config requires
func Check(ctx context.Context, r Runner, cfg *release.Config) ([]Status, error) {
	out, err := r.Run(ctx, "install", "--list")
	if err != nil {
		return nil, fmt.Errorf("failed to list installed cargo tools (is cargo on PATH?): %w", err)
	}
	installed, err := ParseInstallList(out)
	if err != nil {
		return nil, err
	}

	var statuses []Status
	for _, dep := range cfg.Requirements() {
		s := Status{Name: dep.Name, Pin: dep.Version, Installed: installed[dep.Name]}
		log.Debugf("Dependency %s: pin %s, installed %q", s.Name, s.Pin, s.Installed)
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// Missing filters statuses down to the unsatisfied ones
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Satisfied() {
			missing = append(missing, s)
		}
	}
	return missing
}

// InstallArgs returns the cargo arguments that install s. Exact pins are
// passed with --version; a range is passed as the requirement cargo
// understands.
func InstallArgs(s Status) []string {
	args := []string{"install", s.Name, "--locked"}
	if s.Pin != "" && s.Pin != release.VersionLatest {
		args = append(args, "--version", s.Pin)
	}
	if s.Installed != "" {
		args = append(args, "--force")
	}
	return args
}

// Install installs every missing tool in order, stopping at the first
// failure.
func Install(ctx context.Context, r Runner, missing []Status) error {
	for _, s := range missing {
		log.Infof("Installing %s (%s)", s.Name, pinLabel(s.Pin))
		if _, err := r.Run(ctx, InstallArgs(s)...); err != nil {
			return fmt.Errorf("failed to install %s: %w", s.Name, err)
		}
	}
	return nil
}

func pinLabel(pin string) string {
	if pin == "" {
		return release.VersionLatest
	}
	return pin
}
