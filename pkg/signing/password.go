// SPDX-License-Identifier: Apache-2.0
package signing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Work-Fort/Warehouse/pkg/ui"
)

// EnvPassword holds the password of encrypted keys for unattended runs
const EnvPassword = "WAREHOUSE_PASSWORD"

// PasswordSource selects where key passwords come from
type PasswordSource int

const (
	// PasswordSourceAuto reads piped stdin, then WAREHOUSE_PASSWORD, then
	// prompts
	PasswordSourceAuto PasswordSource = iota
	PasswordSourceEnv
	PasswordSourceStdin
	PasswordSourceTUI
)

var sourceNames = [...]string{"auto", "env", "stdin", "tui"}

func (s PasswordSource) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return fmt.Sprintf("PasswordSource(%d)", int(s))
	}
	return sourceNames[s]
}

// ParsePasswordSource parses a --password-source value
func ParsePasswordSource(s string) (PasswordSource, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return PasswordSourceAuto, nil
	}
	for i, n := range sourceNames {
		if n == name {
			return PasswordSource(i), nil
		}
	}
	return PasswordSourceAuto, fmt.Errorf("invalid password source: %s (valid: %s)", s, strings.Join(sourceNames[:], ", "))
}

// ErrNoPassword is returned when a source has nothing to offer
var ErrNoPassword = errors.New("no password available")

// Passwords resolves key passwords from one source. Stdin is read at most
// once; later requests reuse the first line.
type Passwords struct {
	Source PasswordSource
	Getenv func(string) string
	Stdin  io.Reader
	// Piped reports whether stdin carries data rather than a terminal
	Piped func() bool
	// Prompt asks interactively; confirm is set for new passwords
	Prompt func(title string, confirm bool) (string, error)

	once     sync.Once
	stdinPW  string
	stdinErr error
}

// NewPasswords returns a resolver wired to the process environment, stdin
// and the terminal prompts.
func NewPasswords(source PasswordSource) *Passwords {
	return &Passwords{
		Source: source,
		Getenv: os.Getenv,
		Stdin:  os.Stdin,
		Piped:  func() bool { return !ui.IsTerminal() },
		Prompt: func(title string, confirm bool) (string, error) {
			if confirm {
				return ui.NewPasswordInput(title)
			}
			return ui.PasswordInput(title)
		},
	}
}

// Prompter returns the PasswordFunc that unlocks existing keys
func Prompter(source PasswordSource) PasswordFunc {
	return NewPasswords(source).Get
}

// Get returns the password of an existing key or backup
func (p *Passwords) Get(prompt string) (string, error) {
	return p.resolve(prompt, false)
}

// New returns a password for new key material. Typed passwords are asked
// for twice.
func (p *Passwords) New(prompt string) (string, error) {
	return p.resolve(prompt, true)
}

func (p *Passwords) resolve(prompt string, confirm bool) (string, error) {
	switch p.Source {
	case PasswordSourceEnv:
		return p.fromEnv()
	case PasswordSourceStdin:
		return p.fromStdin()
	case PasswordSourceTUI:
		return p.fromPrompt(prompt, confirm)
	case PasswordSourceAuto:
		if p.Piped != nil && p.Piped() {
			if pw, err := p.fromStdin(); err == nil {
				return pw, nil
			}
		}
		if pw, err := p.fromEnv(); err == nil {
			return pw, nil
		}
		return p.fromPrompt(prompt, confirm)
	}
	return "", fmt.Errorf("invalid password source: %s", p.Source)
}

func (p *Passwords) fromEnv() (string, error) {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if pw := getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	return "", fmt.Errorf("%w: %s is not set", ErrNoPassword, EnvPassword)
}

// fromStdin reads a single line and trims surrounding whitespace
func (p *Passwords) fromStdin() (string, error) {
	p.once.Do(func() {
		if p.Stdin == nil {
			p.stdinErr = fmt.Errorf("%w: no stdin", ErrNoPassword)
			return
		}
		scanner := bufio.NewScanner(p.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				p.stdinErr = fmt.Errorf("failed to read from stdin: %w", err)
			} else {
				p.stdinErr = fmt.Errorf("%w: stdin is empty", ErrNoPassword)
			}
			return
		}
		p.stdinPW = strings.TrimSpace(scanner.Text())
		if p.stdinPW == "" {
			p.stdinErr = fmt.Errorf("%w: empty line on stdin", ErrNoPassword)
		}
	})
	return p.stdinPW, p.stdinErr
}

func (p *Passwords) fromPrompt(prompt string, confirm bool) (string, error) {
	if p.Prompt == nil {
		return "", fmt.Errorf("%w: no terminal prompt", ErrNoPassword)
	}
	pw, err := p.Prompt(prompt, confirm)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if pw == "" {
		return "", fmt.Errorf("%w: empty password", ErrNoPassword)
	}
	return pw, nil
}
