// SPDX-License-Identifier: Apache-2.0
package ui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// MinPasswordLength applies to passwords chosen for new keys and backups
const MinPasswordLength = 8

// ErrNotInteractive is returned by prompts when stdin is not a terminal
var ErrNotInteractive = errors.New("stdin is not a terminal")

// IsTerminal reports whether stdin is attached to a terminal
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PasswordInput asks once for an existing password with masked input
func PasswordInput(title string) (string, error) {
	if !IsTerminal() {
		return "", ErrNotInteractive
	}

	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Placeholder("Enter password").
				EchoMode(huh.EchoModePassword).
				Validate(notEmpty).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return password, nil
}

// NewPasswordInput asks for a new password twice. The first entry must be
// at least MinPasswordLength characters and the second must match it.
func NewPasswordInput(title string) (string, error) {
	if !IsTerminal() {
		return "", ErrNotInteractive
	}

	var password, confirm string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(fmt.Sprintf("At least %d characters. It cannot be recovered if lost.", MinPasswordLength)).
				EchoMode(huh.EchoModePassword).
				Validate(ValidateNewPassword).
				Value(&password),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					if s != password {
						return errors.New("passwords do not match")
					}
					return nil
				}).
				Value(&confirm),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

// ValidateNewPassword enforces the minimum length for new passwords
func ValidateNewPassword(s string) error {
	if len([]rune(s)) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

func notEmpty(s string) error {
	if s == "" {
		return errors.New("password cannot be empty")
	}
	return nil
}
