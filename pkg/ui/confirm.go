// SPDX-License-Identifier: Apache-2.0
package ui

import (
	"strings"

	"github.com/charmbracelet/huh"
)

// Confirm asks a yes/no question. details, when given, are listed under the
// question so the user sees exactly what will happen. The default answer is
// no.
func Confirm(title string, details ...string) (bool, error) {
	if !IsTerminal() {
		return false, ErrNotInteractive
	}

	var confirmed bool
	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)
	if len(details) > 0 {
		c = c.Description("  " + strings.Join(details, "\n  "))
	}

	if err := huh.NewForm(huh.NewGroup(c)).Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
