// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Work-Fort/Warehouse/pkg/signing"
)

// envHelp documents the environment read by commands that touch the
// signing key. Listed in help under "Environment".
var envHelp = []struct {
	name, desc string
}{
	{signing.EnvSecret, "minisign secret key; takes precedence over key files"},
	{signing.EnvPublic, "public key matching " + signing.EnvSecret + "; trusted key for `update`"},
	{signing.EnvPassword, "password for encrypted keys with --password-source env"},
}

// keyCommands read the signing environment
var keyCommands = map[string]bool{"release": true, "key": true, "init": true, "update": true}

func styledHelpFunc(cmd *cobra.Command, args []string) {
	renderMarkdown(generateHelpMarkdown(cmd))
}

func styledUsageFunc(cmd *cobra.Command) error {
	renderMarkdown(generateUsageMarkdown(cmd))
	return nil
}

// generateHelpMarkdown renders a command's help as markdown
func generateHelpMarkdown(cmd *cobra.Command) string {
	var md strings.Builder

	fmt.Fprintf(&md, "# %s\n\n", cmd.CommandPath())
	if cmd.Long != "" {
		fmt.Fprintf(&md, "%s\n\n", cmd.Long)
	} else if cmd.Short != "" {
		fmt.Fprintf(&md, "%s\n\n", cmd.Short)
	}

	if cmd.Runnable() {
		fmt.Fprintf(&md, "## Usage\n\n```\n%s\n```\n\n", cmd.UseLine())
	}
	if len(cmd.Aliases) > 0 {
		fmt.Fprintf(&md, "## Aliases\n\n`%s`\n\n", strings.Join(cmd.Aliases, "`, `"))
	}
	if cmd.Example != "" {
		fmt.Fprintf(&md, "## Examples\n\n```\n%s\n```\n\n", strings.TrimRight(cmd.Example, "\n"))
	}
	writeCommands(&md, "##", cmd)
	writeFlags(&md, "##", cmd)

	if needsKeyEnv(cmd) {
		md.WriteString("## Environment\n\n")
		for _, e := range envHelp {
			fmt.Fprintf(&md, "- `%s` - %s\n", e.name, e.desc)
		}
		md.WriteString("\n")
	}

	fmt.Fprintf(&md, "Use `%s [command] --help` for more information about a command.\n", cmd.CommandPath())
	return md.String()
}

// generateUsageMarkdown is the short form shown after usage errors
func generateUsageMarkdown(cmd *cobra.Command) string {
	var md strings.Builder
	md.WriteString("## Usage\n\n")
	if cmd.Runnable() {
		fmt.Fprintf(&md, "```\n%s\n```\n\n", cmd.UseLine())
	}
	writeCommands(&md, "###", cmd)
	writeFlags(&md, "###", cmd)
	return md.String()
}

func writeCommands(md *strings.Builder, heading string, cmd *cobra.Command) {
	var lines []string
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() && !sub.IsAdditionalHelpTopicCommand() {
			lines = append(lines, fmt.Sprintf("- **%s** - %s", sub.Name(), sub.Short))
		}
	}
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(md, "%s Available Commands\n\n%s\n\n", heading, strings.Join(lines, "\n"))
}

func writeFlags(md *strings.Builder, heading string, cmd *cobra.Command) {
	if cmd.HasAvailableLocalFlags() {
		fmt.Fprintf(md, "%s Flags\n\n```\n%s\n```\n\n", heading, cmd.LocalFlags().FlagUsages())
	}
	if cmd.HasAvailableInheritedFlags() {
		fmt.Fprintf(md, "%s Global Flags\n\n```\n%s\n```\n\n", heading, cmd.InheritedFlags().FlagUsages())
	}
}

// needsKeyEnv reports whether cmd or its top-level group uses the signing key
func needsKeyEnv(cmd *cobra.Command) bool {
	for c := cmd; c != nil && c.HasParent(); c = c.Parent() {
		if !c.Parent().HasParent() {
			return keyCommands[c.Name()]
		}
	}
	return false
}

// renderMarkdown prints markdown through glamour, or as-is when rendering fails
func renderMarkdown(markdown string) {
	width := 100
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		fmt.Println(markdown)
		return
	}
	rendered, err := r.Render(markdown)
	if err != nil {
		fmt.Println(markdown)
		return
	}
	fmt.Println(strings.TrimRight(rendered, " \n"))
}
