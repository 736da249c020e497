// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

type completionGen func(root *cobra.Command, w io.Writer, descriptions bool) error

var completionShells = map[string]completionGen{
	"bash": func(root *cobra.Command, w io.Writer, desc bool) error {
		return root.GenBashCompletionV2(w, desc)
	},
	"zsh": func(root *cobra.Command, w io.Writer, desc bool) error {
		if desc {
			return root.GenZshCompletion(w)
		}
		return root.GenZshCompletionNoDesc(w)
	},
	"fish": func(root *cobra.Command, w io.Writer, desc bool) error {
		return root.GenFishCompletion(w, desc)
	},
}

func shellNames() []string {
	names := make([]string, 0, len(completionShells))
	for name := range completionShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newCompletionCmd stands in for cobra's default completion command
// without powershell.
func newCompletionCmd(root *cobra.Command) *cobra.Command {
	var noDesc bool

	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate a shell completion script",
		Long: `Generate a completion script for bash, zsh or fish and write it to stdout.

To load completions for the current bash session:

  source <(warehouse completion bash)`,
		Example: `  warehouse completion bash > ~/.local/share/bash-completion/completions/warehouse
  warehouse completion zsh > "${fpath[1]}/_warehouse"
  warehouse completion fish > ~/.config/fish/completions/warehouse.fish`,
		Args:                  cobra.ExactArgs(1),
		ValidArgs:             shellNames(),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, ok := completionShells[args[0]]
			if !ok {
				return fmt.Errorf("unsupported shell %q (want one of %v)", args[0], shellNames())
			}
			return gen(root, cmd.OutOrStdout(), !noDesc)
		},
	}
	cmd.Flags().BoolVar(&noDesc, "no-descriptions", false, "Leave command descriptions out of completions")

	return cmd
}
