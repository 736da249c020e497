// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/util"
)

func newSchemaCmd() *cobra.Command {
	var (
		output    string
		scopeName string
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config files",
		Long: `Print a JSON Schema (draft 2020-12) describing the config files, for
editor completion and validation. --scope limits it to the keys accepted
in the user or repo config.`,
		Example: `  warehouse config schema --scope repo -o .vscode/warehouse.schema.json

  # .vscode/settings.json
  { "yaml.schemas": { "./.vscode/warehouse.schema.json": "warehouse.yaml" } }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var scope *config.ConfigScope
			if scopeName != "" {
				s, err := config.ParseScope(scopeName)
				if err != nil {
					return err
				}
				scope = &s
			}

			schema, err := config.GenerateJSONSchemaForScope(scope)
			if err != nil {
				return fmt.Errorf("failed to generate schema: %w", err)
			}
			if output == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(schema))
				return nil
			}
			if err := util.WriteFileAtomic(output, append(schema, '\n'), 0644); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.CurrentTheme.SuccessMessage("Schema written to "+output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the schema to a file")
	cmd.Flags().StringVar(&scopeName, "scope", "", "Limit to one config: user or repo")
	_ = cmd.RegisterFlagCompletionFunc("scope", cobra.FixedCompletions([]string{"user", "repo"}, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}
