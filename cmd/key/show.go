// SPDX-License-Identifier: Apache-2.0
package key

import (
	"fmt"
	"os"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/spf13/cobra"
)

func newShowCmd(keyRef, passwordSource *string) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current public key",
		Long: `Load the signing keypair, check that it is intact and print its key ID and
the WAREHOUSE_PUBLIC value. Nothing is generated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			opts, _, err := keyOptions(*passwordSource)
			if err != nil {
				return err
			}

			var m *signing.Manager
			if os.Getenv(signing.EnvSecret) != "" {
				m, err = signing.LoadOrGenerate(*keyRef, opts)
			} else {
				priv, pub := signing.KeyPaths(*keyRef, opts.KeyDir)
				m, err = signing.Load(priv, pub, opts)
			}
			if err != nil {
				return err
			}
			defer m.Close()

			fmt.Println()
			printKey(m)

			if history && opts.HistoryDir != "" {
				keys, err := signing.History(opts.HistoryDir)
				if err != nil {
					return err
				}
				fmt.Println(theme.SubtleStyle().Render(fmt.Sprintf("Key history (%s):", opts.HistoryDir)))
				for _, k := range keys {
					fmt.Printf("  %s\n", k)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Also list previously generated public keys")
	return cmd
}
