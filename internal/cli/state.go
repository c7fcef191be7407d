package cli

import (
	"encoding/json"
	"fmt"

	"alertbot/internal/app"

	"github.com/spf13/cobra"
)

func newStateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the persisted recipient states as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: root.configPath})
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.States(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
}
