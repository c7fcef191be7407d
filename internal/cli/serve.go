package cli

import (
	"alertbot/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer inbound WhatsApp commands",
		Long: "Run the webhook that handles MENU, PARAR and ALERTAS, the welcome push pipeline " +
			"and, when outbound.schedule is set, periodic batches. Stops on SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: root.configPath, DryRun: dryRun, Messenger: root.messenger})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record sends instead of calling the provider and keep state in memory")
	return cmd
}
