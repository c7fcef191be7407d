package cli

import (
	"alertbot/internal/app"

	"github.com/spf13/cobra"
)

func newFilesCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "Serve the alerts folder read-only",
		Long:  "Serve alerts_folder over HTTP so media links in messages resolve. Directory listings are disabled.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: root.configPath})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Files(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default files.addr from the settings)")
	return cmd
}
