// Package cli defines the alertbot command tree.
package cli

import (
	"context"

	"alertbot/internal/transport"

	"github.com/spf13/cobra"
)

// DefaultConfigPath is the settings file looked up in the working directory.
const DefaultConfigPath = "./Settings.json"

var version = "dev"

type rootOptions struct {
	configPath string
	messenger  transport.Messenger
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{})
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "alertbot",
		Short:         "WhatsApp alert notifier for camera evidence",
		Long:          "alertbot notifies a fixed list of WhatsApp recipients about the newest alert image and answers their commands.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", DefaultConfigPath, "path to the settings file (JSON or YAML)")

	cmd.AddCommand(newNotifyCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newFilesCmd(opts))
	cmd.AddCommand(newStateCmd(opts))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

// Execute runs the command tree; ctx ends on shutdown signals.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
