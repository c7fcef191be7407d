package cli

import (
	"alertbot/internal/transport"

	"github.com/spf13/cobra"
)

// NewRootCmdWithMessengerForTest returns the root command with sends going to m.
func NewRootCmdWithMessengerForTest(m transport.Messenger) *cobra.Command {
	return newRootCmdWith(&rootOptions{messenger: m})
}
