package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"alertbot/internal/app"
	rtsup "alertbot/internal/runtime/supervisor"
	"alertbot/internal/transport"

	"github.com/spf13/cobra"
)

func newNotifyCmd(root *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Run one outbound batch for the newest evidence",
		Long: "Evaluate every configured recipient against the newest alert image and send a " +
			"session message or the approved template where due.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: root.configPath, DryRun: dryRun, Messenger: root.messenger})
			if err != nil {
				return err
			}
			defer a.Close()

			sup := rtsup.New(cmd.Context(), rtsup.WithLogger(a.Logger()))
			return sup.Guard("notify", func(ctx context.Context) error {
				sum, err := a.NotifyOnce(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if dryRun {
					printCalls(out, a.DryRunCalls())
				}
				fmt.Fprintf(out, "run %s image=%s %s\n", sum.RunID, sum.ImageRef, sum.String())
				// Sends already happened; a lost save only costs a resend later.
				if sum.SaveErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: state not saved: %v\n", sum.SaveErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record sends instead of calling the provider and keep state in memory")
	return cmd
}

func printCalls(w io.Writer, calls []transport.Call) {
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].To < calls[j].To })
	for _, c := range calls {
		switch c.Kind {
		case transport.KindTemplate:
			fmt.Fprintf(w, "%-8s %s %s\n", c.Kind, c.To, formatVars(c.Vars))
		default:
			fmt.Fprintf(w, "%-8s %s %q media=%s\n", c.Kind, c.To, c.Body, c.MediaURL)
		}
	}
}

func formatVars(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("{{%s}}=%q", k, vars[k]))
	}
	return strings.Join(parts, " ")
}
