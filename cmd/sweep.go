package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/printlog-cli/internal/notifier"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Send one notification per new unauthorized print",
	Long:  "Takes the sweep lock, scans the Logs sheet, emails the admin for every unprocessed 'Not Authorized' row and marks each processed row in column L.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if dryRun {
			cfg.Mail.Driver = "log"
		}
		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		env, err := initApp(ctx, dryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Notifier().Sweep(ctx)
		// Another sweep holding the lock is not a failure of this invocation.
		if err != nil && !errors.Is(err, notifier.ErrLockTimeout) {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	sweepCmd.Flags().Bool("dry-run", false, "log emails instead of sending and leave the sent column untouched")
	rootCmd.AddCommand(sweepCmd)
}
