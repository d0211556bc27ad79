package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Fill empty statuses in the Logs sheet",
	Long:  "Matches every Logs row without a status against the authorized-people sheet and writes the result (or 'Not Authorized') into column D.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		env := &appEnv{}
		defer env.Close()

		sheets, err := initSheets()
		if err != nil {
			return err
		}
		env.Sheets = sheets
		if err := env.openLocker(ctx); err != nil {
			return err
		}

		res, err := env.Resolver().Resolve(ctx)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Resolved %d of %d rows (%d authorized).\n", res.Resolved, res.Rows, res.Authorized)
		return err
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
