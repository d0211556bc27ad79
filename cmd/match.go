package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/printlog-cli/internal/logbook"
	"github.com/sells-group/printlog-cli/internal/matcher"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Look up a name in the authorized-people sheet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		first, _ := cmd.Flags().GetString("first")
		last, _ := cmd.Flags().GetString("last")

		if err := cfg.Validate("read"); err != nil {
			return err
		}
		sheets, err := initSheets()
		if err != nil {
			return err
		}

		refs, err := logbook.Reference(ctx, sheets, cfg.Workbook.ReferenceSheet)
		if err != nil {
			return eris.Wrap(err, "match")
		}
		refFirst, refLast, refValues := matcher.Columns(refs)

		_, err = fmt.Fprintln(cmd.OutOrStdout(), matcher.Match(first, last, refFirst, refLast, refValues))
		return err
	},
}

func init() {
	matchCmd.Flags().String("first", "", "first name")
	matchCmd.Flags().String("last", "", "last name")
	rootCmd.AddCommand(matchCmd)
}
