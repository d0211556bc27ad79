package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/printlog-cli/internal/guard"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a printer's current job is logged and authorized",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		device, _ := cmd.Flags().GetString("device")
		strict, _ := cmd.Flags().GetBool("strict")

		if device == "" {
			return eris.New("--device is required")
		}
		if err := cfg.Validate("read"); err != nil {
			return err
		}

		sheets, err := initSheets()
		if err != nil {
			return err
		}
		g, err := initGuard(sheets)
		if err != nil {
			return err
		}

		d, err := g.Check(ctx, device)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return err
		}
		if strict && d.Verdict != guard.VerdictAuthorized {
			return eris.Errorf("%s: %s", d.Device, d.Verdict)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().String("device", "", "printer serial or display name")
	checkCmd.Flags().Bool("strict", false, "exit non-zero unless the verdict is authorized")
	rootCmd.AddCommand(checkCmd)
}
