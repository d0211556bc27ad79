package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/notifier"
	"github.com/sells-group/printlog-cli/internal/store"
)

// -- sweeps --

var sweepsCmd = &cobra.Command{
	Use:   "sweeps",
	Short: "List recorded notification sweeps",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		sweeps, err := st.ListSweeps(ctx, store.SweepFilter{
			Status: model.SweepStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "sweeps")
		}

		if len(sweeps) == 0 {
			fmt.Fprintln(os.Stderr, "No sweeps found.")
			return nil
		}

		formatSweepsList(cmd.OutOrStdout(), sweeps)
		return nil
	},
}

// -- failed --

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List notifications that could not be delivered",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		errType, _ := cmd.Flags().GetString("error-type")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		failed, err := st.ListFailed(ctx, store.FailedFilter{
			ErrorType:        errType,
			IncludeDelivered: all,
			Limit:            limit,
		})
		if err != nil {
			return eris.Wrap(err, "failed")
		}

		if len(failed) == 0 {
			fmt.Fprintln(os.Stderr, "No failed notifications.")
			return nil
		}

		formatFailedList(cmd.OutOrStdout(), failed)
		return nil
	},
}

// -- retry-failed --

var retryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Redeliver failed notifications that have retries left",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		if err := cfg.Validate("retry"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sender, err := initSender(false)
		if err != nil {
			return err
		}

		res, err := notifier.Redeliver(ctx, st, sender, limit)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Attempted %d, delivered %d, failed %d, exhausted %d.\n",
			res.Attempted, res.Delivered, res.Failed, res.Exhausted)
		return err
	},
}

func init() {
	sweepsCmd.Flags().String("status", "", "filter by sweep status (running, complete, skipped, failed)")
	sweepsCmd.Flags().Int("limit", 50, "max number of sweeps to display")

	failedCmd.Flags().String("error-type", "", "filter by error type (transient, permanent)")
	failedCmd.Flags().Bool("all", false, "include notifications already redelivered")
	failedCmd.Flags().Int("limit", 50, "max number of entries to display")

	retryFailedCmd.Flags().Int("limit", 100, "max number of entries to attempt")

	rootCmd.AddCommand(sweepsCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(retryFailedCmd)
}

// formatSweepsList writes a tabular list of sweeps to w.
func formatSweepsList(out io.Writer, sweeps []model.Sweep) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSCANNED\tPROCESSED\tNOTIFIED\tFAILURES\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t---------\t--------\t--------\t-------\t--------")

	for _, s := range sweeps {
		var scanned, processed, notified, failures int
		dur := s.UpdatedAt.Sub(s.CreatedAt)
		if s.Result != nil {
			scanned = s.Result.RowsScanned
			processed = s.Result.Processed
			notified = s.Result.Notified
			failures = s.Result.SendFailures
			dur = s.Result.Duration
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(s.ID),
			s.Status,
			scanned,
			processed,
			notified,
			failures,
			s.CreatedAt.Format("2006-01-02 15:04"),
			dur.Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}

// formatFailedList writes a tabular list of failed notifications to w.
func formatFailedList(out io.Writer, failed []model.FailedNotification) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tROW\tSUBJECT\tTYPE\tRETRIES\tDELIVERED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t-------\t----\t-------\t---------\t-----")

	for _, f := range failed {
		msg := f.Error
		if len(msg) > 40 {
			msg = msg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d/%d\t%t\t%s\n",
			truncateID(f.ID),
			f.Row,
			f.Envelope.Subject,
			f.ErrorType,
			f.RetryCount,
			f.MaxRetries,
			f.Delivered,
			msg,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
