package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/guard"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch printers over MQTT and stop prints that are not logged and authorized",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if err := cfg.Validate("watch"); err != nil {
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
		reg, err := guard.LoadRegistry(cfg.Devices.Path)
		if err != nil {
			return err
		}

		printers, err := guard.DialMQTT(guard.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
			Timeout:  time.Duration(cfg.MQTT.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return err
		}
		defer printers.Close()

		var enforcer guard.Enforcer = printers
		if dryRun {
			enforcer = nil
		}
		w := guard.NewWatcher(g, enforcer)

		if err := printers.Watch(ctx, reg.Serials(), w); err != nil {
			return err
		}
		zap.L().Info("watching printers",
			zap.Strings("serials", reg.Serials()),
			zap.Bool("dry_run", dryRun),
		)

		<-ctx.Done()
		zap.L().Info("watch stopped")
		return nil
	},
}

func init() {
	watchCmd.Flags().Bool("dry-run", false, "log violations without sending stop commands")
	rootCmd.AddCommand(watchCmd)
}
