package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/config"
)

func monitorCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll a node's status endpoint until interrupted",
		Long:  "Polls the cds-node status endpoint on a fixed interval and prints each snapshot until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cobraCmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				view, err := fetchStatus(ctx, serverAddr)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return fmt.Errorf("poll status: %w", err)
				}

				out, err := formatStatus(view, outputFormat)
				if err != nil {
					return fmt.Errorf("format status: %w", err)
				}

				fmt.Println(out)
				fmt.Println("---")

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", config.StatusPollInterval,
		"polling interval")

	return cmd
}
