package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the node's current election state and neighbor table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := fetchStatus(cmd.Context(), serverAddr)
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			out, err := formatStatus(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format status: %w", err)
			}

			fmt.Println(out)
			return nil
		},
	}
}
