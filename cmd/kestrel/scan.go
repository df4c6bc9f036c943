package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func scanCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one user's recent transactions and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.scans.ScanUser(cmd.Context(), userID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user to scan (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
