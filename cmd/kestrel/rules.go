package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the fraud rule catalog",
	}
	cmd.AddCommand(seedRulesCmd())
	cmd.AddCommand(listRulesCmd())
	return cmd
}

func seedRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the catalog with the default rules when it is empty",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("initialize repository: %w", err)
			}
			defer repo.Close()

			set, err := rules.NewCatalog(repo, cfg.Rules, slog.Default()).LoadDefaultRules(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog holds %d rules\n", len(set))
			return nil
		},
	}
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("initialize repository: %w", err)
			}
			defer repo.Close()

			set, err := rules.NewCatalog(repo, cfg.Rules, slog.Default()).ListRules(cmd.Context())
			if err != nil {
				return err
			}
			if len(set) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rules found. Use 'kestrel rules seed' to load the defaults.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "ID\tKIND\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, r := range set {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", r.ID, r.Kind, r.Severity, r.Enabled, r.Description)
			}
			return nil
		},
	}
}
