package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fehlende Baseline- und Update-Dateien vom FTP-Server laden",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := rt.manager(ctx)
			if err != nil {
				return err
			}
			return m.Sync(ctx)
		},
	}
}

func extractCmd() *cobra.Command {
	var dryRun bool
	command := &cobra.Command{
		Use:   "extract",
		Short: "Lokale Dateien verarbeiten und den Graphen aktualisieren",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, dryRun)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := rt.manager(ctx)
			if err != nil {
				return err
			}
			if err := m.Extract(ctx); err != nil {
				return err
			}
			if rt.memory != nil {
				stats := rt.memory.Stats()
				rt.logger.Info("Trockenlauf abgeschlossen",
					zap.Int("articles", stats.Articles), zap.Int("authors", stats.Authors))
				return json.NewEncoder(os.Stdout).Encode(stats)
			}
			return nil
		},
	}
	command.Flags().BoolVar(&dryRun, "dry-run", false, "Graph im Speicher aufbauen statt in Neo4j")
	return command
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "sync und extract nacheinander ausführen",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := rt.manager(ctx)
			if err != nil {
				return err
			}
			return m.Run(ctx)
		},
	}
}
