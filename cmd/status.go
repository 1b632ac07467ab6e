package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func statusCmd() *cobra.Command {
	var history bool
	command := &cobra.Command{
		Use:   "status",
		Short: "Aktuelle Metadaten-Version ausgeben",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if history {
				list, err := rt.metadata.History(ctx)
				if err != nil {
					return err
				}
				return enc.Encode(list)
			}
			meta, err := rt.metadata.FetchLatest(ctx)
			if err != nil {
				return err
			}
			if meta == nil {
				return errors.New("no ingestion has run yet")
			}
			return enc.Encode(meta)
		},
	}
	command.Flags().BoolVar(&history, "history", false, "alle Versionen ausgeben")
	return command
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Metadaten-Historie nach S3 sichern und alte Backups rotieren",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.archive == nil {
				return errors.New("backup requires ARCHIVE_S3_URL and ARCHIVE_S3_BUCKET")
			}

			rt.logger.Info("Starte Backup-Prozess...")
			list, err := rt.metadata.History(ctx)
			if err != nil {
				return fmt.Errorf("read metadata history: %w", err)
			}
			data, err := json.Marshal(list)
			if err != nil {
				return err
			}
			link, err := rt.archive.Backup(ctx, "metadata", data)
			if err != nil {
				return fmt.Errorf("upload backup: %w", err)
			}
			rt.logger.Info("Backup-Prozess erfolgreich abgeschlossen.", zap.String("link", link), zap.Int("versions", len(list)))
			return nil
		},
	}
}
