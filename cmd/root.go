package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pubmed-graph",
	Short: "PubMed-Dumps laden und als Graph in Neo4j aufbauen",
	Example: `pubmed-graph sync
pubmed-graph extract --dry-run
pubmed-graph run
pubmed-graph serve
pubmed-graph query --journal "lancet" --authors
pubmed-graph query --presets presets.yaml --preset cardiology
pubmed-graph status --history
pubmed-graph backup`,
	SilenceUsage: true,
}

// Execute wird von main.main() aufgerufen.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd(), extractCmd(), runCmd(), serveCmd(), queryCmd(), statusCmd(), backupCmd())
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
