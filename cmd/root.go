package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vidyadost/vidyadost/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "vidyadost",
	Short: "Voice-enabled AI tutor for school students",
	Long: "VidyaDost is a terminal tutor: pick a topic, ask questions, hear the answers,\n" +
		"and take a short quiz when the lesson sinks in.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which commands use for
// cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./vidyadost.yaml or ~/.config/vidyadost/vidyadost.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides VIDYADOST_DB env var)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scoresCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then VIDYADOST_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

// openStore opens the database named by the flags.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, err
	}
	return store.Open(dbPath)
}
