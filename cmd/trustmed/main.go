// Command trustmed builds the retrieval index for the medical QA corpus and
// serves queries and grounded answers from it.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/perbu/trustmed/pkg/config"
)

var (
	configPath string
	verbose    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "trustmed",
	Short: "Retrieval over a curated medical corpus",
	Long: `trustmed embeds a curated corpus of clinical articles and forum answers,
persists an exact nearest-neighbour index and answers questions grounded in
the retrieved passages.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func setup(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	return nil
}

func main() {
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
