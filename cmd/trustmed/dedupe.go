package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/perbu/trustmed/pkg/forum"
)

var dedupeThreshold float64

var dedupeCmd = &cobra.Command{
	Use:   "dedupe [threads.json] [out.json]",
	Short: "Merge near-duplicate forum threads",
	Long: `Reads scraped forum threads, merges threads whose questions are similar
above the threshold and writes processed forum entries ready for build.`,
	Args: cobra.ExactArgs(2),
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().Float64Var(&dedupeThreshold, "threshold", forum.DefaultThreshold, "question similarity at which threads merge")
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	if dedupeThreshold < 0 || dedupeThreshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %v", dedupeThreshold)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var threads []forum.Thread
	if err := json.Unmarshal(data, &threads); err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}

	entries := forum.Dedupe(threads, dedupeThreshold)

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], out, 0644); err != nil {
		return err
	}

	cmd.Printf("Merged %d threads into %d entries\n", len(threads), len(entries))
	return nil
}
