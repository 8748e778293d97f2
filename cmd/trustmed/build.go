package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perbu/trustmed/pkg/index"
	"github.com/perbu/trustmed/pkg/loader"
	"github.com/perbu/trustmed/pkg/trustmed"
)

var (
	buildProcessedDir string
	buildChunksPath   string
	buildChunksOut    string
	buildOutDir       string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the corpus and write the index",
	Long: `Loads processed corpus files (or a prepared chunks JSON file), embeds every
chunk and writes index.gob, vectors.npy and metadata.json to the index
directory. Existing artifacts are only replaced when the build succeeds.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildProcessedDir, "processed", "", "directory of processed corpus files (default from config)")
	buildCmd.Flags().StringVar(&buildChunksPath, "chunks", "", "read chunks from a JSON file instead of the processed directory")
	buildCmd.Flags().StringVar(&buildChunksOut, "chunks-out", "", "also write the loaded chunks to this JSON file")
	buildCmd.Flags().StringVarP(&buildOutDir, "out", "o", "", "index directory (default from config)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunks, err := loadChunks()
	if err != nil {
		return err
	}
	if buildChunksOut != "" {
		if err := loader.WriteChunks(buildChunksOut, chunks); err != nil {
			return fmt.Errorf("writing chunks: %w", err)
		}
	}

	emb, err := cfg.NewEmbedder()
	if err != nil {
		return err
	}
	slog.Info("building index", "chunks", len(chunks), "model", emb.ModelInfo())

	artifacts, err := index.Build(ctx, chunks, emb, index.WithConcurrency(cfg.Embedding.Concurrency))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("build interrupted, no artifacts written: %w", err)
		}
		return err
	}

	dir := buildOutDir
	if dir == "" {
		dir = cfg.Index.Dir
	}
	if err := artifacts.Save(dir); err != nil {
		return err
	}

	cmd.Printf("Indexed %d chunks (dim=%d, model=%s) into %s\n",
		artifacts.Index.Len(), artifacts.Index.Dimension(), artifacts.ModelInfo, dir)
	return nil
}

func loadChunks() ([]trustmed.Chunk, error) {
	if buildChunksPath != "" {
		chunks, err := loader.ReadChunks(buildChunksPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", trustmed.ErrIngestion, err)
		}
		return chunks, nil
	}

	dir := buildProcessedDir
	if dir == "" {
		dir = cfg.Index.ProcessedDir
	}
	chunks, err := loader.LoadProcessed(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("%w: loading %s: %w", trustmed.ErrIngestion, dir, err)
	}
	return chunks, nil
}
