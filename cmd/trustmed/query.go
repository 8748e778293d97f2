package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/trustmed/pkg/index"
	"github.com/perbu/trustmed/pkg/retriever"
	"github.com/perbu/trustmed/pkg/trustmed"
)

var (
	queryK       int
	queryJSON    bool
	queryFull    bool
	queryContext int
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve the closest chunks for a question",
	Long: `Embeds the question with the same embedder used at build time and prints
the nearest chunks in ascending distance order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "top", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	queryCmd.Flags().BoolVar(&queryFull, "full", false, "show chunk text")
	queryCmd.Flags().IntVar(&queryContext, "context", 0, "number of neighbouring chunks from the same source to show")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	emb, err := cfg.NewEmbedder()
	if err != nil {
		return err
	}
	artifacts, err := index.Load(cfg.Index.Dir)
	if err != nil {
		return err
	}
	r, err := retriever.New(artifacts, emb)
	if err != nil {
		return err
	}

	k := queryK
	if !cmd.Flags().Changed("top") {
		k = cfg.Retrieval.TopK
	}
	results, err := r.Retrieve(cmd.Context(), question, k)
	if err != nil {
		return err
	}

	if queryJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printResults(cmd, artifacts.Chunks, results)
	return nil
}

func printResults(cmd *cobra.Command, corpus []trustmed.Chunk, results []trustmed.RankedChunk) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Printf("Found %d results:\n\n", len(results))
	for i, res := range results {
		cmd.Printf("[%d] %.4f | %s | %s", res.Rank, res.Distance, res.Source, res.Section)
		if res.Subsection != "" {
			cmd.Printf(" | %s", res.Subsection)
		}
		cmd.Println()

		if !queryFull && queryContext == 0 {
			continue
		}
		cmd.Println()

		if queryContext > 0 {
			neighbours := surroundingChunks(corpus, res.Row, queryContext)
			for j, n := range neighbours {
				if n.row == res.Row {
					cmd.Println(">>> MATCHED CHUNK <<<")
				}
				cmd.Printf("[%s]\n%s\n", n.chunk.ChunkID, n.chunk.Text)
				if j < len(neighbours)-1 {
					cmd.Println()
				}
			}
		} else {
			cmd.Println(res.Text)
		}

		if i < len(results)-1 {
			cmd.Println("\n" + strings.Repeat("-", 80) + "\n")
		}
	}
}

type corpusChunk struct {
	row   int
	chunk trustmed.Chunk
}

// surroundingChunks returns up to n chunks either side of corpus[row],
// restricted to the same source.
func surroundingChunks(corpus []trustmed.Chunk, row, n int) []corpusChunk {
	if row < 0 || row >= len(corpus) {
		return nil
	}

	start := max(row-n, 0)
	end := min(row+n+1, len(corpus))

	var out []corpusChunk
	for i := start; i < end; i++ {
		if corpus[i].Source == corpus[row].Source {
			out = append(out, corpusChunk{row: i, chunk: corpus[i]})
		}
	}
	return out
}
