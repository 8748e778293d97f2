package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/trustmed/pkg/answer"
	"github.com/perbu/trustmed/pkg/retriever"
)

var (
	askDisease string
	askK       int
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the retrieved passages",
	Long: `Retrieves the closest chunks for the question and asks the generation model
for an answer grounded in them. Requires OPENAI_API_KEY.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askDisease, "disease", "d", answer.DefaultDisease, "condition the question is about")
	askCmd.Flags().IntVarP(&askK, "top", "k", 0, "number of passages to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	svc, err := newAnswerService()
	if err != nil {
		return err
	}

	k := askK
	if !cmd.Flags().Changed("top") {
		k = cfg.Retrieval.TopK
	}
	ans, err := svc.Answer(cmd.Context(), question, askDisease, k)
	if err != nil {
		return err
	}

	if askJSON {
		data, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(ans.Answer)
	cmd.Println()
	cmd.Println("Sources:")
	for _, s := range ans.Sources {
		cmd.Printf("  - %s | %s", s.Source, s.Section)
		if s.Subsection != "" {
			cmd.Printf(" | %s", s.Subsection)
		}
		cmd.Println()
	}
	cmd.Println()
	cmd.Println(ans.Disclaimer)
	return nil
}

func newAnswerService() (*answer.Service, error) {
	emb, err := cfg.NewEmbedder()
	if err != nil {
		return nil, err
	}
	r, err := retriever.Open(cfg.Index.Dir, emb)
	if err != nil {
		return nil, err
	}
	completer, err := cfg.NewCompleter()
	if err != nil {
		return nil, err
	}
	return answer.NewService(answer.Config{
		Retriever:  r,
		Completer:  completer,
		Completion: cfg.CompletionOptions(),
	}), nil
}
