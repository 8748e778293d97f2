package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perbu/trustmed/pkg/answer"
	"github.com/perbu/trustmed/pkg/retriever"
	"github.com/perbu/trustmed/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve retrieval and answers over HTTP",
	Long: `Loads the index once and serves POST /chat, POST /retrieve and GET /health.
/chat is only available when OPENAI_API_KEY is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emb, err := cfg.NewEmbedder()
	if err != nil {
		return err
	}
	r, err := retriever.NewLoader(cfg.Index.Dir, emb).Ready()
	if err != nil {
		return err
	}

	var answerer server.Answerer
	if cfg.OpenAIAPIKey != "" {
		completer, err := cfg.NewCompleter()
		if err != nil {
			return err
		}
		answerer = answer.NewService(answer.Config{
			Retriever:  r,
			Completer:  completer,
			Completion: cfg.CompletionOptions(),
		})
	} else {
		slog.Warn("OPENAI_API_KEY not set, /chat is disabled")
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := server.New(server.Config{
		Addr:           addr,
		RequestTimeout: cfg.Server.RequestTimeout(),
		DefaultK:       cfg.Retrieval.TopK,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, r, answerer)
	return srv.Start(ctx)
}
