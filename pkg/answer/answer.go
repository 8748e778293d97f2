// Package answer turns retrieved chunks into a grounded answer: it formats
// the chunks as citation-tagged context, builds the prompt and calls a
// text-completion model.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/perbu/trustmed/pkg/trustmed"
)

// ErrGeneration marks a failure of the completion model.
var ErrGeneration = errors.New("generation error")

// Defaults for answer generation.
const (
	DefaultDisease     = "Type 2 Diabetes"
	DefaultK           = 5
	DefaultTemperature = 0.6
	DefaultTopP        = 0.95
	DefaultMaxTokens   = 1500
)

// Disclaimer is attached to every answer.
const Disclaimer = "The information provided is for general educational purposes only. " +
	"It is NOT a medical diagnosis, and it is NOT a substitute for professional medical advice. " +
	"For concerns about your specific health situation, please consult a licensed healthcare professional."

// CompletionOptions are the sampling settings sent with a prompt.
type CompletionOptions struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// DefaultCompletionOptions returns the settings answers are generated with.
func DefaultCompletionOptions() CompletionOptions {
	return CompletionOptions{
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Completer sends a prompt to a text-completion model.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// Retriever finds the chunks an answer is grounded on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]trustmed.RankedChunk, error)
}

// Source identifies a chunk an answer drew on.
type Source struct {
	Source     string `json:"source"`
	Section    string `json:"section"`
	Subsection string `json:"subsection"`
}

// Answer is a generated answer with the sources it was grounded on.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Disclaimer string   `json:"disclaimer"`
}

// Service answers questions from retrieved context.
type Service struct {
	retriever Retriever
	completer Completer
	opts      CompletionOptions
	logger    *slog.Logger
}

// Config configures a Service.
type Config struct {
	Retriever  Retriever
	Completer  Completer
	Completion CompletionOptions
	Logger     *slog.Logger
}

// NewService creates a Service. Zero completion settings fall back to the
// defaults.
func NewService(cfg Config) *Service {
	opts := cfg.Completion
	if opts == (CompletionOptions{}) {
		opts = DefaultCompletionOptions()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: cfg.Retriever,
		completer: cfg.Completer,
		opts:      opts,
		logger:    logger,
	}
}

// Answer retrieves the k most relevant chunks for question and asks the
// model for a grounded answer. Retrieval errors are returned unchanged;
// model failures wrap ErrGeneration.
func (s *Service) Answer(ctx context.Context, question, disease string, k int) (*Answer, error) {
	if disease == "" {
		disease = DefaultDisease
	}
	if k == 0 {
		k = DefaultK
	}

	chunks, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(question, disease, FormatContext(chunks))
	s.logger.Debug("generating answer", "chunks", len(chunks), "prompt_bytes", len(prompt))

	text, err := s.completer.Complete(ctx, prompt, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{
			Source:     c.Source,
			Section:    c.Section,
			Subsection: c.Subsection,
		}
	}

	return &Answer{
		Answer:     strings.TrimSpace(text),
		Sources:    sources,
		Disclaimer: Disclaimer,
	}, nil
}

// DisplayName maps a source id to the name cited to readers.
func DisplayName(source string) string {
	switch {
	case strings.HasPrefix(source, "mayo"):
		return "Mayo Clinic"
	case strings.HasPrefix(source, "nih"):
		return "NIH / NIDDK"
	case strings.HasPrefix(source, "medlineplus"):
		return "MedlinePlus"
	default:
		return source
	}
}

// FormatContext renders chunks as a citation header line, the chunk text
// and a blank line each.
func FormatContext(chunks []trustmed.RankedChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[Source: %s | %s | %s]\n", DisplayName(c.Source), c.Section, c.Subsection)
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// BuildPrompt assembles the grounded-answer prompt.
func BuildPrompt(question, disease, contextText string) string {
	return fmt.Sprintf(`You are TrustMedAI, a safe and helpful medical education assistant for questions about %s.

USER QUESTION:
%s

CONTEXT (USE ONLY THIS INFORMATION):
%s

GUIDELINES:
- Base your answer ONLY on the provided context.
- DO NOT invent facts or add medical advice.
- DO NOT diagnose or suggest treatments/medications.
- Write clearly and attribute information to its source ("According to Mayo Clinic...").
- Keep tone factual and calm.

RESPONSE STYLE:
- Keep the answer short, clear, and easy to read.
- Use 2-5 bullet points, not long paragraphs.
- Use simple language (8th-10th grade level).
- If the context does not answer the question, say so.

FORMAT EXACTLY LIKE THIS:

<Answer in short bullet points>

Do you have any more questions? Or would you like me to help you schedule an appointment with a doctor or clinic?`,
		disease, question, contextText)
}
