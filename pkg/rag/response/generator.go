package response

import (
	"context"
	"fmt"
	"strings"

	"repoinsight/internal/pkg/logger"
	"repoinsight/pkg/backend"
	"repoinsight/pkg/llm"
	"repoinsight/pkg/rag/prompt"
)

const (
	summaryItems       = 3
	summaryItemLength  = 200
	msgNoContext       = "Sorry, no relevant code was found to answer your question."
	msgGenerationEmpty = "The language model returned an empty answer."
)

// Generator turns backend query results into the text sent to the user.
type Generator struct {
	llmProvider llm.LLMProvider // nil when no generator is configured
	options     []llm.Option
	logger      logger.ILogger
}

func NewGenerator(llmProvider llm.LLMProvider, log logger.ILogger, opts ...llm.Option) *Generator {
	return &Generator{
		llmProvider: llmProvider,
		options:     opts,
		logger:      log,
	}
}

// Answer returns the final text for a successful query. In service mode the
// backend already produced it; in plugin mode it is synthesized here from
// the retrieved context.
func (g *Generator) Answer(ctx context.Context, question string, result *backend.QueryResult) string {
	if result.GenerationMode != backend.GenerationPlugin {
		return result.Answer
	}
	return g.FromContext(ctx, question, result.RetrievedContext)
}

// FromContext synthesizes an answer from retrieved code context. Without a
// generator, or when generation fails, it returns a short summary of the
// first snippets instead.
func (g *Generator) FromContext(ctx context.Context, question string, items []backend.ContextItem) string {
	if len(items) == 0 {
		return msgNoContext
	}
	if g.llmProvider == nil {
		return Summarize(items)
	}

	history := []llm.Message{
		{Role: llm.RoleSystem, Content: prompt.SystemPrompt},
		{Role: llm.RoleUser, Content: prompt.NewCodeContextBuilder(question, items).Build()},
	}
	answer, err := g.llmProvider.Chat(ctx, history, g.options...)
	if err != nil {
		g.logger.Error("Generator", "Answer generation failed", map[string]interface{}{
			"error":         err,
			"context_items": len(items),
		})
		return Summarize(items)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		g.logger.Warn("Generator", msgGenerationEmpty, nil)
		return Summarize(items)
	}
	return answer
}

// Summarize lists the first few snippets, each cut to a short preview.
func Summarize(items []backend.ContextItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant code snippets:", len(items))

	for i, item := range items {
		if i == summaryItems {
			break
		}
		path := item.FilePath
		if path == "" {
			path = "Unknown"
		}
		fmt.Fprintf(&b, "\n\n📁 %s\n%s...", path, truncate(item.Content, summaryItemLength))
	}
	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
