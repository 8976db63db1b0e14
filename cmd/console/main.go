// Command console talks to the analysis backend from a terminal, one
// message per line, using the same session flow as the HTTP service.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"repoinsight/internal/bootstrap"
	"repoinsight/internal/config"
	"repoinsight/internal/dto"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/service"
	"repoinsight/pkg/backend"
	"repoinsight/pkg/llm"
	"repoinsight/pkg/llm/factory"
	"repoinsight/pkg/rag/response"

	"github.com/fatih/color"
)

const consoleUser = "console"

// consoleSender prints replies as they arrive; the session answers
// asynchronously so output can interleave with the prompt.
type consoleSender struct {
	mu sync.Mutex
}

func (s *consoleSender) Send(ctx context.Context, msg dto.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Parts > 1 {
		color.Cyan("\n[%d/%d]", msg.Part, msg.Parts)
	}
	color.Green("\n%s\n", msg.Text)
	fmt.Print("> ")
	return nil
}

func main() {
	cfg := config.Load()
	sysLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer sysLogger.Sync()

	store, err := bootstrap.NewSessionStore(cfg, sysLogger)
	if err != nil {
		color.Red("Failed to open session store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	llmProvider, err := factory.NewLLMProvider(cfg.Generator.Provider, cfg.Generator.Model, cfg.Generator.BaseURL, cfg.Generator.APIKey)
	if err != nil {
		color.Red("Failed to init generator: %v", err)
		os.Exit(1)
	}
	generator := response.NewGenerator(llmProvider, sysLogger,
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
	)

	api := backend.NewClient(cfg.Backend.APIBaseURL, cfg.Backend.RequestTimeout)
	chat := service.NewRepoQAService(cfg, api, store, &consoleSender{}, nil, generator, sysLogger)
	defer chat.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	color.Cyan("🚀 RepoInsight console (backend %s)", cfg.Backend.APIBaseURL)
	color.Yellow("Send a GitHub repository URL, then ask questions. Ctrl+C quits.\n")
	fmt.Print("> ")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := chat.HandleMessage(ctx, consoleUser, line); err != nil {
				color.Red("Failed: %v", err)
			}
		}
	}
}
