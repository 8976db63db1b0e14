package factory

import (
	"fmt"
	"strings"

	"repoinsight/pkg/llm"
	"repoinsight/pkg/llm/huggingface"
	"repoinsight/pkg/llm/ollama"
)

// NewLLMProvider returns the configured text generator. An empty provider
// means none is configured, callers then fall back to a context summary.
func NewLLMProvider(providerType, modelName, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch strings.ToLower(providerType) {
	case "":
		return nil, nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "huggingface", "openai":
		// both speak the OpenAI chat completions dialect
		return huggingface.NewHuggingFaceProvider(apiKey, baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
