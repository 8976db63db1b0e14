package factory

import (
	"testing"

	"repoinsight/pkg/llm/huggingface"
	"repoinsight/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	p, err := NewLLMProvider("", "", "", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewLLMProvider("Ollama", "llama3", "", "")
	require.NoError(t, err)
	assert.IsType(t, &ollama.OllamaProvider{}, p)

	p, err = NewLLMProvider("openai", "gpt-4o-mini", "https://api.example.com/v1", "key")
	require.NoError(t, err)
	assert.IsType(t, &huggingface.HuggingFaceProvider{}, p)

	_, err = NewLLMProvider("unknown", "", "", "")
	assert.Error(t, err)
}
