package mapper

import (
	"testing"
	"time"

	"repoinsight/internal/entity"

	"github.com/stretchr/testify/assert"
)

func TestTaskMappingKeepsEmbeddingMetadata(t *testing.T) {
	m := NewSessionMapper()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &entity.AnalysisTask{
		SessionID:  "J1",
		RepoURL:    "https://github.com/acme/widgets",
		UserOrigin: "user-1",
		Status:     entity.TaskPending,
		Embedding:  map[string]string{"provider": "qwen", "model_name": "text-embedding-v4"},
		CreatedAt:  now,
	}

	mdl := m.TaskToModel(in)
	assert.JSONEq(t, `{"provider":"qwen","model_name":"text-embedding-v4"}`, string(mdl.Embedding))
	assert.Equal(t, "pending", mdl.Status)

	out := m.TaskToEntity(mdl)
	assert.Equal(t, in, out)
}

func TestTaskMappingWithoutEmbedding(t *testing.T) {
	m := NewSessionMapper()
	mdl := m.TaskToModel(&entity.AnalysisTask{SessionID: "J1"})
	assert.Empty(t, mdl.Embedding)
	assert.Nil(t, m.TaskToEntity(mdl).Embedding)
}
