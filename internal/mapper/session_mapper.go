package mapper

import (
	"encoding/json"

	"repoinsight/internal/entity"
	"repoinsight/internal/model"

	"gorm.io/datatypes"
)

type SessionMapper struct{}

func NewSessionMapper() *SessionMapper {
	return &SessionMapper{}
}

func (m *SessionMapper) TaskToModel(e *entity.AnalysisTask) *model.AnalysisTask {
	if e == nil {
		return nil
	}
	var embedding datatypes.JSON
	if len(e.Embedding) > 0 {
		// map[string]string always marshals
		raw, _ := json.Marshal(e.Embedding)
		embedding = datatypes.JSON(raw)
	}
	return &model.AnalysisTask{
		SessionID:  e.SessionID,
		RepoURL:    e.RepoURL,
		UserOrigin: e.UserOrigin,
		Status:     string(e.Status),
		Embedding:  embedding,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func (m *SessionMapper) TaskToEntity(mdl *model.AnalysisTask) *entity.AnalysisTask {
	if mdl == nil {
		return nil
	}
	var embedding map[string]string
	if len(mdl.Embedding) > 0 {
		_ = json.Unmarshal(mdl.Embedding, &embedding)
	}
	return &entity.AnalysisTask{
		SessionID:  mdl.SessionID,
		RepoURL:    mdl.RepoURL,
		UserOrigin: mdl.UserOrigin,
		Status:     entity.TaskStatus(mdl.Status),
		Embedding:  embedding,
		CreatedAt:  mdl.CreatedAt,
		UpdatedAt:  mdl.UpdatedAt,
	}
}

func (m *SessionMapper) TasksToEntities(models []*model.AnalysisTask) []*entity.AnalysisTask {
	out := make([]*entity.AnalysisTask, 0, len(models))
	for _, mdl := range models {
		out = append(out, m.TaskToEntity(mdl))
	}
	return out
}

func (m *SessionMapper) UserStateToModel(e *entity.UserState) *model.UserState {
	if e == nil {
		return nil
	}
	return &model.UserState{
		UserID:            e.UserID,
		CurrentRepoURL:    e.CurrentRepoURL,
		AnalysisSessionID: e.AnalysisSessionID,
		UpdatedAt:         e.UpdatedAt,
	}
}

func (m *SessionMapper) UserStateToEntity(mdl *model.UserState) *entity.UserState {
	if mdl == nil {
		return nil
	}
	return &entity.UserState{
		UserID:            mdl.UserID,
		CurrentRepoURL:    mdl.CurrentRepoURL,
		AnalysisSessionID: mdl.AnalysisSessionID,
		UpdatedAt:         mdl.UpdatedAt,
	}
}
