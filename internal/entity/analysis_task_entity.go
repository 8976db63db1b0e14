package entity

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// AnalysisTask records an analysis submitted to the backend. SessionID is the
// backend analysis job id.
type AnalysisTask struct {
	SessionID  string
	RepoURL    string
	UserOrigin string
	Status     TaskStatus
	// provider and model used for embedding, never credentials
	Embedding map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}
