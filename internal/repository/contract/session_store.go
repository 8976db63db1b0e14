package contract

import (
	"context"
	"errors"

	"repoinsight/internal/entity"
)

var ErrTaskNotFound = errors.New("analysis task not found")

// SessionStore persists analysis tasks and per-user repository state across
// restarts. Implementations are safe for concurrent use; writes for one key
// are last-writer-wins.
type SessionStore interface {
	SaveTask(ctx context.Context, task *entity.AnalysisTask) error
	UpdateTaskStatus(ctx context.Context, sessionID string, status entity.TaskStatus) error
	DeleteTask(ctx context.Context, sessionID string) error
	ListTasksByStatus(ctx context.Context, status entity.TaskStatus) ([]*entity.AnalysisTask, error)
	// ListUserTasks returns the user's tasks, newest first.
	ListUserTasks(ctx context.Context, userOrigin string) ([]*entity.AnalysisTask, error)

	// GetUserState returns nil, nil when the user has no saved state.
	GetUserState(ctx context.Context, userID string) (*entity.UserState, error)
	SaveUserState(ctx context.Context, state *entity.UserState) error
	DeleteUserState(ctx context.Context, userID string) error

	Close() error
}
