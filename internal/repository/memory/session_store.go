package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"repoinsight/internal/entity"
	"repoinsight/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

const (
	taskPrefix = "task:"
	userPrefix = "user:"
)

// SessionStore keeps tasks and user state in process memory. Nothing
// survives a restart; it backs development runs and tests.
type SessionStore struct {
	cache *cache.Cache
	// serializes read-modify-write updates; plain gets and sets rely on the cache's own lock
	mu sync.Mutex
}

var _ contract.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates the store. ttl 0 keeps entries until deleted.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &SessionStore{cache: cache.New(ttl, 10*time.Minute)}
}

func (s *SessionStore) SaveTask(ctx context.Context, task *entity.AnalysisTask) error {
	t := *task
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = time.Now()
	s.cache.Set(taskPrefix+t.SessionID, t, cache.DefaultExpiration)
	return nil
}

func (s *SessionStore) UpdateTaskStatus(ctx context.Context, sessionID string, status entity.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, found := s.cache.Get(taskPrefix + sessionID)
	if !found {
		return contract.ErrTaskNotFound
	}
	t := x.(entity.AnalysisTask)
	t.Status = status
	t.UpdatedAt = time.Now()
	s.cache.Set(taskPrefix+sessionID, t, cache.DefaultExpiration)
	return nil
}

func (s *SessionStore) DeleteTask(ctx context.Context, sessionID string) error {
	s.cache.Delete(taskPrefix + sessionID)
	return nil
}

func (s *SessionStore) ListTasksByStatus(ctx context.Context, status entity.TaskStatus) ([]*entity.AnalysisTask, error) {
	return s.tasks(func(t entity.AnalysisTask) bool { return t.Status == status }), nil
}

func (s *SessionStore) ListUserTasks(ctx context.Context, userOrigin string) ([]*entity.AnalysisTask, error) {
	return s.tasks(func(t entity.AnalysisTask) bool { return t.UserOrigin == userOrigin }), nil
}

func (s *SessionStore) tasks(keep func(entity.AnalysisTask) bool) []*entity.AnalysisTask {
	out := []*entity.AnalysisTask{}
	for key, item := range s.cache.Items() {
		if !strings.HasPrefix(key, taskPrefix) {
			continue
		}
		t := item.Object.(entity.AnalysisTask)
		if keep(t) {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *SessionStore) GetUserState(ctx context.Context, userID string) (*entity.UserState, error) {
	if x, found := s.cache.Get(userPrefix + userID); found {
		st := x.(entity.UserState)
		return &st, nil
	}
	return nil, nil
}

func (s *SessionStore) SaveUserState(ctx context.Context, state *entity.UserState) error {
	st := *state
	st.UpdatedAt = time.Now()
	s.cache.Set(userPrefix+st.UserID, st, cache.DefaultExpiration)
	return nil
}

func (s *SessionStore) DeleteUserState(ctx context.Context, userID string) error {
	s.cache.Delete(userPrefix + userID)
	return nil
}

func (s *SessionStore) Close() error {
	s.cache.Flush()
	return nil
}
