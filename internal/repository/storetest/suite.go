// Package storetest holds the behaviour every SessionStore must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"repoinsight/internal/entity"
	"repoinsight/internal/repository/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the SessionStore contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) contract.SessionStore) {
	t.Run("task lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.SaveTask(ctx, &entity.AnalysisTask{
			SessionID: "J1", RepoURL: "https://github.com/acme/widgets", UserOrigin: "alice",
			Status: entity.TaskPending, CreatedAt: base,
			Embedding: map[string]string{"provider": "qwen"},
		}))
		require.NoError(t, s.SaveTask(ctx, &entity.AnalysisTask{
			SessionID: "J2", RepoURL: "https://github.com/acme/gadgets", UserOrigin: "alice",
			Status: entity.TaskPending, CreatedAt: base.Add(time.Minute),
		}))
		require.NoError(t, s.SaveTask(ctx, &entity.AnalysisTask{
			SessionID: "J3", RepoURL: "https://github.com/other/repo", UserOrigin: "bob",
			Status: entity.TaskPending, CreatedAt: base.Add(2 * time.Minute),
		}))

		pending, err := s.ListTasksByStatus(ctx, entity.TaskPending)
		require.NoError(t, err)
		assert.Len(t, pending, 3)

		require.NoError(t, s.UpdateTaskStatus(ctx, "J1", entity.TaskCompleted))
		pending, err = s.ListTasksByStatus(ctx, entity.TaskPending)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		mine, err := s.ListUserTasks(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, "J2", mine[0].SessionID, "newest first")
		assert.Equal(t, "J1", mine[1].SessionID)
		assert.Equal(t, entity.TaskCompleted, mine[1].Status)
		assert.Equal(t, "qwen", mine[1].Embedding["provider"])

		require.NoError(t, s.DeleteTask(ctx, "J2"))
		mine, err = s.ListUserTasks(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		assert.ErrorIs(t, s.UpdateTaskStatus(ctx, "missing", entity.TaskCompleted), contract.ErrTaskNotFound)
		assert.NoError(t, s.DeleteTask(ctx, "missing"))
	})

	t.Run("tasks within one second keep their order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
		for i, offset := range []time.Duration{0, 300 * time.Millisecond, 750 * time.Millisecond} {
			require.NoError(t, s.SaveTask(ctx, &entity.AnalysisTask{
				SessionID: fmt.Sprintf("S%d", i+1), RepoURL: "https://github.com/acme/widgets", UserOrigin: "carol",
				Status: entity.TaskPending, CreatedAt: base.Add(offset),
			}))
		}

		mine, err := s.ListUserTasks(ctx, "carol")
		require.NoError(t, err)
		ids := make([]string, 0, len(mine))
		for _, task := range mine {
			ids = append(ids, task.SessionID)
		}
		assert.Equal(t, []string{"S3", "S2", "S1"}, ids)
		require.Len(t, mine, 3)
		assert.True(t, mine[2].CreatedAt.Equal(base))
	})

	t.Run("user state", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st, err := s.GetUserState(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, st)

		require.NoError(t, s.SaveUserState(ctx, &entity.UserState{UserID: "alice", CurrentRepoURL: "https://github.com/acme/widgets", AnalysisSessionID: "J1"}))
		require.NoError(t, s.SaveUserState(ctx, &entity.UserState{UserID: "alice", CurrentRepoURL: "https://github.com/acme/gadgets", AnalysisSessionID: "J2"}))

		st, err = s.GetUserState(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.Equal(t, "https://github.com/acme/gadgets", st.CurrentRepoURL)
		assert.Equal(t, "J2", st.AnalysisSessionID)
		assert.False(t, st.UpdatedAt.IsZero())

		require.NoError(t, s.DeleteUserState(ctx, "alice"))
		st, err = s.GetUserState(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, st)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, user := range []string{"u1", "u2", "u3", "u4"} {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					assert.NoError(t, s.SaveUserState(ctx, &entity.UserState{UserID: user, CurrentRepoURL: "https://github.com/acme/widgets", AnalysisSessionID: user}))
				}
			}(user)
		}
		wg.Wait()

		for _, user := range []string{"u1", "u2", "u3", "u4"} {
			st, err := s.GetUserState(ctx, user)
			require.NoError(t, err)
			require.NotNil(t, st)
			assert.Equal(t, user, st.AnalysisSessionID)
		}
	})
}
