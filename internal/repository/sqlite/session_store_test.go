package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"repoinsight/internal/entity"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/repository/contract"
	"repoinsight/internal/repository/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) contract.SessionStore {
		s, err := Open(filepath.Join(t.TempDir(), "sessions.db"), logger.NewNopLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSessionStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "sessions.db")
	ctx := context.Background()

	s, err := Open(path, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.SaveTask(ctx, &entity.AnalysisTask{SessionID: "J1", RepoURL: "https://github.com/acme/widgets", UserOrigin: "alice", Status: entity.TaskPending}))
	require.NoError(t, s.SaveUserState(ctx, &entity.UserState{UserID: "alice", CurrentRepoURL: "https://github.com/acme/widgets", AnalysisSessionID: "J1"}))
	require.NoError(t, s.Close())

	s, err = Open(path, logger.NewNopLogger())
	require.NoError(t, err)
	defer s.Close()

	pending, err := s.ListTasksByStatus(ctx, entity.TaskPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "J1", pending[0].SessionID)

	st, err := s.GetUserState(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "J1", st.AnalysisSessionID)
}
