package memory

import (
	"testing"

	"repoinsight/internal/repository/contract"
	"repoinsight/internal/repository/storetest"
)

func TestSessionStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) contract.SessionStore {
		s := NewSessionStore(0)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
