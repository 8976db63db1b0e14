package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStampsIdentity(t *testing.T) {
	a := AnalysisStarted("user-1", "https://github.com/acme/widgets", "J1")
	b := AnalysisStarted("user-1", "https://github.com/acme/widgets", "J1")

	assert.NotEmpty(t, a.EventID())
	assert.NotEqual(t, a.EventID(), b.EventID())
	assert.Equal(t, TypeAnalysisStarted, a.EventType())
	assert.False(t, a.Timestamp().IsZero())
	assert.Equal(t, "J1", a.Payload()["job_id"])
}

func TestNewNeverReturnsNilPayload(t *testing.T) {
	assert.NotNil(t, New("x", nil).Payload())
}
