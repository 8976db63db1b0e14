package store

import "time"

// SessionState is where a conversation stands with respect to its repository.
type SessionState string

const (
	StateNoRepo    SessionState = "NO_REPO"
	StateAnalyzing SessionState = "ANALYZING"
	StateReady     SessionState = "READY"
)

// Session is the in-memory state of one user's conversation. It is owned by
// exactly one session actor.
type Session struct {
	Key   string       `json:"key"` // user / origin identifier
	State SessionState `json:"state"`

	// Set together, only after an analysis succeeded
	RepoURL       string `json:"repo_url,omitempty"`
	AnalysisJobID string `json:"analysis_job_id,omitempty"`

	// Repository being analyzed while State is ANALYZING
	PendingRepoURL string `json:"pending_repo_url,omitempty"`
	PendingJobID   string `json:"pending_job_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasRepo reports whether a repository is ready for questions (it may be
// ANALYZING a replacement at the same time).
func (s *Session) HasRepo() bool {
	return s.RepoURL != "" && s.AnalysisJobID != ""
}

// Consistent reports whether the repo/job pair is either fully set or fully empty.
func (s *Session) Consistent() bool {
	return (s.RepoURL == "") == (s.AnalysisJobID == "")
}
