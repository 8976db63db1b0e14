package state

import (
	"time"

	"repoinsight/internal/pkg/logger"
	"repoinsight/pkg/store"
)

// Manager handles session state transitions. Every transition keeps the
// repository URL and analysis job id either both set or both empty.
type Manager struct {
	logger logger.ILogger
	now    func() time.Time
}

func NewManager(log logger.ILogger) *Manager {
	return &Manager{logger: log, now: time.Now}
}

// New returns an empty session for key.
func (m *Manager) New(key string) *store.Session {
	return &store.Session{Key: key, State: store.StateNoRepo, UpdatedAt: m.now()}
}

// Restore returns a READY session when a persisted repo/job pair exists.
func (m *Manager) Restore(key, repoURL, jobID string) *store.Session {
	session := m.New(key)
	if repoURL != "" && jobID != "" {
		session.RepoURL = repoURL
		session.AnalysisJobID = jobID
		session.State = store.StateReady
		m.logger.Info("State", "Session restored", map[string]interface{}{"session": key, "repo_url": repoURL})
	}
	return session
}

// TransitionToAnalyzing starts analysis of repoURL. The current repository,
// if any, stays usable until the new one is ready.
func (m *Manager) TransitionToAnalyzing(session *store.Session, repoURL string) {
	session.PendingRepoURL = repoURL
	session.PendingJobID = ""
	session.State = store.StateAnalyzing
	session.UpdatedAt = m.now()
	m.logger.Debug("State", "Transitioned to ANALYZING", map[string]interface{}{"session": session.Key, "repo_url": repoURL})
}

// RecordPendingJob remembers the backend id of the running analysis.
func (m *Manager) RecordPendingJob(session *store.Session, jobID string) {
	session.PendingJobID = jobID
}

// TransitionToReady installs a successfully analyzed repository.
func (m *Manager) TransitionToReady(session *store.Session, repoURL, jobID string) {
	session.RepoURL = repoURL
	session.AnalysisJobID = jobID
	session.PendingRepoURL = ""
	session.PendingJobID = ""
	session.State = store.StateReady
	session.UpdatedAt = m.now()
	m.logger.Info("State", "Transitioned to READY", map[string]interface{}{"session": session.Key, "repo_url": repoURL, "job_id": jobID})
}

// AbandonAnalysis returns to the pre-analysis state: READY on the previous
// repository if there was one, NO_REPO otherwise.
func (m *Manager) AbandonAnalysis(session *store.Session) {
	session.PendingRepoURL = ""
	session.PendingJobID = ""
	if session.HasRepo() {
		session.State = store.StateReady
	} else {
		session.State = store.StateNoRepo
	}
	session.UpdatedAt = m.now()
	m.logger.Debug("State", "Analysis abandoned", map[string]interface{}{"session": session.Key, "state": session.State})
}

// TransitionToNoRepo clears the repository and any pending analysis.
func (m *Manager) TransitionToNoRepo(session *store.Session) {
	session.RepoURL = ""
	session.AnalysisJobID = ""
	session.PendingRepoURL = ""
	session.PendingJobID = ""
	session.State = store.StateNoRepo
	session.UpdatedAt = m.now()
	m.logger.Debug("State", "Transitioned to NO_REPO", map[string]interface{}{"session": session.Key})
}
