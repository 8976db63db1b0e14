package events

const (
	TypeAnalysisStarted   = "repo.analysis.started"
	TypeAnalysisCompleted = "repo.analysis.completed"
	TypeAnalysisFailed    = "repo.analysis.failed"
	TypeQueryAnswered     = "repo.query.answered"
	TypeQueryFailed       = "repo.query.failed"
	TypeSessionCleared    = "repo.session.cleared"

	// chat traffic exchanged with the host messaging runtime
	TypeChatInbound  = "chat.inbound"
	TypeChatOutbound = "chat.outbound"
)

func AnalysisStarted(sessionKey, repoURL, jobID string) BaseEvent {
	return New(TypeAnalysisStarted, map[string]interface{}{
		"session_key": sessionKey,
		"repo_url":    repoURL,
		"job_id":      jobID,
	})
}

func AnalysisCompleted(sessionKey, repoURL, jobID, repositoryName string, totalFiles, totalChunks int) BaseEvent {
	return New(TypeAnalysisCompleted, map[string]interface{}{
		"session_key":     sessionKey,
		"repo_url":        repoURL,
		"job_id":          jobID,
		"repository_name": repositoryName,
		"total_files":     totalFiles,
		"total_chunks":    totalChunks,
	})
}

// AnalysisFailed carries the poller outcome ("failed", "timed_out", ...).
func AnalysisFailed(sessionKey, repoURL, outcome, reason string) BaseEvent {
	return New(TypeAnalysisFailed, map[string]interface{}{
		"session_key": sessionKey,
		"repo_url":    repoURL,
		"outcome":     outcome,
		"reason":      reason,
	})
}

func QueryAnswered(sessionKey, jobID, queryID, generationMode string) BaseEvent {
	return New(TypeQueryAnswered, map[string]interface{}{
		"session_key":     sessionKey,
		"job_id":          jobID,
		"query_id":        queryID,
		"generation_mode": generationMode,
	})
}

func QueryFailed(sessionKey, jobID, outcome, reason string) BaseEvent {
	return New(TypeQueryFailed, map[string]interface{}{
		"session_key": sessionKey,
		"job_id":      jobID,
		"outcome":     outcome,
		"reason":      reason,
	})
}

func SessionCleared(sessionKey, reason string) BaseEvent {
	return New(TypeSessionCleared, map[string]interface{}{
		"session_key": sessionKey,
		"reason":      reason,
	})
}

func ChatOutbound(sessionKey, messageID, text string, part, parts int) BaseEvent {
	return New(TypeChatOutbound, map[string]interface{}{
		"session_key": sessionKey,
		"message_id":  messageID,
		"text":        text,
		"part":        part,
		"parts":       parts,
	})
}
