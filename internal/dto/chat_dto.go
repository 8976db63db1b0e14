package dto

import "time"

// InboundMessageRequest is one chat message from the host runtime.
type InboundMessageRequest struct {
	UserID string `json:"user_id" validate:"required,max=256"`
	Text   string `json:"text" validate:"max=8000"`
}

type InboundMessageResponse struct {
	Accepted bool   `json:"accepted"`
	UserID   string `json:"user_id"`
}

// OutboundMessage is one transport-sized part of a reply. Parts of the same
// reply share an ID.
type OutboundMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Part      int       `json:"part"`
	Parts     int       `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

type AnalysisTaskDTO struct {
	SessionID string    `json:"session_id"`
	RepoURL   string    `json:"repo_url"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type RepoStatusResponse struct {
	UserID            string            `json:"user_id"`
	State             string            `json:"state"`
	RepoURL           string            `json:"repo_url,omitempty"`
	AnalysisSessionID string            `json:"analysis_session_id,omitempty"`
	PendingRepoURL    string            `json:"pending_repo_url,omitempty"`
	InFlightQuestions int               `json:"in_flight_questions"`
	Tasks             []AnalysisTaskDTO `json:"tasks"`
}

type RepoConfigResponse struct {
	APIBaseURL        string  `json:"api_base_url"`
	RequestTimeout    string  `json:"request_timeout"`
	PollInterval      string  `json:"poll_interval"`
	AnalysisTimeout   string  `json:"analysis_timeout"`
	QueryTimeout      string  `json:"query_timeout"`
	GenerationMode    string  `json:"generation_mode"`
	EmbeddingProvider string  `json:"embedding_provider"`
	EmbeddingModel    string  `json:"embedding_model"`
	LLMProvider       string  `json:"llm_provider"`
	LLMModel          string  `json:"llm_model"`
	LLMTemperature    float64 `json:"llm_temperature"`
	LLMMaxTokens      int     `json:"llm_max_tokens"`
	GeneratorEnabled  bool    `json:"generator_enabled"`
}
