package backend

// AnalysisJobID is the backend handle of a repository analysis. The backend
// calls it "session_id".
type AnalysisJobID string

// QueryJobID is the backend handle of one question. It lives in a separate
// namespace from AnalysisJobID even though the wire field has the same name.
type QueryJobID string

type AnalysisStatus string

const (
	AnalysisQueued     AnalysisStatus = "queued"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisSuccess    AnalysisStatus = "success"
	AnalysisFailed     AnalysisStatus = "failed"
)

type QueryStatus string

const (
	QueryPending    QueryStatus = "pending"
	QueryQueued     QueryStatus = "queued"
	QueryProcessing QueryStatus = "processing"
	QueryStarted    QueryStatus = "started"
	QuerySuccess    QueryStatus = "success"
	QueryFailed     QueryStatus = "failed"
)

type GenerationMode string

const (
	GenerationService GenerationMode = "service"
	GenerationPlugin  GenerationMode = "plugin"
)

// EmbeddingConfig is forwarded verbatim to the backend.
type EmbeddingConfig struct {
	Provider    string                 `json:"provider"`
	ModelName   string                 `json:"model_name"`
	APIKey      string                 `json:"api_key"`
	APIBase     string                 `json:"api_base"`
	ExtraParams map[string]interface{} `json:"extra_params"`
}

// LLMConfig is forwarded verbatim to the backend.
type LLMConfig struct {
	Provider    string  `json:"provider"`
	ModelName   string  `json:"model_name"`
	APIKey      string  `json:"api_key"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type AnalysisJob struct {
	Status         AnalysisStatus `json:"status"`
	RepositoryName string         `json:"repository_name,omitempty"`
	TotalFiles     int            `json:"total_files,omitempty"`
	ProcessedFiles int            `json:"processed_files,omitempty"`
	TotalChunks    int            `json:"total_chunks,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

type QueryState struct {
	Status  QueryStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

type ContextItem struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type QueryResult struct {
	GenerationMode   GenerationMode `json:"generation_mode"`
	Answer           string         `json:"answer,omitempty"`
	RetrievedContext []ContextItem  `json:"retrieved_context,omitempty"`
	Question         string         `json:"question,omitempty"`
}

// --- wire payloads ---

type analyzeRequest struct {
	RepoURL         string          `json:"repo_url"`
	EmbeddingConfig EmbeddingConfig `json:"embedding_config"`
}

type queryRequest struct {
	SessionID      string         `json:"session_id"`
	Question       string         `json:"question"`
	GenerationMode GenerationMode `json:"generation_mode"`
	LLMConfig      LLMConfig      `json:"llm_config"`
}

type jobResponse struct {
	SessionID string `json:"session_id"`
}
