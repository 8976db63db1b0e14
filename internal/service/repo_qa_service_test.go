package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"repoinsight/internal/config"
	"repoinsight/internal/constant"
	"repoinsight/internal/dto"
	"repoinsight/internal/entity"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/repository/memory"
	"repoinsight/pkg/backend"
	"repoinsight/pkg/rag/intent"
	"repoinsight/pkg/rag/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	repoA = "https://github.com/acme/widgets"
	repoB = "https://github.com/acme/gadgets"
)

// fakeBackend scripts the analysis service. analysis returns the job seen on
// the n-th status check (starting at 1) of a job.
type fakeBackend struct {
	mu sync.Mutex

	analysis  func(id backend.AnalysisJobID, n int) *backend.AnalysisJob
	submitErr error
	checks    map[backend.AnalysisJobID]int

	queryGate   chan struct{}
	queryResult *backend.QueryResult
	// queryStatus, when set, answers the n-th status check of a query
	queryStatus func(n int) (*backend.QueryState, error)
	queryChecks map[backend.QueryJobID]int
	// holdQuerySubmit makes SubmitQuery wait for its context to end
	holdQuerySubmit bool

	analysisSubmits []string
	querySubmits    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		checks:      map[backend.AnalysisJobID]int{},
		queryChecks: map[backend.QueryJobID]int{},
		analysis: func(backend.AnalysisJobID, int) *backend.AnalysisJob {
			return &backend.AnalysisJob{Status: backend.AnalysisSuccess}
		},
		queryResult: &backend.QueryResult{GenerationMode: backend.GenerationService, Answer: "It uses fiber."},
	}
}

func (f *fakeBackend) SubmitAnalysis(ctx context.Context, repoURL string, _ backend.EmbeddingConfig) (backend.AnalysisJobID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.analysisSubmits = append(f.analysisSubmits, repoURL)
	return backend.AnalysisJobID(fmt.Sprintf("job-%d", len(f.analysisSubmits))), nil
}

func (f *fakeBackend) GetAnalysisStatus(ctx context.Context, id backend.AnalysisJobID) (*backend.AnalysisJob, error) {
	f.mu.Lock()
	f.checks[id]++
	n := f.checks[id]
	fn := f.analysis
	f.mu.Unlock()
	return fn(id, n), nil
}

func (f *fakeBackend) SubmitQuery(ctx context.Context, id backend.AnalysisJobID, question string, _ backend.GenerationMode, _ backend.LLMConfig) (backend.QueryJobID, error) {
	f.mu.Lock()
	f.querySubmits = append(f.querySubmits, question)
	qid := backend.QueryJobID(fmt.Sprintf("q-%d", len(f.querySubmits)))
	hold := f.holdQuerySubmit
	f.mu.Unlock()

	if hold {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return qid, nil
}

func (f *fakeBackend) GetQueryStatus(ctx context.Context, id backend.QueryJobID) (*backend.QueryState, error) {
	f.mu.Lock()
	gate := f.queryGate
	f.queryChecks[id]++
	n := f.queryChecks[id]
	status := f.queryStatus
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if status != nil {
		return status(n)
	}
	return &backend.QueryState{Status: backend.QuerySuccess}, nil
}

func (f *fakeBackend) GetQueryResult(ctx context.Context, id backend.QueryJobID) (*backend.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryResult, nil
}

func (f *fakeBackend) submittedAnalyses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.analysisSubmits)
}

func (f *fakeBackend) submittedQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.querySubmits)
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []dto.OutboundMessage
}

func (s *recordingSender) Send(ctx context.Context, msg dto.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, m.Text)
	}
	return out
}

func (s *recordingSender) count(substr string) int {
	n := 0
	for _, text := range s.texts() {
		if strings.Contains(text, substr) {
			n++
		}
	}
	return n
}

func (s *recordingSender) waitFor(t *testing.T, substr string) {
	t.Helper()
	require.Eventually(t, func() bool { return s.count(substr) > 0 }, 2*time.Second, 2*time.Millisecond,
		"no reply containing %q, got %q", substr, s.texts())
}

func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			APIBaseURL:        "http://backend:8000",
			RequestTimeout:    time.Second,
			PollInterval:      time.Millisecond,
			AnalysisTimeout:   2 * time.Second,
			QueryPollInterval: time.Millisecond,
			QueryTimeout:      2 * time.Second,
			GenerationMode:    "service",
		},
		Embedding: config.EmbeddingConfig{Provider: "qwen", Model: "text-embedding-v4", APIKey: "secret"},
		LLM:       config.LLMConfig{Provider: "qwen", Model: "qwen-plus", APIKey: "secret", Temperature: 0.7, MaxTokens: 9000},
		Chat: config.ChatConfig{
			MaxMessageLength: 1800,
			MailboxSize:      8,
			ExitKeywords:     []string{"exit"},
			SwitchCommands:   []string{"switch"},
		},
	}
}

type fixture struct {
	svc    IRepoQAService
	api    *fakeBackend
	store  *memory.SessionStore
	sender *recordingSender
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		api:    newFakeBackend(),
		store:  memory.NewSessionStore(0),
		sender: &recordingSender{},
	}
	log := logger.NewNopLogger()
	f.svc = NewRepoQAService(cfg, f.api, f.store, f.sender, nil, response.NewGenerator(nil, log), log)
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) say(t *testing.T, user, text string) {
	t.Helper()
	require.NoError(t, f.svc.HandleMessage(context.Background(), user, text))
}

func (f *fixture) status(t *testing.T, user string) *dto.RepoStatusResponse {
	t.Helper()
	st, err := f.svc.Status(context.Background(), user)
	require.NoError(t, err)
	return st
}

// ready puts user on repoURL the way a previous run would have left it.
func (f *fixture) ready(t *testing.T, user, repoURL, jobID string) {
	t.Helper()
	require.NoError(t, f.store.SaveUserState(context.Background(), &entity.UserState{
		UserID:            user,
		CurrentRepoURL:    repoURL,
		AnalysisSessionID: jobID,
	}))
}

func TestAnalyzeThenAsk(t *testing.T) {
	f := newFixture(t, testConfig())
	f.api.analysis = func(_ backend.AnalysisJobID, n int) *backend.AnalysisJob {
		if n < 3 {
			return &backend.AnalysisJob{Status: backend.AnalysisProcessing}
		}
		return &backend.AnalysisJob{Status: backend.AnalysisSuccess, RepositoryName: "widgets", TotalFiles: 42, TotalChunks: 310}
	}

	f.say(t, "alice", repoA)
	f.sender.waitFor(t, "Repository analysis complete")

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, fmt.Sprintf(constant.MsgAnalysisStarted, repoA), texts[0])
	assert.Equal(t, fmt.Sprintf(constant.MsgAnalysisReady, "widgets", 42, 310), texts[1])

	st := f.status(t, "alice")
	assert.Equal(t, "READY", st.State)
	assert.Equal(t, repoA, st.RepoURL)
	assert.Equal(t, "job-1", st.AnalysisSessionID)
	require.Len(t, st.Tasks, 1)
	assert.Equal(t, string(entity.TaskCompleted), st.Tasks[0].Status)

	saved, err := f.store.GetUserState(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "job-1", saved.AnalysisSessionID)

	f.say(t, "alice", "How are routes registered?")
	f.sender.waitFor(t, fmt.Sprintf(constant.MsgAnswer, "It uses fiber."))
	assert.Equal(t, 1, f.sender.count("Thinking about your question"))
}

func TestQuestionWithoutRepositoryIsRejected(t *testing.T) {
	f := newFixture(t, testConfig())

	f.say(t, "bob", "what does this repo do?")
	f.sender.waitFor(t, intent.ExampleRepositoryURL)

	assert.Equal(t, fmt.Sprintf(constant.MsgInvalidURL, intent.ExampleRepositoryURL), f.sender.texts()[0])
	assert.Zero(t, f.api.submittedAnalyses())
	assert.Zero(t, f.api.submittedQueries())
	assert.Equal(t, "NO_REPO", f.status(t, "bob").State)
}

func TestAnalysisTimeoutLeavesNoRepo(t *testing.T) {
	cfg := testConfig()
	cfg.Backend.AnalysisTimeout = 30 * time.Millisecond
	f := newFixture(t, cfg)
	f.api.analysis = func(backend.AnalysisJobID, int) *backend.AnalysisJob {
		return &backend.AnalysisJob{Status: backend.AnalysisProcessing}
	}

	f.say(t, "carol", repoA)
	f.sender.waitFor(t, constant.MsgAnalysisTimedOut)

	assert.Equal(t, 1, f.sender.count(constant.MsgKeepNoRepo))
	st := f.status(t, "carol")
	assert.Equal(t, "NO_REPO", st.State)
	assert.Empty(t, st.RepoURL)
	assert.Empty(t, st.Tasks)
}

func TestSubmitFailure(t *testing.T) {
	f := newFixture(t, testConfig())
	f.api.submitErr = fmt.Errorf("connection refused")

	f.say(t, "dave", repoA)
	f.sender.waitFor(t, constant.MsgAnalysisSubmitFailed)

	st := f.status(t, "dave")
	assert.Equal(t, "NO_REPO", st.State)
	assert.Empty(t, st.Tasks)
}

func TestFailedSwitchKeepsPreviousRepository(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "erin", repoA, "job-old")
	f.api.analysis = func(backend.AnalysisJobID, int) *backend.AnalysisJob {
		return &backend.AnalysisJob{Status: backend.AnalysisFailed, ErrorMessage: "clone failed"}
	}

	f.say(t, "erin", repoB)
	f.sender.waitFor(t, fmt.Sprintf(constant.MsgAnalysisFailed, "clone failed"))

	assert.Equal(t, 1, f.sender.count(fmt.Sprintf(constant.MsgKeepOldRepo, repoA)))
	st := f.status(t, "erin")
	assert.Equal(t, "READY", st.State)
	assert.Equal(t, repoA, st.RepoURL)
	assert.Equal(t, "job-old", st.AnalysisSessionID)
}

func TestSameRepositoryIsNotReanalyzed(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "frank", repoA, "job-old")

	f.say(t, "frank", repoA+"/")
	f.sender.waitFor(t, fmt.Sprintf(constant.MsgAlreadyActive, repoA))
	assert.Zero(t, f.api.submittedAnalyses())
}

func TestExitIsIdempotent(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "gina", repoA, "job-old")

	f.say(t, "gina", "exit")
	f.say(t, "gina", "EXIT")
	require.Eventually(t, func() bool { return f.sender.count(constant.MsgFarewell) == 2 }, time.Second, 2*time.Millisecond)

	st := f.status(t, "gina")
	assert.Equal(t, "NO_REPO", st.State)
	assert.Empty(t, st.RepoURL)

	saved, err := f.store.GetUserState(context.Background(), "gina")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestSwitchCancelsRunningAnalysis(t *testing.T) {
	f := newFixture(t, testConfig())
	f.api.analysis = func(backend.AnalysisJobID, int) *backend.AnalysisJob {
		return &backend.AnalysisJob{Status: backend.AnalysisProcessing}
	}

	f.say(t, "hank", repoA)
	f.say(t, "hank", "what is this?")
	f.say(t, "hank", "switch")
	f.sender.waitFor(t, constant.MsgSwitchPrompt)

	assert.Equal(t, 1, f.sender.count(fmt.Sprintf(constant.MsgAlreadyAnalyzing, repoA)))
	assert.Equal(t, "NO_REPO", f.status(t, "hank").State)

	// the abandoned job neither reports back nor leaves a task behind
	require.Eventually(t, func() bool {
		st := f.status(t, "hank")
		return len(st.Tasks) == 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.sender.count("Repository analysis"))
	assert.Zero(t, f.sender.count(constant.MsgAnalysisError))
}

func TestSuccessfulSwitchMovesToNewRepository(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "hugo", repoA, "job-old")
	f.api.analysis = func(backend.AnalysisJobID, int) *backend.AnalysisJob {
		return &backend.AnalysisJob{Status: backend.AnalysisSuccess, RepositoryName: "gadgets", TotalFiles: 7, TotalChunks: 21}
	}

	f.say(t, "hugo", repoB)
	f.sender.waitFor(t, fmt.Sprintf(constant.MsgAnalysisReady, "gadgets", 7, 21))

	st := f.status(t, "hugo")
	assert.Equal(t, "READY", st.State)
	assert.Equal(t, repoB, st.RepoURL)
	assert.Equal(t, "job-1", st.AnalysisSessionID)
	assert.Empty(t, st.PendingRepoURL)

	saved, err := f.store.GetUserState(context.Background(), "hugo")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, repoB, saved.CurrentRepoURL)
	assert.Equal(t, "job-1", saved.AnalysisSessionID)
}

func TestFailedQuestionIsReleasedAndNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		status  func(n int) (*backend.QueryState, error)
	}{
		{
			name:    "backend reports failure",
			timeout: 2 * time.Second,
			status: func(int) (*backend.QueryState, error) {
				return &backend.QueryState{Status: backend.QueryFailed, Message: "index missing"}, nil
			},
		},
		{
			name:    "query never finishes",
			timeout: 30 * time.Millisecond,
			status: func(int) (*backend.QueryState, error) {
				return &backend.QueryState{Status: backend.QueryProcessing}, nil
			},
		},
		{
			name:    "status endpoint unreachable",
			timeout: 2 * time.Second,
			status: func(int) (*backend.QueryState, error) {
				return nil, fmt.Errorf("connection reset by peer")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Backend.QueryTimeout = tt.timeout
			f := newFixture(t, cfg)
			f.ready(t, "nora", repoA, "job-old")
			f.api.queryStatus = tt.status

			f.say(t, "nora", "How is auth done?")
			f.sender.waitFor(t, constant.MsgQueryFailed)
			require.Eventually(t, func() bool { return f.status(t, "nora").InFlightQuestions == 0 }, time.Second, 2*time.Millisecond)
			assert.Equal(t, 1, f.api.submittedQueries())
			assert.Zero(t, f.sender.count("💡 Answer:"))

			// the same text is admitted again after the failure
			f.say(t, "nora", "How is auth done?")
			require.Eventually(t, func() bool { return f.sender.count(constant.MsgQueryFailed) == 2 }, time.Second, 2*time.Millisecond)
			assert.Equal(t, 2, f.api.submittedQueries())
			assert.Zero(t, f.sender.count(constant.MsgAlreadyProcessing))
			assert.Equal(t, "READY", f.status(t, "nora").State)
		})
	}
}

func TestExitDuringQuerySubmitStaysSilent(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "otto", repoA, "job-old")
	f.api.holdQuerySubmit = true

	f.say(t, "otto", "How is auth done?")
	require.Eventually(t, func() bool { return f.api.submittedQueries() == 1 }, time.Second, 2*time.Millisecond)

	f.say(t, "otto", "exit")
	f.sender.waitFor(t, constant.MsgFarewell)
	require.Eventually(t, func() bool { return f.status(t, "otto").InFlightQuestions == 0 }, time.Second, 2*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.sender.count(constant.MsgQueryFailed))
	texts := f.sender.texts()
	assert.Contains(t, texts[len(texts)-1], constant.MsgFarewell)
}

func TestIdenticalQuestionIsAdmittedOnce(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "ivy", repoA, "job-old")
	gate := make(chan struct{})
	f.api.queryGate = gate

	f.say(t, "ivy", "How is auth done?")
	f.say(t, "ivy", "  How is auth done?  ")
	f.sender.waitFor(t, constant.MsgAlreadyProcessing)

	assert.Equal(t, 1, f.status(t, "ivy").InFlightQuestions)
	require.Eventually(t, func() bool { return f.api.submittedQueries() == 1 }, time.Second, 2*time.Millisecond)

	close(gate)
	f.sender.waitFor(t, "💡 Answer:")
	require.Eventually(t, func() bool { return f.status(t, "ivy").InFlightQuestions == 0 }, time.Second, 2*time.Millisecond)

	// once answered the same text is admitted again
	f.say(t, "ivy", "How is auth done?")
	require.Eventually(t, func() bool { return f.api.submittedQueries() == 2 }, time.Second, 2*time.Millisecond)
}

func TestDistinctQuestionsRunConcurrently(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "jack", repoA, "job-old")
	gate := make(chan struct{})
	f.api.queryGate = gate

	f.say(t, "jack", "first question")
	f.say(t, "jack", "second question")
	require.Eventually(t, func() bool { return f.api.submittedQueries() == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 2, f.status(t, "jack").InFlightQuestions)
	assert.Zero(t, f.sender.count(constant.MsgAlreadyProcessing))

	close(gate)
	require.Eventually(t, func() bool { return f.sender.count("💡 Answer:") == 2 }, time.Second, 2*time.Millisecond)
}

func TestPluginModeSummarizesWithoutGenerator(t *testing.T) {
	cfg := testConfig()
	cfg.Backend.GenerationMode = "plugin"
	f := newFixture(t, cfg)
	f.ready(t, "kate", repoA, "job-old")
	f.api.queryResult = &backend.QueryResult{
		GenerationMode: backend.GenerationPlugin,
		RetrievedContext: []backend.ContextItem{
			{FilePath: "main.go", Content: "package main"},
			{FilePath: "server.go", Content: "func New() {}"},
		},
	}

	f.say(t, "kate", "Where is main?")
	f.sender.waitFor(t, "Found 2 relevant code snippets:")
	assert.Equal(t, 1, f.sender.count("📁 main.go"))
}

func TestStatusAndConfigCommands(t *testing.T) {
	f := newFixture(t, testConfig())
	f.ready(t, "liam", repoA, "job-old")

	f.say(t, "liam", "/repo_status")
	f.sender.waitFor(t, "State: READY")
	assert.Equal(t, 1, f.sender.count("Repository: "+repoA))

	f.say(t, "liam", "repo_config")
	f.sender.waitFor(t, "RepoInsight configuration")
	for _, text := range f.sender.texts() {
		assert.NotContains(t, text, "secret")
	}
}

func TestConfigHidesCredentials(t *testing.T) {
	f := newFixture(t, testConfig())

	c := f.svc.Config()
	assert.Equal(t, "http://backend:8000", c.APIBaseURL)
	assert.Equal(t, "qwen-plus", c.LLMModel)
	assert.False(t, c.GeneratorEnabled)
	assert.NotContains(t, fmt.Sprintf("%+v", c), "secret")
}

func TestEmptyUserIDIsRejected(t *testing.T) {
	f := newFixture(t, testConfig())

	assert.ErrorIs(t, f.svc.HandleMessage(context.Background(), "", "hi"), ErrEmptyUserID)
	_, err := f.svc.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestRestorePendingTasks(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	for _, id := range []string{"done", "broken", "running"} {
		require.NoError(t, f.store.SaveTask(ctx, &entity.AnalysisTask{
			SessionID:  id,
			RepoURL:    repoA,
			UserOrigin: "mia",
			Status:     entity.TaskPending,
		}))
	}
	f.api.analysis = func(id backend.AnalysisJobID, _ int) *backend.AnalysisJob {
		switch id {
		case "done":
			return &backend.AnalysisJob{Status: backend.AnalysisSuccess}
		case "broken":
			return &backend.AnalysisJob{Status: backend.AnalysisFailed, ErrorMessage: "boom"}
		default:
			return &backend.AnalysisJob{Status: backend.AnalysisProcessing}
		}
	}

	f.svc.RestorePendingTasks(ctx)

	tasks, err := f.store.ListUserTasks(ctx, "mia")
	require.NoError(t, err)
	got := map[string]entity.TaskStatus{}
	for _, task := range tasks {
		got[task.SessionID] = task.Status
	}
	assert.Equal(t, map[string]entity.TaskStatus{
		"done":    entity.TaskCompleted,
		"running": entity.TaskPending,
	}, got)
}
