package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"repoinsight/pkg/poller"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const apiPrefix = "/api/v1"

// ErrEmptyJobID is returned when a submit call answers 200 without an id.
var ErrEmptyJobID = errors.New("backend returned no job id")

// HTTPError is a non-200 answer from the backend.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d, body: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the repository analysis service.
type Client struct {
	BaseURL string
	Client  *http.Client
	tracer  trace.Tracer
}

// NewClient builds a client whose every call is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
		tracer: otel.Tracer("repoinsight/backend"),
	}
}

// SubmitAnalysis starts (or fast-forwards) the analysis of repoURL.
func (c *Client) SubmitAnalysis(ctx context.Context, repoURL string, embedding EmbeddingConfig) (AnalysisJobID, error) {
	var resp jobResponse
	err := c.do(ctx, http.MethodPost, "/repos/analyze", analyzeRequest{
		RepoURL:         repoURL,
		EmbeddingConfig: embedding,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", ErrEmptyJobID
	}
	return AnalysisJobID(resp.SessionID), nil
}

func (c *Client) GetAnalysisStatus(ctx context.Context, id AnalysisJobID) (*AnalysisJob, error) {
	var job AnalysisJob
	if err := c.do(ctx, http.MethodGet, "/repos/status/"+url.PathEscape(string(id)), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SubmitQuery asks one question against an analyzed repository.
func (c *Client) SubmitQuery(ctx context.Context, id AnalysisJobID, question string, mode GenerationMode, llm LLMConfig) (QueryJobID, error) {
	var resp jobResponse
	err := c.do(ctx, http.MethodPost, "/repos/query", queryRequest{
		SessionID:      string(id),
		Question:       question,
		GenerationMode: mode,
		LLMConfig:      llm,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", ErrEmptyJobID
	}
	return QueryJobID(resp.SessionID), nil
}

func (c *Client) GetQueryStatus(ctx context.Context, id QueryJobID) (*QueryState, error) {
	var state QueryState
	if err := c.do(ctx, http.MethodGet, "/repos/query/status/"+url.PathEscape(string(id)), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// GetQueryResult is only meaningful after GetQueryStatus reported success.
func (c *Client) GetQueryResult(ctx context.Context, id QueryJobID) (*QueryResult, error) {
	var result QueryResult
	if err := c.do(ctx, http.MethodGet, "/repos/query/result/"+url.PathEscape(string(id)), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "backend "+method+" "+path)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("backend.path", path))

	err := c.roundTrip(ctx, method, path, body, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// API is the backend surface the orchestrator depends on. *Client
// implements it; tests substitute fakes.
type API interface {
	SubmitAnalysis(ctx context.Context, repoURL string, embedding EmbeddingConfig) (AnalysisJobID, error)
	GetAnalysisStatus(ctx context.Context, id AnalysisJobID) (*AnalysisJob, error)
	SubmitQuery(ctx context.Context, id AnalysisJobID, question string, mode GenerationMode, llm LLMConfig) (QueryJobID, error)
	GetQueryStatus(ctx context.Context, id QueryJobID) (*QueryState, error)
	GetQueryResult(ctx context.Context, id QueryJobID) (*QueryResult, error)
}

var _ API = (*Client)(nil)

// AnalysisCheck adapts GetAnalysisStatus for poller.Wait.
func AnalysisCheck(api API, id AnalysisJobID) poller.CheckFunc[*AnalysisJob] {
	return func(ctx context.Context) (poller.Result[*AnalysisJob], error) {
		job, err := api.GetAnalysisStatus(ctx, id)
		if err != nil {
			return poller.Result[*AnalysisJob]{}, err
		}
		return ClassifyAnalysis(job)
	}
}

// ClassifyAnalysis maps an analysis status onto the poller states.
func ClassifyAnalysis(job *AnalysisJob) (poller.Result[*AnalysisJob], error) {
	switch job.Status {
	case AnalysisSuccess:
		return poller.Result[*AnalysisJob]{State: poller.Succeeded, Value: job}, nil
	case AnalysisFailed:
		msg := job.ErrorMessage
		if msg == "" {
			msg = "unknown error"
		}
		return poller.Result[*AnalysisJob]{State: poller.Failed, Message: msg}, nil
	case AnalysisQueued, AnalysisProcessing:
		return poller.Result[*AnalysisJob]{State: poller.InProgress}, nil
	default:
		return poller.Result[*AnalysisJob]{}, fmt.Errorf("%w: analysis status %q", poller.ErrUnknownStatus, job.Status)
	}
}

// QueryCheck polls the query status and, once it reports success, fetches the
// full result in a second call.
func QueryCheck(api API, id QueryJobID) poller.CheckFunc[*QueryResult] {
	return func(ctx context.Context) (poller.Result[*QueryResult], error) {
		state, err := api.GetQueryStatus(ctx, id)
		if err != nil {
			return poller.Result[*QueryResult]{}, err
		}

		switch state.Status {
		case QuerySuccess:
			result, err := api.GetQueryResult(ctx, id)
			if err != nil {
				return poller.Result[*QueryResult]{}, err
			}
			return poller.Result[*QueryResult]{State: poller.Succeeded, Value: result}, nil
		case QueryFailed:
			msg := state.Message
			if msg == "" {
				msg = "query failed"
			}
			return poller.Result[*QueryResult]{State: poller.Failed, Message: msg}, nil
		case QueryPending, QueryQueued, QueryProcessing, QueryStarted:
			return poller.Result[*QueryResult]{State: poller.InProgress}, nil
		default:
			return poller.Result[*QueryResult]{}, fmt.Errorf("%w: query status %q", poller.ErrUnknownStatus, state.Status)
		}
	}
}
