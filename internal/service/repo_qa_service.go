package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repoinsight/internal/config"
	"repoinsight/internal/constant"
	"repoinsight/internal/dto"
	"repoinsight/internal/entity"
	"repoinsight/internal/pkg/logger"
	"repoinsight/internal/repository/contract"
	"repoinsight/pkg/backend"
	"repoinsight/pkg/events"
	"repoinsight/pkg/poller"
	"repoinsight/pkg/rag/intent"
	"repoinsight/pkg/rag/response"
	"repoinsight/pkg/rag/session"
	"repoinsight/pkg/rag/state"
	"repoinsight/pkg/utils"

	"github.com/google/uuid"
)

var ErrEmptyUserID = errors.New("user id is required")

// Sender delivers one outbound message part to the chat transport.
type Sender interface {
	Send(ctx context.Context, msg dto.OutboundMessage) error
}

// EventPublisher receives domain events; a nil publisher disables them.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IRepoQAService interface {
	// HandleMessage queues text for the user's session and returns
	// immediately; replies go through the Sender.
	HandleMessage(ctx context.Context, userID, text string) error
	Status(ctx context.Context, userID string) (*dto.RepoStatusResponse, error)
	Config() dto.RepoConfigResponse
	// RestorePendingTasks reconciles analyses left pending by a previous run.
	RestorePendingTasks(ctx context.Context)
	Close()
}

type repoQAService struct {
	cfg        *config.Config
	api        backend.API
	store      contract.SessionStore
	sender     Sender
	publisher  EventPublisher
	generator  *response.Generator
	classifier *intent.Classifier
	states     *state.Manager
	segmenter  *utils.Segmenter
	registry   *session.Manager[sessionEvent]
	logger     logger.ILogger
}

func NewRepoQAService(
	cfg *config.Config,
	api backend.API,
	store contract.SessionStore,
	sender Sender,
	publisher EventPublisher,
	generator *response.Generator,
	log logger.ILogger,
) IRepoQAService {
	s := &repoQAService{
		cfg:        cfg,
		api:        api,
		store:      store,
		sender:     sender,
		publisher:  publisher,
		generator:  generator,
		classifier: intent.NewClassifier(cfg.Chat.ExitKeywords, cfg.Chat.SwitchCommands),
		states:     state.NewManager(log),
		segmenter:  utils.NewSegmenter(cfg.Chat.MaxMessageLength, log),
		logger:     log,
	}
	s.registry = session.NewManager[sessionEvent](s.newSession, session.Options{
		MailboxSize: cfg.Chat.MailboxSize,
		IdleTTL:     cfg.Chat.SessionIdleTTL,
	}, log)
	return s
}

func (s *repoQAService) HandleMessage(ctx context.Context, userID, text string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	return s.registry.Dispatch(ctx, userID, sessionEvent{kind: eventInbound, text: text})
}

func (s *repoQAService) Status(ctx context.Context, userID string) (*dto.RepoStatusResponse, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	reply := make(chan sessionSnapshot, 1)
	if err := s.registry.Dispatch(ctx, userID, sessionEvent{kind: eventSnapshot, reply: reply}); err != nil {
		return nil, err
	}

	var snap sessionSnapshot
	select {
	case snap = <-reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tasks, err := s.store.ListUserTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	resp := &dto.RepoStatusResponse{
		UserID:            userID,
		State:             string(snap.State),
		RepoURL:           snap.RepoURL,
		AnalysisSessionID: snap.AnalysisJobID,
		PendingRepoURL:    snap.PendingRepoURL,
		InFlightQuestions: snap.InFlight,
		Tasks:             make([]dto.AnalysisTaskDTO, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, dto.AnalysisTaskDTO{
			SessionID: t.SessionID,
			RepoURL:   t.RepoURL,
			Status:    string(t.Status),
			CreatedAt: t.CreatedAt,
		})
	}
	return resp, nil
}

// Config never exposes credentials.
func (s *repoQAService) Config() dto.RepoConfigResponse {
	b := s.cfg.Backend
	return dto.RepoConfigResponse{
		APIBaseURL:        b.APIBaseURL,
		RequestTimeout:    b.RequestTimeout.String(),
		PollInterval:      b.PollInterval.String(),
		AnalysisTimeout:   b.AnalysisTimeout.String(),
		QueryTimeout:      b.QueryTimeout.String(),
		GenerationMode:    b.GenerationMode,
		EmbeddingProvider: s.cfg.Embedding.Provider,
		EmbeddingModel:    s.cfg.Embedding.Model,
		LLMProvider:       s.cfg.LLM.Provider,
		LLMModel:          s.cfg.LLM.Model,
		LLMTemperature:    s.cfg.LLM.Temperature,
		LLMMaxTokens:      s.cfg.LLM.MaxTokens,
		GeneratorEnabled:  s.cfg.Generator.Provider != "",
	}
}

func (s *repoQAService) configText() string {
	c := s.Config()
	return fmt.Sprintf(constant.MsgConfig,
		c.APIBaseURL, c.RequestTimeout, c.PollInterval, c.QueryTimeout, c.GenerationMode,
		c.EmbeddingProvider, c.EmbeddingModel,
		c.LLMProvider, c.LLMModel, c.LLMTemperature, c.LLMMaxTokens,
	)
}

// RestorePendingTasks logs every pending task and checks it once against
// the backend. Finished ones are marked completed, failed ones dropped,
// the rest are left for the next start. Best effort.
func (s *repoQAService) RestorePendingTasks(ctx context.Context) {
	tasks, err := s.store.ListTasksByStatus(ctx, entity.TaskPending)
	if err != nil {
		s.logger.Error("RepoQAService", "Failed to list pending tasks", map[string]interface{}{"error": err})
		return
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		details := map[string]interface{}{"session_id": task.SessionID, "repo_url": task.RepoURL, "user": task.UserOrigin}
		s.logger.Info("RepoQAService", "Reconciling pending task", details)

		job, err := s.api.GetAnalysisStatus(ctx, backend.AnalysisJobID(task.SessionID))
		if err != nil {
			details["error"] = err
			s.logger.Warn("RepoQAService", "Pending task status unavailable", details)
			continue
		}

		res, err := backend.ClassifyAnalysis(job)
		switch {
		case err == nil && res.State == poller.Succeeded:
			if err := s.store.UpdateTaskStatus(ctx, task.SessionID, entity.TaskCompleted); err != nil {
				details["error"] = err
				s.logger.Warn("RepoQAService", "Failed to mark task completed", details)
			}
		case err != nil || res.State == poller.Failed:
			if err := s.store.DeleteTask(ctx, task.SessionID); err != nil {
				details["error"] = err
				s.logger.Warn("RepoQAService", "Failed to drop failed task", details)
			}
		}
	}
}

func (s *repoQAService) Close() {
	s.registry.Close()
}

func (s *repoQAService) analysisPoll() poller.Config {
	return poller.Config{
		Interval:    s.cfg.Backend.PollInterval,
		Timeout:     s.cfg.Backend.AnalysisTimeout,
		MaxAttempts: s.cfg.Backend.MaxPollAttempts,
	}
}

func (s *repoQAService) queryPoll() poller.Config {
	return poller.Config{
		Interval:    s.cfg.Backend.QueryPollInterval,
		Timeout:     s.cfg.Backend.QueryTimeout,
		MaxAttempts: s.cfg.Backend.MaxPollAttempts,
	}
}

func (s *repoQAService) embeddingConfig() backend.EmbeddingConfig {
	e := s.cfg.Embedding
	return backend.EmbeddingConfig{
		Provider:    e.Provider,
		ModelName:   e.Model,
		APIKey:      e.APIKey,
		APIBase:     e.BaseURL,
		ExtraParams: map[string]interface{}{},
	}
}

func (s *repoQAService) llmConfig() backend.LLMConfig {
	l := s.cfg.LLM
	return backend.LLMConfig{
		Provider:    l.Provider,
		ModelName:   l.Model,
		APIKey:      l.APIKey,
		Temperature: l.Temperature,
		MaxTokens:   l.MaxTokens,
	}
}

// reply segments text and sends every part. Delivery errors are logged.
func (s *repoQAService) reply(ctx context.Context, userID, text string) {
	parts := s.segmenter.Segment(text)
	id := uuid.NewString()
	now := time.Now().UTC()

	for i, part := range parts {
		msg := dto.OutboundMessage{
			ID:        id,
			UserID:    userID,
			Text:      part,
			Part:      i + 1,
			Parts:     len(parts),
			CreatedAt: now,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Error("RepoQAService", "Failed to send reply", map[string]interface{}{
				"user":  userID,
				"part":  i + 1,
				"error": err,
			})
			return
		}
	}
}

func (s *repoQAService) publish(ctx context.Context, ev events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("RepoQAService", "Failed to publish event", map[string]interface{}{
			"type":  ev.EventType(),
			"error": err,
		})
	}
}
