package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"repoinsight/internal/constant"
	"repoinsight/internal/entity"
	"repoinsight/pkg/backend"
	"repoinsight/pkg/events"
	"repoinsight/pkg/poller"
	"repoinsight/pkg/rag/admission"
	"repoinsight/pkg/rag/intent"
	"repoinsight/pkg/rag/session"
	"repoinsight/pkg/store"
)

type eventKind int

const (
	eventInbound eventKind = iota
	eventAnalysisSubmitted
	eventAnalysisDone
	eventSnapshot
)

// sessionEvent is everything a session actor can receive: user messages,
// results posted back by its own analysis goroutine, and status reads.
type sessionEvent struct {
	kind eventKind
	text string

	// analysis results, tagged with the generation that started them
	generation uint64
	repoURL    string
	jobID      string
	job        *backend.AnalysisJob
	err        error

	reply chan sessionSnapshot
}

type sessionSnapshot struct {
	State          store.SessionState
	RepoURL        string
	AnalysisJobID  string
	PendingRepoURL string
	InFlight       int
}

// repoSession is the state machine of one user. All fields except running
// and the admission set are touched only from the actor goroutine.
type repoSession struct {
	svc       *repoQAService
	key       string
	loaded    bool
	session   *store.Session
	admission *admission.Set

	// scope of the session's background work, replaced on exit and switch
	ctx    context.Context
	cancel context.CancelFunc

	analysisCancel context.CancelFunc
	// bumped whenever a running analysis is abandoned, so its late result is ignored
	generation uint64
	running    atomic.Int32
}

var _ session.Handler[sessionEvent] = (*repoSession)(nil)

func (s *repoQAService) newSession(key string) session.Handler[sessionEvent] {
	ctx, cancel := context.WithCancel(context.Background())
	return &repoSession{
		svc:       s,
		key:       key,
		session:   s.states.New(key),
		admission: admission.NewSet(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *repoSession) Busy() bool {
	return r.running.Load() > 0
}

func (r *repoSession) Close() {
	r.cancel()
}

func (r *repoSession) Handle(ctx context.Context, ev sessionEvent) {
	if !r.loaded {
		r.load(ctx)
	}

	switch ev.kind {
	case eventInbound:
		r.onMessage(ctx, r.svc.classifier.Classify(ev.text))
	case eventAnalysisSubmitted:
		if ev.generation == r.generation {
			r.svc.states.RecordPendingJob(r.session, ev.jobID)
		}
	case eventAnalysisDone:
		r.onAnalysisDone(ctx, ev)
	case eventSnapshot:
		ev.reply <- sessionSnapshot{
			State:          r.session.State,
			RepoURL:        r.session.RepoURL,
			AnalysisJobID:  r.session.AnalysisJobID,
			PendingRepoURL: r.session.PendingRepoURL,
			InFlight:       r.admission.Len(),
		}
	}
}

// load restores a ready repository saved by an earlier actor or process.
func (r *repoSession) load(ctx context.Context) {
	r.loaded = true
	st, err := r.svc.store.GetUserState(ctx, r.key)
	if err != nil {
		r.svc.logger.Warn("RepoSession", "Failed to load user state", map[string]interface{}{"user": r.key, "error": err})
		return
	}
	if st != nil {
		r.session = r.svc.states.Restore(r.key, st.CurrentRepoURL, st.AnalysisSessionID)
	}
}

func (r *repoSession) onMessage(ctx context.Context, in intent.Input) {
	sess := r.session

	switch in.Kind {
	case intent.KindExit:
		r.exit(ctx)

	case intent.KindSwitch:
		r.clear(ctx, "switch")
		r.reply(ctx, constant.MsgSwitchPrompt)

	case intent.KindStart:
		if sess.HasRepo() && sess.State == store.StateReady {
			r.reply(ctx, fmt.Sprintf(constant.MsgWelcomeReady, sess.RepoURL))
			return
		}
		r.reply(ctx, constant.MsgWelcome)

	case intent.KindStatus:
		r.reply(ctx, r.statusText(ctx))

	case intent.KindConfig:
		r.reply(ctx, r.svc.configText())

	case intent.KindEmpty:
		switch sess.State {
		case store.StateReady:
			r.reply(ctx, constant.MsgAskQuestion)
		case store.StateAnalyzing:
			r.reply(ctx, fmt.Sprintf(constant.MsgAlreadyAnalyzing, sess.PendingRepoURL))
		default:
			r.reply(ctx, constant.MsgWelcome)
		}

	case intent.KindRepositoryURL:
		switch {
		case sess.State == store.StateAnalyzing:
			r.reply(ctx, fmt.Sprintf(constant.MsgAlreadyAnalyzing, sess.PendingRepoURL))
		case sess.State == store.StateReady && sameRepo(sess.RepoURL, in.Text):
			r.reply(ctx, fmt.Sprintf(constant.MsgAlreadyActive, sess.RepoURL))
		default:
			r.startAnalysis(ctx, in.Text)
		}

	case intent.KindQuestion:
		switch sess.State {
		case store.StateReady:
			r.ask(ctx, in.Text)
		case store.StateAnalyzing:
			r.reply(ctx, fmt.Sprintf(constant.MsgAlreadyAnalyzing, sess.PendingRepoURL))
		default:
			r.reply(ctx, fmt.Sprintf(constant.MsgInvalidURL, intent.ExampleRepositoryURL))
		}
	}
}

func sameRepo(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

// exit drops everything the session holds and says goodbye.
func (r *repoSession) exit(ctx context.Context) {
	jobID := r.session.AnalysisJobID
	r.clear(ctx, "exit")
	if jobID != "" {
		if err := r.svc.store.DeleteTask(ctx, jobID); err != nil {
			r.svc.logger.Warn("RepoSession", "Failed to delete task", map[string]interface{}{"user": r.key, "error": err})
		}
	}
	r.reply(ctx, constant.MsgFarewell)
}

// clear cancels background work, forgets in-flight questions and returns
// to NO_REPO. It is safe to call in any state.
func (r *repoSession) clear(ctx context.Context, reason string) {
	pendingJob := r.session.PendingJobID

	r.generation++
	if r.analysisCancel != nil {
		r.analysisCancel()
		r.analysisCancel = nil
	}
	r.cancel()
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.admission.Reset()

	r.svc.states.TransitionToNoRepo(r.session)

	if pendingJob != "" {
		if err := r.svc.store.DeleteTask(ctx, pendingJob); err != nil {
			r.svc.logger.Warn("RepoSession", "Failed to delete pending task", map[string]interface{}{"user": r.key, "error": err})
		}
	}
	if err := r.svc.store.DeleteUserState(ctx, r.key); err != nil {
		r.svc.logger.Warn("RepoSession", "Failed to delete user state", map[string]interface{}{"user": r.key, "error": err})
	}

	r.svc.logger.Info("RepoSession", "Session cleared", map[string]interface{}{"user": r.key, "reason": reason})
	r.svc.publish(ctx, events.SessionCleared(r.key, reason))
}

// startAnalysis submits repoURL and polls it on a goroutine. The outcome
// comes back to this actor as an eventAnalysisDone.
func (r *repoSession) startAnalysis(ctx context.Context, repoURL string) {
	r.svc.states.TransitionToAnalyzing(r.session, repoURL)
	r.generation++
	gen := r.generation

	actx, cancel := context.WithCancel(r.ctx)
	r.analysisCancel = cancel

	r.reply(ctx, fmt.Sprintf(constant.MsgAnalysisStarted, repoURL))

	svc := r.svc
	key := r.key
	r.running.Add(1)
	go func() {
		defer r.running.Add(-1)
		defer cancel()

		submit := func(ctx context.Context) (string, error) {
			id, err := svc.api.SubmitAnalysis(ctx, repoURL, svc.embeddingConfig())
			if err != nil || id == "" {
				return string(id), err
			}
			svc.recordSubmission(ctx, key, repoURL, string(id))
			_ = svc.registry.Dispatch(context.Background(), key, sessionEvent{
				kind:       eventAnalysisSubmitted,
				generation: gen,
				jobID:      string(id),
			})
			return string(id), nil
		}
		check := func(ctx context.Context, jobID string) (poller.Result[*backend.AnalysisJob], error) {
			return backend.AnalysisCheck(svc.api, backend.AnalysisJobID(jobID))(ctx)
		}

		jobID, job, err := poller.Run(actx, svc.analysisPoll(), submit, check)

		// posted while running is still held so the session cannot be evicted
		_ = svc.registry.Dispatch(context.Background(), key, sessionEvent{
			kind:       eventAnalysisDone,
			generation: gen,
			repoURL:    repoURL,
			jobID:      jobID,
			job:        job,
			err:        err,
		})
	}()
}

func (s *repoQAService) recordSubmission(ctx context.Context, userID, repoURL, jobID string) {
	err := s.store.SaveTask(ctx, &entity.AnalysisTask{
		SessionID:  jobID,
		RepoURL:    repoURL,
		UserOrigin: userID,
		Status:     entity.TaskPending,
		Embedding: map[string]string{
			"provider":   s.cfg.Embedding.Provider,
			"model_name": s.cfg.Embedding.Model,
		},
	})
	if err != nil {
		s.logger.Warn("RepoQAService", "Failed to record analysis task", map[string]interface{}{"user": userID, "error": err})
	}
	s.publish(ctx, events.AnalysisStarted(userID, repoURL, jobID))
}

func (r *repoSession) onAnalysisDone(ctx context.Context, ev sessionEvent) {
	if ev.generation != r.generation {
		// abandoned by exit or switch; its task record is no longer wanted
		if ev.jobID != "" {
			_ = r.svc.store.DeleteTask(ctx, ev.jobID)
		}
		r.svc.logger.Debug("RepoSession", "Ignoring stale analysis result", map[string]interface{}{"user": r.key, "repo_url": ev.repoURL})
		return
	}
	r.analysisCancel = nil

	if ev.err == nil {
		r.analysisSucceeded(ctx, ev)
		return
	}
	r.analysisFailed(ctx, ev)
}

func (r *repoSession) analysisSucceeded(ctx context.Context, ev sessionEvent) {
	r.svc.states.TransitionToReady(r.session, ev.repoURL, ev.jobID)

	if err := r.svc.store.UpdateTaskStatus(ctx, ev.jobID, entity.TaskCompleted); err != nil {
		r.svc.logger.Warn("RepoSession", "Failed to mark task completed", map[string]interface{}{"user": r.key, "error": err})
	}
	err := r.svc.store.SaveUserState(ctx, &entity.UserState{
		UserID:            r.key,
		CurrentRepoURL:    ev.repoURL,
		AnalysisSessionID: ev.jobID,
	})
	if err != nil {
		r.svc.logger.Warn("RepoSession", "Failed to save user state", map[string]interface{}{"user": r.key, "error": err})
	}

	name := ev.job.RepositoryName
	if name == "" {
		name = ev.repoURL
	}
	r.reply(ctx, fmt.Sprintf(constant.MsgAnalysisReady, name, ev.job.TotalFiles, ev.job.TotalChunks))
	r.svc.publish(ctx, events.AnalysisCompleted(r.key, ev.repoURL, ev.jobID, ev.job.RepositoryName, ev.job.TotalFiles, ev.job.TotalChunks))
}

func (r *repoSession) analysisFailed(ctx context.Context, ev sessionEvent) {
	outcome := poller.Classify(ev.err)
	details := map[string]interface{}{
		"user":     r.key,
		"repo_url": ev.repoURL,
		"job_id":   ev.jobID,
		"outcome":  outcome,
		"error":    ev.err,
	}

	if ev.jobID != "" {
		_ = r.svc.store.DeleteTask(ctx, ev.jobID)
	}
	r.svc.states.AbandonAnalysis(r.session)

	if outcome == poller.OutcomeCancelled {
		r.svc.logger.Debug("RepoSession", "Analysis cancelled", details)
		return
	}
	r.svc.logger.Error("RepoSession", "Repository analysis failed", details)

	var msg string
	switch outcome {
	case poller.OutcomeSubmitFailed:
		msg = constant.MsgAnalysisSubmitFailed
	case poller.OutcomeTimedOut:
		msg = constant.MsgAnalysisTimedOut
	case poller.OutcomeFailed:
		msg = fmt.Sprintf(constant.MsgAnalysisFailed, failureMessage(ev.err))
	default:
		msg = constant.MsgAnalysisError
	}
	if r.session.HasRepo() {
		msg += fmt.Sprintf(constant.MsgKeepOldRepo, r.session.RepoURL)
	} else {
		msg += constant.MsgKeepNoRepo
	}

	r.reply(ctx, msg)
	r.svc.publish(ctx, events.AnalysisFailed(r.key, ev.repoURL, string(outcome), ev.err.Error()))
}

// failureMessage returns the backend's own message for a failed job.
func failureMessage(err error) string {
	var failed *poller.FailedError
	if errors.As(err, &failed) {
		return failed.Message
	}
	return "unknown status"
}

// ask admits question and answers it on a goroutine. Distinct questions may
// run concurrently; an identical one in flight is turned away.
func (r *repoSession) ask(ctx context.Context, question string) {
	release, ok := r.admission.Acquire(question)
	if !ok {
		r.svc.logger.Debug("RepoSession", "Question already in flight", map[string]interface{}{"user": r.key})
		r.reply(ctx, constant.MsgAlreadyProcessing)
		return
	}

	r.reply(ctx, fmt.Sprintf(constant.MsgThinking, question))

	svc := r.svc
	key := r.key
	qctx := r.ctx
	jobID := backend.AnalysisJobID(r.session.AnalysisJobID)

	r.running.Add(1)
	go func() {
		defer r.running.Add(-1)
		defer release()

		answer, err := svc.answer(qctx, key, jobID, question)
		if err != nil {
			outcome := poller.Classify(err)
			if outcome == poller.OutcomeCancelled || qctx.Err() != nil {
				return
			}
			svc.logger.Error("RepoSession", "Question failed", map[string]interface{}{
				"user":    key,
				"job_id":  jobID,
				"outcome": outcome,
				"error":   err,
			})
			svc.reply(qctx, key, constant.MsgQueryFailed)
			svc.publish(qctx, events.QueryFailed(key, string(jobID), string(outcome), err.Error()))
			return
		}
		svc.reply(qctx, key, fmt.Sprintf(constant.MsgAnswer, answer))
	}()
}

// answer runs one question through submit, poll, fetch and synthesis.
func (s *repoQAService) answer(ctx context.Context, userID string, jobID backend.AnalysisJobID, question string) (string, error) {
	mode := backend.GenerationMode(s.cfg.Backend.GenerationMode)

	submit := func(ctx context.Context) (string, error) {
		id, err := s.api.SubmitQuery(ctx, jobID, question, mode, s.llmConfig())
		return string(id), err
	}
	check := func(ctx context.Context, queryID string) (poller.Result[*backend.QueryResult], error) {
		return backend.QueryCheck(s.api, backend.QueryJobID(queryID))(ctx)
	}

	queryID, result, err := poller.Run(ctx, s.queryPoll(), submit, check)
	if err != nil {
		return "", err
	}

	text := s.generator.Answer(ctx, question, result)
	s.publish(ctx, events.QueryAnswered(userID, string(jobID), queryID, string(result.GenerationMode)))
	return text, nil
}

func (r *repoSession) statusText(ctx context.Context) string {
	sess := r.session
	var b strings.Builder

	fmt.Fprintf(&b, constant.MsgStatusHeader, sess.State)
	if sess.RepoURL != "" {
		fmt.Fprintf(&b, constant.MsgStatusRepo, sess.RepoURL)
	}
	if sess.PendingRepoURL != "" {
		fmt.Fprintf(&b, constant.MsgStatusPending, sess.PendingRepoURL)
	}
	if n := r.admission.Len(); n > 0 {
		fmt.Fprintf(&b, constant.MsgStatusInFlight, n)
	}

	tasks, err := r.svc.store.ListUserTasks(ctx, r.key)
	if err != nil {
		r.svc.logger.Warn("RepoSession", "Failed to list tasks", map[string]interface{}{"user": r.key, "error": err})
	}
	if len(tasks) == 0 {
		b.WriteString(constant.MsgStatusNoTasks)
		return b.String()
	}

	b.WriteString(constant.MsgStatusTasks)
	for i, t := range tasks {
		fmt.Fprintf(&b, constant.MsgStatusTask, i+1, t.RepoURL, t.Status, t.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func (r *repoSession) reply(ctx context.Context, text string) {
	r.svc.reply(ctx, r.key, text)
}
