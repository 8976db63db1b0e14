package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"repoinsight/internal/pkg/logger"
)

var ErrClosed = errors.New("session manager closed")

// Handler owns the state of one session. Handle is only ever called from
// the session's own goroutine, one event at a time.
type Handler[E any] interface {
	Handle(ctx context.Context, ev E)
	// Busy reports background work (running jobs) that must keep the
	// session alive even when its mailbox is empty.
	Busy() bool
	Close()
}

// Factory builds the handler for a session key on first use.
type Factory[E any] func(key string) Handler[E]

type Options struct {
	MailboxSize int
	IdleTTL     time.Duration // 0 disables eviction
}

type actor[E any] struct {
	key     string
	mailbox chan E
	quit    chan struct{}
	handler Handler[E]

	// guarded by Manager.mu
	pending    int
	lastActive time.Time
}

// Manager is a registry of session actors: one goroutine and mailbox per
// key. Events for one key are handled in arrival order, events for
// different keys run in parallel.
type Manager[E any] struct {
	mu      sync.Mutex
	actors  map[string]*actor[E]
	closed  bool
	factory Factory[E]
	opts    Options
	logger  logger.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewManager[E any](factory Factory[E], opts Options, log logger.ILogger) *Manager[E] {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager[E]{
		actors:  make(map[string]*actor[E]),
		factory: factory,
		opts:    opts,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}

	if opts.IdleTTL > 0 {
		m.wg.Add(1)
		go m.reap()
	}
	return m
}

// Dispatch queues ev for the session identified by key, creating the
// session actor if needed. It blocks while the mailbox is full.
func (m *Manager[E]) Dispatch(ctx context.Context, key string, ev E) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	a, ok := m.actors[key]
	if !ok {
		a = m.spawn(key)
	}
	// counted before the send so the reaper never evicts an actor with a
	// message on its way
	a.pending++
	m.mu.Unlock()

	select {
	case a.mailbox <- ev:
		return nil
	case <-a.quit:
		m.done(a)
		return ErrClosed
	case <-ctx.Done():
		m.done(a)
		return ctx.Err()
	}
}

// Len returns the number of live session actors.
func (m *Manager[E]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actors)
}

// Close stops accepting events, lets every actor drain its mailbox and
// waits for them to finish.
func (m *Manager[E]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for key, a := range m.actors {
		close(a.quit)
		delete(m.actors, key)
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("Session", "Session manager stopped", nil)
}

// spawn must be called with m.mu held.
func (m *Manager[E]) spawn(key string) *actor[E] {
	a := &actor[E]{
		key:        key,
		mailbox:    make(chan E, m.opts.MailboxSize),
		quit:       make(chan struct{}),
		handler:    m.factory(key),
		lastActive: m.now(),
	}
	m.actors[key] = a

	m.wg.Add(1)
	go m.run(a)

	m.logger.Debug("Session", "Session actor started", map[string]interface{}{"session": key})
	return a
}

func (m *Manager[E]) run(a *actor[E]) {
	defer m.wg.Done()
	defer a.handler.Close()

	for {
		select {
		case ev := <-a.mailbox:
			m.handle(a, ev)
		case <-a.quit:
			for {
				select {
				case ev := <-a.mailbox:
					m.handle(a, ev)
				default:
					m.logger.Debug("Session", "Session actor stopped", map[string]interface{}{"session": a.key})
					return
				}
			}
		}
	}
}

func (m *Manager[E]) handle(a *actor[E], ev E) {
	defer m.done(a)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Session", "Session handler panicked", map[string]interface{}{
				"session": a.key,
				"panic":   r,
			})
		}
	}()
	a.handler.Handle(m.ctx, ev)
}

func (m *Manager[E]) done(a *actor[E]) {
	m.mu.Lock()
	a.pending--
	a.lastActive = m.now()
	m.mu.Unlock()
}

func (m *Manager[E]) reap() {
	defer m.wg.Done()

	interval := m.opts.IdleTTL / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager[E]) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, a := range m.actors {
		if a.pending > 0 || a.handler.Busy() {
			continue
		}
		if now.Sub(a.lastActive) < m.opts.IdleTTL {
			continue
		}
		close(a.quit)
		delete(m.actors, key)
		m.logger.Debug("Session", "Idle session evicted", map[string]interface{}{"session": key})
	}
}
