package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"shopchat/internal/models"
	"shopchat/internal/service/chat"
)

var (
	ErrDispatcherBusy   = errors.New("dispatcher queue is full")
	ErrQueueFull        = errors.New("too many pending messages for session")
	ErrSessionCancelled = errors.New("session turns cancelled")
	ErrClosed           = errors.New("worker manager closed")
)

// DispatcherConfig sizes the worker pool and its intake queue.
type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// TurnRequest is one user message for a session.
type TurnRequest struct {
	Context   context.Context
	UserID    int64
	SessionID int64
	Text      string
}

// TurnHandler runs a single turn. chat.Coordinator is the production one.
type TurnHandler interface {
	HandleTurn(ctx context.Context, t chat.Turn) (*models.ChatSession, error)
}

// Manager runs turns on the worker pool so that turns of one session never
// overlap while different sessions proceed in parallel.
type Manager struct {
	handler    TurnHandler
	cache      *CachedStore
	dispatcher *Dispatcher

	mu     sync.Mutex
	closed bool
}

// NewManager starts the dispatcher. cache may be nil; when set, Purge drops
// the session from it.
func NewManager(handler TurnHandler, cfg DispatcherConfig, cache *CachedStore) *Manager {
	m := &Manager{handler: handler, cache: cache}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.WorkerIdleTimeout)
	return m
}

// Submit queues the turn and waits for its result.
func (m *Manager) Submit(req TurnRequest) (*models.ChatSession, error) {
	if req.SessionID <= 0 {
		return nil, errors.New("session id required")
	}
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	resultCh := make(chan workerReturn, 1)
	job := Job{Type: Turn, TurnTask: &turnTask{req: req, resultCh: resultCh}}
	if err := m.dispatcher.Submit(job); err != nil {
		return nil, err
	}
	select {
	case ret := <-resultCh:
		return ret.session, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.dispatcher.quit:
		// the job may already have been answered
		select {
		case ret := <-resultCh:
			return ret.session, ret.err
		default:
			return nil, ErrClosed
		}
	}
}

// Purge cancels queued turns of the session and drops its cached state.
func (m *Manager) Purge(sessionID int64) {
	m.dispatcher.CancelSession(sessionID)
	if m.cache != nil {
		m.cache.Invalidate(sessionID)
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.dispatcher.Close()
	if m.cache != nil {
		m.cache.Close()
	}
}

func (m *Manager) handleTurn(task *turnTask) {
	if task == nil {
		return
	}
	req := task.req
	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	var ret workerReturn
	if err := ctx.Err(); err != nil {
		ret.err = err
	} else {
		ret.session, ret.err = m.handler.HandleTurn(ctx, chat.Turn{
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Text:      req.Text,
		})
	}
	if ret.err != nil {
		debugLog("[worker] turn for session %d failed: %v", req.SessionID, ret.err)
	}
	task.resultCh <- ret
}
