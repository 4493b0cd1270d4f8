package worker

import (
	"sync"
	"time"

	"shopchat/internal/models"
)

// sessionState is the in-process copy of recently used sessions.
type sessionState struct {
	mu       sync.RWMutex
	sessions map[int64]*models.ChatSession
}

func newSessionState() *sessionState {
	return &sessionState{sessions: make(map[int64]*models.ChatSession)}
}

// getSession returns a copy callers may append to freely.
func (s *sessionState) getSession(sessionID int64) *models.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.sessions[sessionID])
}

func (s *sessionState) setSession(session *models.ChatSession) {
	if session == nil || session.ID <= 0 {
		return
	}
	s.mu.Lock()
	s.sessions[session.ID] = cloneSession(session)
	s.mu.Unlock()
}

// applyTurn appends msgs and records intent on the cached copy. It returns
// the updated copy, or nil when the session is not cached.
func (s *sessionState) applyTurn(sessionID int64, msgs []*models.Message, intent models.Intent) *models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	session.Messages = append(session.Messages, msgs...)
	session.LastBotIntent = intent
	if n := len(msgs); n > 0 {
		session.LastActivity = msgs[n-1].Timestamp
	} else {
		session.LastActivity = time.Now().UTC()
	}
	return cloneSession(session)
}

func (s *sessionState) purgeCache(sessionID int64) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *sessionState) reset() {
	s.mu.Lock()
	s.sessions = make(map[int64]*models.ChatSession)
	s.mu.Unlock()
}

func cloneSession(session *models.ChatSession) *models.ChatSession {
	if session == nil {
		return nil
	}
	cp := *session
	cp.Messages = append(make([]*models.Message, 0, len(session.Messages)), session.Messages...)
	return &cp
}
