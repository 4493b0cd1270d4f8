package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shopchat/internal/models"
)

// ErrSessionNotFound also matches sql.ErrNoRows via errors.Is.
var ErrSessionNotFound = fmt.Errorf("session not found: %w", sql.ErrNoRows)

// CreateSession opens a new session for the user, seeded with the bot greeting.
func (s *Service) CreateSession(ctx context.Context, userID int64) (*models.ChatSession, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (user_id, last_bot_intent, started_at, last_activity) VALUES (?, ?, ?, ?)`,
		userID, string(models.IntentNone), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	greeting := &models.Message{Sender: models.SenderBot, Content: s.greeting, Timestamp: now}
	if _, err := insertMessages(ctx, tx, id, []*models.Message{greeting}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return &models.ChatSession{
		Session: models.Session{
			ID:            id,
			UserID:        userID,
			LastBotIntent: models.IntentNone,
			StartedAt:     now,
			LastActivity:  now,
		},
		Messages: []*models.Message{greeting},
	}, nil
}

// ListSessions returns all sessions for a user ordered by last activity.
func (s *Service) ListSessions(ctx context.Context, userID int64) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, last_bot_intent, started_at, last_activity FROM sessions WHERE user_id = ? ORDER BY last_activity DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		var (
			se     models.Session
			intent string
		)
		if err := rows.Scan(&se.ID, &se.UserID, &intent, &se.StartedAt, &se.LastActivity); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		se.LastBotIntent = models.ParseIntent(intent)
		sessions = append(sessions, se)
	}
	return sessions, rows.Err()
}

// GetSession returns one of the user's sessions with its ordered messages.
// Sessions owned by someone else are reported as not found.
func (s *Service) GetSession(ctx context.Context, userID, sessionID int64) (*models.ChatSession, error) {
	session, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// LoadSession reads a session, its remembered intent and its transcript.
func (s *Service) LoadSession(ctx context.Context, sessionID int64) (*models.ChatSession, error) {
	if sessionID <= 0 {
		return nil, ErrSessionNotFound
	}
	var (
		session models.ChatSession
		intent  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, last_bot_intent, started_at, last_activity FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&session.ID, &session.UserID, &intent, &session.StartedAt, &session.LastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.LastBotIntent = models.ParseIntent(intent)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender, content, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	session.Messages = make([]*models.Message, 0)
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		session.Messages = append(session.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &session, nil
}

// AppendMessages stores msgs in order and bumps the session's last activity.
func (s *Service) AppendMessages(ctx context.Context, sessionID int64, msgs []*models.Message) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		last, err := insertMessages(ctx, tx, sessionID, msgs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_activity = ? WHERE id = ?`, last, sessionID); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
}

// SetLastIntent overwrites the intent remembered for the session.
func (s *Service) SetLastIntent(ctx context.Context, sessionID int64, intent models.Intent) error {
	if !intent.Valid() {
		return fmt.Errorf("unknown intent %q", string(intent))
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_bot_intent = ? WHERE id = ?`, string(intent), sessionID); err != nil {
			return fmt.Errorf("set last intent: %w", err)
		}
		return nil
	})
}

// CommitTurn appends the messages of one turn and records the next intent
// in a single transaction, so a turn is stored completely or not at all.
func (s *Service) CommitTurn(ctx context.Context, sessionID int64, msgs []*models.Message, intent models.Intent) error {
	if !intent.Valid() {
		return fmt.Errorf("unknown intent %q", string(intent))
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		last, err := insertMessages(ctx, tx, sessionID, msgs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET last_bot_intent = ?, last_activity = ? WHERE id = ?`,
			string(intent), last, sessionID,
		); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes a session and all related messages for the user.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID int64) error {
	if sessionID <= 0 {
		return errors.New("invalid session id")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND user_id = ?`, sessionID, userID)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("session rows affected: %w", err)
		}
		if affected == 0 {
			return ErrSessionNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		return nil
	})
}

func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func sessionExists(ctx context.Context, tx *sql.Tx, sessionID int64) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, sessionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("verify session: %w", err)
	}
	if !exists {
		return ErrSessionNotFound
	}
	return nil
}

// insertMessages writes msgs, filling in ids, session ids and missing
// timestamps. It returns the timestamp of the last message written.
func insertMessages(ctx context.Context, tx *sql.Tx, sessionID int64, msgs []*models.Message) (time.Time, error) {
	last := time.Now().UTC()
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Sender != models.SenderUser && m.Sender != models.SenderBot {
			return time.Time{}, fmt.Errorf("unknown sender %q", m.Sender)
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, sender, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, string(m.Sender), m.Content, m.Timestamp,
		)
		if err != nil {
			return time.Time{}, fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return time.Time{}, fmt.Errorf("message id: %w", err)
		}
		m.ID = id
		m.SessionID = sessionID
		last = m.Timestamp
	}
	return last, nil
}
