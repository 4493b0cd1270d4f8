// Package chat runs one conversational turn: load the session, classify the
// user's text against the remembered intent, then store both messages and
// the next intent together.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/sirupsen/logrus"

	"shopchat/internal/models"
	"shopchat/internal/service/assistant"
	"shopchat/internal/service/bot"
)

var ErrEmptyMessage = errors.New("message is required")

// SessionStore is the persistence a turn needs.
type SessionStore interface {
	LoadSession(ctx context.Context, sessionID int64) (*models.ChatSession, error)
	AppendMessages(ctx context.Context, sessionID int64, msgs []*models.Message) error
	SetLastIntent(ctx context.Context, sessionID int64, intent models.Intent) error
}

// TurnCommitter is implemented by stores that can write a whole turn in one
// transaction. The coordinator prefers it when available.
type TurnCommitter interface {
	CommitTurn(ctx context.Context, sessionID int64, msgs []*models.Message, intent models.Intent) error
}

type IntentClassifier interface {
	Classify(ctx context.Context, message string, prior models.Intent) (bot.Reply, error)
}

// Turn is one user message addressed to a session. A zero UserID skips the
// ownership check.
type Turn struct {
	SessionID int64
	UserID    int64
	Text      string
}

type turnState struct {
	turn    Turn
	session *models.ChatSession
	reply   bot.Reply
	msgs    []*models.Message
	err     error
}

// Coordinator executes turns through a compiled load, classify, commit chain.
type Coordinator struct {
	store      SessionStore
	classifier IntentClassifier
	runner     compose.Runnable[*turnState, *turnState]
	now        func() time.Time
}

func NewCoordinator(ctx context.Context, store SessionStore, classifier IntentClassifier) (*Coordinator, error) {
	if store == nil || classifier == nil {
		return nil, errors.New("chat: store and classifier are required")
	}
	c := &Coordinator{
		store:      store,
		classifier: classifier,
		now:        func() time.Time { return time.Now().UTC() },
	}
	chain := compose.NewChain[*turnState, *turnState]()
	chain.
		AppendLambda(compose.InvokableLambda(c.load)).
		AppendLambda(compose.InvokableLambda(c.classify)).
		AppendLambda(compose.InvokableLambda(c.commit))
	runner, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile turn chain: %w", err)
	}
	c.runner = runner
	return c, nil
}

// HandleTurn appends the user message, answers it and records the next
// intent. It returns the session with its full updated transcript. When the
// turn fails nothing is stored.
func (c *Coordinator) HandleTurn(ctx context.Context, t Turn) (*models.ChatSession, error) {
	t.Text = strings.TrimSpace(t.Text)
	if t.Text == "" {
		return nil, ErrEmptyMessage
	}
	out, err := c.runner.Invoke(ctx, &turnState{turn: t})
	if err != nil {
		return nil, fmt.Errorf("run turn: %w", err)
	}
	if out.err != nil {
		return nil, out.err
	}
	return out.session, nil
}

func (c *Coordinator) load(ctx context.Context, st *turnState) (*turnState, error) {
	session, err := c.store.LoadSession(ctx, st.turn.SessionID)
	if err != nil {
		st.err = err
		return st, nil
	}
	if st.turn.UserID != 0 && session.UserID != st.turn.UserID {
		st.err = assistant.ErrSessionNotFound
		return st, nil
	}
	st.session = session
	return st, nil
}

func (c *Coordinator) classify(ctx context.Context, st *turnState) (*turnState, error) {
	if st.err != nil {
		return st, nil
	}
	prior := st.session.LastBotIntent
	reply, err := c.classifier.Classify(ctx, st.turn.Text, prior)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": st.session.ID,
			"prior":      prior.String(),
		}).Warn("classify turn")
		st.err = fmt.Errorf("classify: %w", err)
		return st, nil
	}
	st.reply = reply

	// Timestamps never go backwards within a session even if the clock does.
	ts := c.now()
	if n := len(st.session.Messages); n > 0 {
		if last := st.session.Messages[n-1].Timestamp; ts.Before(last) {
			ts = last
		}
	}
	st.msgs = []*models.Message{
		{SessionID: st.session.ID, Sender: models.SenderUser, Content: st.turn.Text, Timestamp: ts},
		{SessionID: st.session.ID, Sender: models.SenderBot, Content: reply.Text, Timestamp: ts},
	}
	return st, nil
}

func (c *Coordinator) commit(ctx context.Context, st *turnState) (*turnState, error) {
	if st.err != nil {
		return st, nil
	}
	id := st.session.ID
	if tc, ok := c.store.(TurnCommitter); ok {
		if err := tc.CommitTurn(ctx, id, st.msgs, st.reply.Next); err != nil {
			st.err = fmt.Errorf("commit turn: %w", err)
			return st, nil
		}
	} else {
		if err := c.store.AppendMessages(ctx, id, st.msgs); err != nil {
			st.err = fmt.Errorf("append messages: %w", err)
			return st, nil
		}
		if err := c.store.SetLastIntent(ctx, id, st.reply.Next); err != nil {
			st.err = fmt.Errorf("set last intent: %w", err)
			return st, nil
		}
	}

	st.session.Messages = append(st.session.Messages, st.msgs...)
	st.session.LastBotIntent = st.reply.Next
	st.session.LastActivity = st.msgs[len(st.msgs)-1].Timestamp
	logrus.WithFields(logrus.Fields{
		"session_id": id,
		"rule":       st.reply.Rule,
		"next":       st.reply.Next.String(),
	}).Debug("turn committed")
	return st, nil
}
