package assistant

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"shopchat/internal/config"
	"shopchat/internal/models"
)

func TestCreateSessionStartsWithGreeting(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "")
	userID := insertTestUser(t, db, "alice")

	session, err := svc.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.LastBotIntent != models.IntentNone {
		t.Fatalf("new session should have no intent, got %q", session.LastBotIntent)
	}
	loaded, err := svc.GetSession(context.Background(), userID, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(loaded.Messages) != 1 {
		t.Fatalf("expected greeting only, got %d messages", len(loaded.Messages))
	}
	greet := loaded.Messages[0]
	if greet.Sender != models.SenderBot || greet.Content != config.DefaultGreeting {
		t.Fatalf("unexpected greeting: %+v", greet)
	}
}

func TestCommitTurnPersistsMessagesAndIntent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "Hi there")
	userID := insertTestUser(t, db, "bob")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	now := time.Now().UTC()
	msgs := []*models.Message{
		{Sender: models.SenderUser, Content: "what does it cost", Timestamp: now},
		{Sender: models.SenderBot, Content: "Our products range...", Timestamp: now.Add(time.Millisecond)},
	}
	if err := svc.CommitTurn(ctx, session.ID, msgs, models.IntentPriceInquiry); err != nil {
		t.Fatalf("commit turn: %v", err)
	}
	if msgs[0].ID == 0 || msgs[1].ID <= msgs[0].ID {
		t.Fatalf("message ids not assigned in order: %d, %d", msgs[0].ID, msgs[1].ID)
	}

	loaded, err := svc.LoadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded.LastBotIntent != models.IntentPriceInquiry {
		t.Fatalf("intent not stored: %q", loaded.LastBotIntent)
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(loaded.Messages))
	}
	wantSenders := []models.Sender{models.SenderBot, models.SenderUser, models.SenderBot}
	for i, m := range loaded.Messages {
		if m.Sender != wantSenders[i] {
			t.Fatalf("message %d sender %s, want %s", i, m.Sender, wantSenders[i])
		}
		if i > 0 && m.Timestamp.Before(loaded.Messages[i-1].Timestamp) {
			t.Fatalf("timestamps not monotonic at %d", i)
		}
	}

	// Overwrite, never merge.
	if err := svc.CommitTurn(ctx, session.ID, []*models.Message{
		{Sender: models.SenderUser, Content: "hello"},
		{Sender: models.SenderBot, Content: "help"},
	}, models.IntentNone); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	loaded, err = svc.LoadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if loaded.LastBotIntent != models.IntentNone || len(loaded.Messages) != 5 {
		t.Fatalf("unexpected state after second turn: intent=%q messages=%d", loaded.LastBotIntent, len(loaded.Messages))
	}
}

func TestCommitTurnRollsBackOnBadMessage(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "")
	userID := insertTestUser(t, db, "carol")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	err = svc.CommitTurn(ctx, session.ID, []*models.Message{
		{Sender: models.SenderUser, Content: "hi"},
		{Sender: "robot", Content: "bad"},
	}, models.IntentPriceInquiry)
	if err == nil {
		t.Fatalf("expected unknown sender to fail")
	}
	loaded, err := svc.LoadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.LastBotIntent != models.IntentNone {
		t.Fatalf("partial turn persisted: messages=%d intent=%q", len(loaded.Messages), loaded.LastBotIntent)
	}
}

func TestAppendMessagesAndSetLastIntent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "")
	userID := insertTestUser(t, db, "dave")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := svc.AppendMessages(ctx, session.ID, []*models.Message{{Sender: models.SenderUser, Content: "yes"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := svc.SetLastIntent(ctx, session.ID, models.IntentAwaitingPriceRange); err != nil {
		t.Fatalf("set intent: %v", err)
	}
	if err := svc.SetLastIntent(ctx, session.ID, models.Intent("bogus")); err == nil {
		t.Fatalf("expected unknown intent to be rejected")
	}
	loaded, err := svc.LoadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LastBotIntent != models.IntentAwaitingPriceRange || len(loaded.Messages) != 2 {
		t.Fatalf("unexpected session: intent=%q messages=%d", loaded.LastBotIntent, len(loaded.Messages))
	}

	if err := svc.AppendMessages(ctx, 9999, nil); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.SetLastIntent(ctx, 9999, models.IntentNone); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionOwnershipListAndDelete(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "")
	ctx := context.Background()
	alice := insertTestUser(t, db, "alice")
	mallory := insertTestUser(t, db, "mallory")

	first, err := svc.CreateSession(ctx, alice)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.CreateSession(ctx, alice)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if err := svc.CommitTurn(ctx, first.ID, []*models.Message{{Sender: models.SenderUser, Content: "later"}}, models.IntentNone); err != nil {
		t.Fatalf("commit: %v", err)
	}

	list, err := svc.ListSessions(ctx, alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("sessions not ordered by last activity: %+v", list)
	}

	if _, err := svc.GetSession(ctx, mallory, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign session should be not found, got %v", err)
	}
	if err := svc.DeleteSession(ctx, mallory, first.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("foreign delete should be not found, got %v", err)
	}
	if err := svc.DeleteSession(ctx, alice, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.LoadSession(ctx, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("deleted session still loads: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, first.ID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("messages of deleted session remain: %d", count)
	}
}
