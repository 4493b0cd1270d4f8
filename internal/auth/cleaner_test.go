package auth

import (
	"context"
	"testing"
	"time"
)

func TestPurgeExpiredTokens(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 3)

	shortLived := NewService(db, nil, 10*time.Millisecond)
	expired, err := shortLived.IssueToken(context.Background(), 3)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	longLived := NewService(db, nil, time.Hour)
	valid, err := longLived.IssueToken(context.Background(), 3)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	n, err := longLived.purgeExpiredTokens(context.Background())
	if err != nil {
		t.Fatalf("purge error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired token removed, got %d", n)
	}
	if _, err := longLived.ValidateToken(context.Background(), valid); err != nil {
		t.Fatalf("valid token removed: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, expired).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token still stored")
	}
}

func TestTokenCleanerStopsWithContext(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	insertUser(t, db, 4)

	svc := NewService(db, nil, 5*time.Millisecond)
	if _, err := svc.IssueToken(context.Background(), 4); err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartTokenCleaner(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens`).Scan(&count); err != nil {
			t.Fatalf("query tokens: %v", err)
		}
		if count == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("cleaner never removed the expired token")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
