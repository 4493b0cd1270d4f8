package models

import "time"

// Session groups the chat messages of one conversation with the bot.
type Session struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	LastBotIntent Intent    `json:"last_bot_intent"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// ChatSession is a session together with its full ordered transcript.
type ChatSession struct {
	Session
	Messages []*Message `json:"messages"`
}
