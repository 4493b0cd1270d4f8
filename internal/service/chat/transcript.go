package chat

import (
	"github.com/cloudwego/eino/schema"

	"shopchat/internal/models"
)

// Transcript renders a session as eino messages: user turns become user
// messages and bot turns become assistant messages.
func Transcript(session *models.ChatSession) []*schema.Message {
	if session == nil {
		return []*schema.Message{}
	}
	out := make([]*schema.Message, 0, len(session.Messages))
	for _, m := range session.Messages {
		if m == nil {
			continue
		}
		switch m.Sender {
		case models.SenderUser:
			out = append(out, schema.UserMessage(m.Content))
		case models.SenderBot:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}
