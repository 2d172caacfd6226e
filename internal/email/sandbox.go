package email

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sandboxRetention = 100

// PreviewMessage is a message accepted by the sandbox transport, kept around
// so developers can inspect what would have gone out.
type PreviewMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Sandbox is the transport substituted when no SMTP relay is configured. It
// accepts every message and retains the most recent ones behind a preview
// handle. Retry and failure accounting see the same contract as production.
type Sandbox struct {
	Log *zap.Logger

	mu       sync.Mutex
	messages []PreviewMessage
}

func NewSandbox(log *zap.Logger) *Sandbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sandbox{Log: log}
}

func (s *Sandbox) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", WrapTransient(err)
	}

	pm := PreviewMessage{
		ID:         fmt.Sprintf("sandbox-%s", uuid.NewString()),
		From:       msg.From,
		To:         msg.To,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
		AcceptedAt: time.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, pm)
	if len(s.messages) > sandboxRetention {
		s.messages = s.messages[len(s.messages)-sandboxRetention:]
	}
	s.mu.Unlock()

	s.Log.Info("sandbox transport accepted message",
		zap.String("message_id", pm.ID),
		zap.String("to", pm.To),
		zap.String("subject", pm.Subject),
	)

	return pm.ID, nil
}

// Messages returns the retained messages, newest last.
func (s *Sandbox) Messages() []PreviewMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PreviewMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
