package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/textproto"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// SMTP delivers messages through an SMTP relay using gomail.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string

	// Timeout bounds a single delivery attempt. Zero means 30 seconds.
	Timeout time.Duration
}

func (s *SMTP) Send(ctx context.Context, msg Message) (string, error) {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return "", WrapPermanent(fmt.Errorf("invalid recipient %q: %v", msg.To, err))
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.Host)

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-Id", messageID)
	m.SetBody("text/html", msg.HTML)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	// gomail has no context support, so the dial-and-send runs in its own
	// goroutine and loses the race against ctx on timeout.
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return "", WrapTransient(fmt.Errorf("smtp send timed out: %v", ctx.Err()))
	case err := <-errCh:
		if err != nil {
			return "", classify(err)
		}
	}

	return messageID, nil
}

// classify maps SMTP reply codes onto the transport error taxonomy: 5xx
// replies are permanent rejections, everything else (4xx, network faults,
// timeouts) is worth retrying.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 500 {
			return WrapPermanent(err)
		}
		return WrapTransient(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return WrapTransient(err)
	}

	return WrapTransient(err)
}
