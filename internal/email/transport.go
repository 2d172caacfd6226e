package email

import (
	"context"
	"errors"
	"fmt"
)

// Message is a fully rendered outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport delivers a rendered message and returns a provider message id.
// Implementations classify failures as transient or permanent via
// WrapTransient / WrapPermanent so the dispatcher can decide between retry
// and abandonment.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ErrTransient and ErrPermanent are the sentinels transports use when
// classifying delivery failures.
var (
	ErrTransient = errors.New("transient transport error")
	ErrPermanent = errors.New("permanent transport error")
)

// WrapTransient annotates err as retryable.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// WrapPermanent annotates err as not retryable.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

// IsPermanent reports whether err was classified permanent. Unclassified
// errors count as transient; a bounded retry is the safer default.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
