// Package notify delivers verification and password reset tokens to account
// holders. Delivery is out of band: the engine never returns these tokens to
// the caller of Register or RequestPasswordReset.
package notify

import (
	"context"
	"log"
)

// Notifier hands a one-time token to the delivery channel for email.
// Implementations must not log the token.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogNotifier records that a message would have been sent. Useful in
// development where no mail transport is configured.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) logger() *log.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return log.Default()
}

func (n LogNotifier) SendVerification(_ context.Context, email, _ string) error {
	n.logger().Printf("authcore: verification message queued for %s", email)
	return nil
}

func (n LogNotifier) SendPasswordReset(_ context.Context, email, _ string) error {
	n.logger().Printf("authcore: password reset message queued for %s", email)
	return nil
}

// Func adapts a single function to Notifier. The kind argument is
// "verification" or "password_reset".
type Func func(ctx context.Context, kind, email, token string) error

func (f Func) SendVerification(ctx context.Context, email, token string) error {
	return f(ctx, KindVerification, email, token)
}

func (f Func) SendPasswordReset(ctx context.Context, email, token string) error {
	return f(ctx, KindPasswordReset, email, token)
}

// Message kinds.
const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)
