// Package transport defines the adapter-neutral types exchanged between the
// messaging backend and the rest of the bot.
package transport

import (
	"context"
	"errors"
)

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is the messaging collaborator. Send errors may be transient
// (network, flood control) or permanent (recipient unreachable); use
// IsPermanent to distinguish.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	SendDocument(ctx context.Context, to ChatTarget, filename string, data []byte, caption string) error
}

// PermanentError marks a delivery failure that will not resolve by retrying
// (bot blocked, account deactivated, chat gone). Adapters wrap such failures
// so callers can prune the recipient.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent delivery failure: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err represents an unrecoverable delivery
// failure for a specific recipient.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
