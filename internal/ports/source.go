package ports

import (
	"context"

	"signalCopyBot/internal/domain"
)

// MessageHandler processes one inbound message.
type MessageHandler func(ctx context.Context, msg domain.InboundMessage)

// MessageSource delivers inbound text messages until ctx is canceled.
// Run returns nil on cancellation and an error wrapping ErrTransport when the stream is lost.
type MessageSource interface {
	Name() string
	Run(ctx context.Context, handle MessageHandler) error
}
