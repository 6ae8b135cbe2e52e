package domain

import "time"

// InboundMessage is one text message delivered by a message source.
type InboundMessage struct {
	Text               string
	Author             string
	MessageID          int64
	ChannelID          string
	RepliesToMessageID *int64
	ReceivedAt         time.Time
}

// IsReply reports whether the message references an earlier message.
func (m InboundMessage) IsReply() bool {
	return m.RepliesToMessageID != nil
}

// ManualCommand is a position-management instruction addressed to an earlier signal.
type ManualCommand struct {
	Kind     CommandKind
	SignalID int64
	Author   string
}
