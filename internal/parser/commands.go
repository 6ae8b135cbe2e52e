package parser

import (
	"fmt"
	"strings"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// command phrases, matched case-insensitively anywhere in the message
var commandPhrases = []struct {
	phrase string
	kind   domain.CommandKind
}{
	{"close now", domain.CommandClose},
	{"move to breakeven", domain.CommandBreakEven},
	{"move to break even", domain.CommandBreakEven},
	{"move to be", domain.CommandBreakEven},
	{"take first target now", domain.CommandTakeFirstTarget},
	{"take tp1 now", domain.CommandTakeFirstTarget},
}

// ParseCommand recognises a manual command. It returns nil, nil for ordinary messages and
// an error wrapping ports.ErrValidation for a command that does not reply to a signal.
func ParseCommand(msg domain.InboundMessage) (*domain.ManualCommand, error) {
	text := strings.ToLower(strings.Join(strings.Fields(msg.Text), " "))
	for _, c := range commandPhrases {
		if !containsPhrase(text, c.phrase) {
			continue
		}
		if !msg.IsReply() {
			return nil, fmt.Errorf("%w: command %q without a reply reference", ports.ErrValidation, c.phrase)
		}
		return &domain.ManualCommand{
			Kind:     c.kind,
			SignalID: *msg.RepliesToMessageID,
			Author:   NormalizeAuthor(msg.Author),
		}, nil
	}
	return nil, nil
}

// containsPhrase matches phrase on word boundaries so "move to be" does not match "move to below".
func containsPhrase(text, phrase string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		before := i == 0 || !isWordByte(text[i-1])
		after := end == len(text) || !isWordByte(text[end])
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
