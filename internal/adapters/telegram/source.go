package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// Config holds the Telegram listener settings.
type Config struct {
	Token string
	// Channels restricts delivery to these chat IDs or usernames; empty accepts every chat.
	Channels []string
	// PollTimeoutSeconds is the long-polling timeout of getUpdates.
	PollTimeoutSeconds int
	Logger             ports.Logger
}

// Source delivers channel posts and chat messages received by a bot.
type Source struct {
	bot      *tgbotapi.BotAPI
	channels map[string]struct{}
	timeout  int
	logger   ports.Logger
}

// New connects to the Bot API and validates the token.
func New(cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for telegram source")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: telegram bot token is required", ports.ErrConfigurationError)
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect failed: %w: %w", ports.ErrAuthenticationFailed, err)
	}
	timeout := cfg.PollTimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	cfg.Logger.Info(context.Background(), "Telegram bot authorized", map[string]interface{}{
		"bot":      bot.Self.UserName,
		"channels": cfg.Channels,
	})
	return &Source{
		bot:      bot,
		channels: channelSet(cfg.Channels),
		timeout:  timeout,
		logger:   cfg.Logger,
	}, nil
}

// Name identifies the source in logs.
func (s *Source) Name() string { return "telegram" }

// Run long-polls updates until ctx is canceled.
func (s *Source) Run(ctx context.Context, handle ports.MessageHandler) error {
	op := "TelegramRun"
	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.timeout
	updates := s.bot.GetUpdatesChan(u)
	defer s.bot.StopReceivingUpdates()

	s.logger.Info(ctx, op+": Listening for messages")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, op+": Stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("%s failed: %w: update channel closed", op, ports.ErrTransport)
			}
			msg, ok := translateUpdate(update)
			if !ok || !s.accepts(msg.ChannelID, update) {
				continue
			}
			handle(ctx, msg)
		}
	}
}

func (s *Source) accepts(chatID string, update tgbotapi.Update) bool {
	if len(s.channels) == 0 {
		return true
	}
	if _, ok := s.channels[chatID]; ok {
		return true
	}
	if chat := updateMessage(update); chat != nil && chat.Chat != nil && chat.Chat.UserName != "" {
		_, ok := s.channels[strings.ToLower(chat.Chat.UserName)]
		return ok
	}
	return false
}

func channelSet(channels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		c = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "@"))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

func updateMessage(update tgbotapi.Update) *tgbotapi.Message {
	switch {
	case update.ChannelPost != nil:
		return update.ChannelPost
	case update.Message != nil:
		return update.Message
	}
	return nil
}

// translateUpdate converts a Bot API update; edits and empty messages are skipped.
func translateUpdate(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := updateMessage(update)
	if m == nil {
		return domain.InboundMessage{}, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) == "" {
		return domain.InboundMessage{}, false
	}

	msg := domain.InboundMessage{
		Text:       text,
		Author:     author(m),
		MessageID:  int64(m.MessageID),
		ReceivedAt: m.Time().UTC(),
	}
	if m.Chat != nil {
		msg.ChannelID = strconv.FormatInt(m.Chat.ID, 10)
	}
	if m.ReplyToMessage != nil {
		id := int64(m.ReplyToMessage.MessageID)
		msg.RepliesToMessageID = &id
	}
	return msg, true
}

// author resolves the sender: username, first name, chat title, then the post signature.
func author(m *tgbotapi.Message) string {
	if m.From != nil {
		if m.From.UserName != "" {
			return m.From.UserName
		}
		if m.From.FirstName != "" {
			return m.From.FirstName
		}
	}
	if m.Chat != nil && m.Chat.Title != "" {
		return m.Chat.Title
	}
	return m.AuthorSignature
}
