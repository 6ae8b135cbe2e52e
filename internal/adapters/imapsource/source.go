package imapsource

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/ports"
)

// Config holds the mailbox connection settings.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Mailbox      string        // default INBOX
	PollInterval time.Duration // default 1 minute
	Lookback     time.Duration // default 24 hours
	Logger       ports.Logger
}

// Source polls a mailbox for unseen mail and delivers each body as a message.
type Source struct {
	cfg    Config
	logger ports.Logger
}

// New validates the mailbox settings.
func New(cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for imap source")
	}
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: imap host, user and password are required", ports.ErrConfigurationError)
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	return &Source{cfg: cfg, logger: cfg.Logger}, nil
}

// Name identifies the source in logs.
func (s *Source) Name() string { return "imap" }

// Run checks the mailbox immediately and then on every poll tick until ctx is canceled.
// Individual poll failures are logged; the source keeps polling.
func (s *Source) Run(ctx context.Context, handle ports.MessageHandler) error {
	op := "ImapRun"
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, op+": Polling mailbox", map[string]interface{}{
		"user":     s.cfg.User,
		"mailbox":  s.cfg.Mailbox,
		"interval": s.cfg.PollInterval.String(),
	})
	for {
		if err := s.poll(ctx, handle); err != nil {
			s.logger.Error(ctx, err, op+": Mailbox check failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, op+": Stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Source) poll(ctx context.Context, handle ports.MessageHandler) error {
	op := "ImapPoll"
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port), nil)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrTransport, err)
	}
	defer c.Logout()

	if err := c.Login(s.cfg.User, s.cfg.Password); err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrAuthenticationFailed, err)
	}
	if _, err := c.Select(s.cfg.Mailbox, false); err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrTransport, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().Add(-s.cfg.Lookback)
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrTransport, err)
	}
	if len(uids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope, imap.FetchUid}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	seen := new(imap.SeqSet)
	var inbound []domain.InboundMessage
	for m := range messages {
		msg, ok, err := s.translate(m, section)
		if err != nil {
			s.logger.Warn(ctx, op+": Skipping unreadable mail", map[string]interface{}{"uid": m.Uid, "error": err.Error()})
			continue
		}
		seen.AddNum(m.Uid)
		if ok {
			inbound = append(inbound, msg)
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrTransport, err)
	}

	// Mark before handling so a crash mid-batch does not redeliver the whole batch.
	if !seen.Empty() {
		flags := []interface{}{imap.SeenFlag}
		if err := c.UidStore(seen, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			s.logger.Warn(ctx, op+": Failed to mark mail as seen", map[string]interface{}{"error": err.Error()})
		}
	}
	for _, msg := range inbound {
		handle(ctx, msg)
	}
	return nil
}

func (s *Source) translate(m *imap.Message, section *imap.BodySectionName) (domain.InboundMessage, bool, error) {
	r := m.GetBody(section)
	if r == nil {
		return domain.InboundMessage{}, false, fmt.Errorf("message has no body")
	}
	body, err := extractText(r)
	if err != nil {
		return domain.InboundMessage{}, false, err
	}
	if strings.TrimSpace(body) == "" {
		return domain.InboundMessage{}, false, nil
	}

	msg := domain.InboundMessage{
		Text:       strings.TrimSpace(body),
		MessageID:  int64(m.Uid),
		ChannelID:  "imap:" + s.cfg.User + "/" + s.cfg.Mailbox,
		ReceivedAt: time.Now().UTC(),
	}
	if m.Envelope != nil {
		msg.Author = sender(m.Envelope)
		if !m.Envelope.Date.IsZero() {
			msg.ReceivedAt = m.Envelope.Date.UTC()
		}
	}
	return msg, true, nil
}

// sender prefers the display name, then the address.
func sender(env *imap.Envelope) string {
	if len(env.From) == 0 {
		return ""
	}
	from := env.From[0]
	if from.PersonalName != "" {
		return from.PersonalName
	}
	return from.Address()
}

// extractText returns the text/plain part of a mail, falling back to the first text/html part.
func extractText(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("parse mail: %w", err)
	}
	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read mail part: %w", err)
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return "", fmt.Errorf("read mail part: %w", err)
		}
		switch {
		case contentType == "text/plain" && plain == "":
			plain = string(b)
		case contentType == "text/html" && html == "":
			html = string(b)
		}
	}
	if plain != "" {
		return plain, nil
	}
	return html, nil
}
