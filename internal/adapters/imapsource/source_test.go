package imapsource

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalCopyBot/internal/ports"
)

type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

const multipart = "From: ICM Signals <alerts@icm.example>\r\n" +
	"Subject: Gold\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=b1\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>XAUUSD BUY 3650</p>\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"XAUUSD BUY 3650 SL 3642\r\n" +
	"--b1--\r\n"

const htmlOnly = "From: a@b.example\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<b>SELL GOLD</b>\r\n"

func TestExtractText(t *testing.T) {
	body, err := extractText(strings.NewReader(multipart))
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD BUY 3650 SL 3642", strings.TrimSpace(body))

	body, err = extractText(strings.NewReader(htmlOnly))
	require.NoError(t, err)
	assert.Equal(t, "<b>SELL GOLD</b>", strings.TrimSpace(body))
}

func TestTranslate(t *testing.T) {
	s, err := New(Config{Host: "imap.example", User: "bot@example", Password: "x", Logger: mockLogger{}})
	require.NoError(t, err)

	section := &imap.BodySectionName{}
	date := time.Date(2024, 12, 11, 9, 30, 0, 0, time.UTC)
	m := &imap.Message{
		Uid: 314,
		Envelope: &imap.Envelope{
			Date: date,
			From: []*imap.Address{{PersonalName: "ICM Signals", MailboxName: "alerts", HostName: "icm.example"}},
		},
		Body: map[*imap.BodySectionName]imap.Literal{section: strings.NewReader(multipart)},
	}

	msg, ok, err := s.translate(m, section)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "XAUUSD BUY 3650 SL 3642", msg.Text)
	assert.Equal(t, "ICM Signals", msg.Author)
	assert.Equal(t, int64(314), msg.MessageID)
	assert.Equal(t, "imap:bot@example/INBOX", msg.ChannelID)
	assert.True(t, date.Equal(msg.ReceivedAt))
	assert.Nil(t, msg.RepliesToMessageID)

	_, _, err = s.translate(&imap.Message{Uid: 1}, section)
	assert.Error(t, err)
}

func TestSender(t *testing.T) {
	assert.Equal(t, "alerts@icm.example", sender(&imap.Envelope{
		From: []*imap.Address{{MailboxName: "alerts", HostName: "icm.example"}},
	}))
	assert.Equal(t, "", sender(&imap.Envelope{}))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Host: "imap.example", Logger: mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	s, err := New(Config{Host: "h", User: "u", Password: "p", Logger: mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, 993, s.cfg.Port)
	assert.Equal(t, time.Minute, s.cfg.PollInterval)
}
