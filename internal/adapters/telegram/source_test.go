package telegram

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateUpdate(t *testing.T) {
	date := time.Date(2024, 12, 11, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		update     tgbotapi.Update
		wantOK     bool
		wantAuthor string
		wantText   string
		wantReply  int64
	}{
		{
			name: "channel post uses chat title",
			update: tgbotapi.Update{ChannelPost: &tgbotapi.Message{
				MessageID: 501, Text: "XAUUSD BUY 3650", Date: int(date.Unix()),
				Chat: &tgbotapi.Chat{ID: -1001, Title: "ICM Gold"},
			}},
			wantOK: true, wantAuthor: "ICM Gold", wantText: "XAUUSD BUY 3650",
		},
		{
			name: "username wins over first name",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID: 7, Text: "sell gold",
				From: &tgbotapi.User{UserName: "fortune_fx", FirstName: "Fortune"},
				Chat: &tgbotapi.Chat{ID: 42, Title: "group"},
			}},
			wantOK: true, wantAuthor: "fortune_fx", wantText: "sell gold",
		},
		{
			name: "first name without username",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID:      8,
				Text:           "close now",
				From:           &tgbotapi.User{FirstName: "Dweb"},
				Chat:           &tgbotapi.Chat{ID: 42},
				ReplyToMessage: &tgbotapi.Message{MessageID: 5},
			}},
			wantOK: true, wantAuthor: "Dweb", wantText: "close now", wantReply: 5,
		},
		{
			name: "signature when nothing else",
			update: tgbotapi.Update{ChannelPost: &tgbotapi.Message{
				MessageID: 9, Text: "BUY", AuthorSignature: "Admin", Chat: &tgbotapi.Chat{ID: 1},
			}},
			wantOK: true, wantAuthor: "Admin", wantText: "BUY",
		},
		{
			name: "caption used for media posts",
			update: tgbotapi.Update{ChannelPost: &tgbotapi.Message{
				MessageID: 10, Caption: "GOLD SELL", Chat: &tgbotapi.Chat{ID: 1, Title: "t"},
			}},
			wantOK: true, wantAuthor: "t", wantText: "GOLD SELL",
		},
		{
			name: "empty message skipped",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID: 11, Text: "  ", Chat: &tgbotapi.Chat{ID: 1},
			}},
		},
		{
			name:   "edit skipped",
			update: tgbotapi.Update{EditedMessage: &tgbotapi.Message{MessageID: 12, Text: "x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := translateUpdate(tt.update)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantAuthor, msg.Author)
			assert.Equal(t, tt.wantText, msg.Text)
			if tt.wantReply == 0 {
				assert.Nil(t, msg.RepliesToMessageID)
			} else {
				require.NotNil(t, msg.RepliesToMessageID)
				assert.Equal(t, tt.wantReply, *msg.RepliesToMessageID)
			}
		})
	}

	msg, ok := translateUpdate(tests[0].update)
	require.True(t, ok)
	assert.Equal(t, "-1001", msg.ChannelID)
	assert.Equal(t, int64(501), msg.MessageID)
	assert.True(t, date.Equal(msg.ReceivedAt))
}

func TestSource_Accepts(t *testing.T) {
	s := &Source{channels: channelSet([]string{"-1001", "@ICMGold"})}

	byID := tgbotapi.Update{ChannelPost: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -1001}}}
	assert.True(t, s.accepts("-1001", byID))

	byName := tgbotapi.Update{ChannelPost: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -2, UserName: "icmgold"}}}
	assert.True(t, s.accepts("-2", byName))

	other := tgbotapi.Update{ChannelPost: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -3, UserName: "spam"}}}
	assert.False(t, s.accepts("-3", other))

	open := &Source{channels: channelSet(nil)}
	assert.True(t, open.accepts("-3", other))
}
