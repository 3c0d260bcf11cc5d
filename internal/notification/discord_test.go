package notification

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "scanhub/pkg/errors"
)

type recordingSession struct {
	channel string
	embeds  []*discordgo.MessageEmbed
}

func (r *recordingSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.channel = channelID
	r.embeds = append(r.embeds, embed)
	return &discordgo.Message{}, nil
}

func (r *recordingSession) Close() error { return nil }

func TestNewNotificationClientRequiresToken(t *testing.T) {
	_, err := NewNotificationClient("", "123")
	assert.ErrorIs(t, err, scanerrors.ErrDiscordNotConfigured)

	_, err = NewNotificationClient("token", "")
	assert.ErrorIs(t, err, scanerrors.ErrDiscordNotConfigured)
}

func TestSendRendersSortedFields(t *testing.T) {
	session := &recordingSession{}
	client := &NotificationClient{sg: session, channelID: "chan"}

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, client.Send(Message{
		Title:     "Scan completed",
		Severity:  "high",
		Fields:    map[string]string{"total": "3", "critical": "1"},
		Timestamp: ts,
	}))

	require.Len(t, session.embeds, 1)
	embed := session.embeds[0]
	assert.Equal(t, "chan", session.channel)
	assert.Equal(t, 0xFF0000, embed.Color)
	assert.Equal(t, "2024-01-02T03:04:05Z", embed.Timestamp)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "critical", embed.Fields[0].Name)
	assert.Equal(t, "total", embed.Fields[1].Name)
}
