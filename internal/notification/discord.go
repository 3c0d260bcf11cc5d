package notification

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"

	scanerrors "scanhub/pkg/errors"
)

type Message struct {
	Title       string
	Description string
	Severity    string
	Fields      map[string]string
	Timestamp   time.Time
}

// Sender delivers messages to a chat channel.
type Sender interface {
	Send(msg Message) error
	Close() error
}

// channelSender is the part of a discord session the client uses.
type channelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Close() error
}

type NotificationClient struct {
	sg        channelSender
	channelID string
}

// NewNotificationClient opens a bot session. It returns
// ErrDiscordNotConfigured when token is empty.
func NewNotificationClient(token, channelID string) (*NotificationClient, error) {
	if token == "" {
		return nil, scanerrors.ErrDiscordNotConfigured
	}
	if channelID == "" {
		return nil, fmt.Errorf("%w: channel id not set", scanerrors.ErrDiscordNotConfigured)
	}

	sg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	if err := sg.Open(); err != nil {
		return nil, err
	}

	return &NotificationClient{sg: sg, channelID: channelID}, nil
}

func SeverityColor(severity string) int {
	switch severity {
	case "critical":
		return 0x8B0000
	case "high":
		return 0xFF0000
	case "medium":
		return 0xFF8C00
	case "low":
		return 0xFFD700
	case "info":
		return 0x00BFFF
	default:
		return 0x808080
	}
}

// Embed renders msg; fields are ordered by name.
func Embed(msg Message) *discordgo.MessageEmbed {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       SeverityColor(msg.Severity),
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
	}

	if len(msg.Fields) > 0 {
		names := make([]string, 0, len(msg.Fields))
		for name := range msg.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		fields := make([]*discordgo.MessageEmbedField, 0, len(names))
		for _, name := range names {
			fields = append(fields, &discordgo.MessageEmbedField{
				Name:   name,
				Value:  msg.Fields[name],
				Inline: true,
			})
		}
		embed.Fields = fields
	}
	return embed
}

func (c *NotificationClient) Send(msg Message) error {
	if c.sg == nil {
		return scanerrors.ErrDiscordNotConfigured
	}

	_, err := c.sg.ChannelMessageSendEmbed(c.channelID, Embed(msg))
	return err
}

func (c *NotificationClient) Close() error {
	if c.sg != nil {
		return c.sg.Close()
	}
	return nil
}
