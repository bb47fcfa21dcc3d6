// Package discord implements the notify Adapter for Discord.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/hollandm/switchboard/internal/notify"
)

// severityColors maps event severities to embed colors.
var severityColors = map[string]int{
	notify.SeverityInfo:    0x439fe0,
	notify.SeverityWarning: 0xe0b400,
	notify.SeverityError:   0xd00000,
}

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Adapter posts operator events to a Discord channel as embeds.
type Adapter struct {
	session   session
	channelID string
}

// New creates a Discord adapter from a bot token and channel ID. The gateway
// connection is opened immediately.
func New(token, channelID string) (*Adapter, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("discord: channelID is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	a := &Adapter{session: s, channelID: channelID}
	if err := a.session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open gateway: %w", err)
	}
	return a, nil
}

// Send posts one event as an embed.
func (a *Adapter) Send(_ context.Context, ev notify.Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Body,
		Color:       severityColors[ev.Severity],
	}
	for k, v := range ev.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   k,
			Value:  v,
			Inline: true,
		})
	}
	if _, err := a.session.ChannelMessageSendEmbed(a.channelID, embed); err != nil {
		return fmt.Errorf("discord: send to %s: %w", a.channelID, err)
	}
	return nil
}

// Close shuts down the gateway connection.
func (a *Adapter) Close() error {
	if err := a.session.Close(); err != nil {
		return fmt.Errorf("discord: close: %w", err)
	}
	return nil
}
