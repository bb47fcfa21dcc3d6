// Package slack implements the notify Adapter for Slack using the Web API.
package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/hollandm/switchboard/internal/notify"
)

// severityColors maps event severities to attachment sidebar colors.
var severityColors = map[string]string{
	notify.SeverityInfo:    "#439fe0",
	notify.SeverityWarning: "#e0b400",
	notify.SeverityError:   "#d00000",
}

// client abstracts the Slack API methods we use, enabling test mocks.
type client interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Adapter posts operator events to a Slack channel.
type Adapter struct {
	client    client
	channelID string
}

// New creates a Slack adapter from a bot token and channel ID.
func New(token, channelID string) (*Adapter, error) {
	if token == "" {
		return nil, fmt.Errorf("slack: token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("slack: channelID is required")
	}
	return &Adapter{
		client:    slackapi.New(token),
		channelID: channelID,
	}, nil
}

// Send posts one event as an attachment.
func (a *Adapter) Send(ctx context.Context, ev notify.Event) error {
	attachment := slackapi.Attachment{
		Color: severityColors[ev.Severity],
		Title: ev.Title,
		Text:  ev.Body,
	}
	for k, v := range ev.Fields {
		attachment.Fields = append(attachment.Fields, slackapi.AttachmentField{
			Title: k,
			Value: v,
			Short: true,
		})
	}
	_, _, err := a.client.PostMessageContext(ctx, a.channelID,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("slack: post to %s: %w", a.channelID, err)
	}
	return nil
}

// Close is a no-op; the Web API client holds no connection.
func (a *Adapter) Close() error { return nil }
