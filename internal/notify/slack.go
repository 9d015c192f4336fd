package notify

import (
	"context"
	"errors"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API method we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackSink posts notifications to one Slack channel.
type SlackSink struct {
	client    slackClient
	channelID string
}

type SlackOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

func NewSlackSink(opts SlackOpts) (*SlackSink, error) {
	if opts.ChannelID == "" {
		return nil, errors.New("slack: channel id is required")
	}
	client := opts.Client
	if client == nil {
		if opts.BotToken == "" {
			return nil, errors.New("slack: bot token is required")
		}
		client = slackapi.New(opts.BotToken)
	}
	return &SlackSink{client: client, channelID: opts.ChannelID}, nil
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Deliver(ctx context.Context, m Message) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channelID,
		slackapi.MsgOptionText(m.Text(), false),
		slackapi.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}
