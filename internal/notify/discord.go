package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// session abstracts the discordgo method we use, enabling test mocks.
// *discordgo.Session satisfies it.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink posts notifications to one Discord channel over REST.
type DiscordSink struct {
	sess      session
	channelID string
}

type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session.
	Session session
}

func NewDiscordSink(opts DiscordOpts) (*DiscordSink, error) {
	if opts.ChannelID == "" {
		return nil, errors.New("discord: channel id is required")
	}
	sess := opts.Session
	if sess == nil {
		if opts.BotToken == "" {
			return nil, errors.New("discord: bot token is required")
		}
		dg, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord: create session: %w", err)
		}
		sess = dg
	}
	return &DiscordSink{sess: sess, channelID: opts.ChannelID}, nil
}

func (d *DiscordSink) Name() string { return "discord" }

func (d *DiscordSink) Deliver(ctx context.Context, m Message) error {
	if _, err := d.sess.ChannelMessageSend(d.channelID, m.Text(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}
