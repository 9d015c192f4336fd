package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/config"
	"trackline/internal/domain"
)

func TestOpenBootstrapAndResolve(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	a, err := Open(ctx, t.TempDir(), Options{Config: config.Default(), LogOutput: &logs})
	require.NoError(t, err)
	defer a.Close(ctx)

	u, err := a.Engine.Bootstrap(ctx, "root")
	require.NoError(t, err)

	byName, err := ResolvePrincipal(ctx, a.Engine.Repo, "root")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.UserID)
	assert.True(t, byName.HasRole(domain.RoleAdmin))

	byID, err := ResolvePrincipal(ctx, a.Engine.Repo, u.ID)
	require.NoError(t, err)
	assert.Equal(t, byName, byID)

	_, err = ResolvePrincipal(ctx, a.Engine.Repo, "nobody")
	assert.Error(t, err)
	_, err = ResolvePrincipal(ctx, a.Engine.Repo, "")
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)
	l.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = NewLogger(config.LogConfig{Level: "chatty"}, &buf)
	assert.Error(t, err)
}

func TestSinksFromConfig(t *testing.T) {
	sinks, err := Sinks(config.NotificationsConfig{})
	require.NoError(t, err)
	assert.Empty(t, sinks)

	sinks, err = Sinks(config.NotificationsConfig{
		Slack:   config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C1"},
		Discord: config.DiscordConfig{BotToken: "abc", ChannelID: "D1"},
	})
	require.NoError(t, err)
	require.Len(t, sinks, 2)
	assert.Equal(t, "slack", sinks[0].Name())
	assert.Equal(t, "discord", sinks[1].Name())
}
