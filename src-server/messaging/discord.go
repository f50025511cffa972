package messaging

import (
	"context"
	"fmt"

	"confdesk/src-server/model"

	"github.com/bwmarrin/discordgo"
)

const discordMessageLimit = 2000

// DiscordProvider posts announcements to a Discord channel over the REST
// API. No gateway connection is opened.
type DiscordProvider struct {
	session          *discordgo.Session
	defaultChannelID string
}

func NewDiscordProvider(botToken, channelID string) (*DiscordProvider, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("NewDiscordProvider: DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID are required")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("NewDiscordProvider: %w", err)
	}
	return &DiscordProvider{session: session, defaultChannelID: channelID}, nil
}

func (p *DiscordProvider) Name() string           { return "discord" }
func (p *DiscordProvider) Channel() model.Channel { return model.CHANNEL_DISCORD }

func (p *DiscordProvider) Send(ctx context.Context, msg Message) (Result, error) {
	channelID := msg.To
	if channelID == "" {
		channelID = p.defaultChannelID
	}
	content := msg.Body
	if msg.Subject != "" {
		content = "**" + msg.Subject + "**\n" + content
	}
	if len(content) > discordMessageLimit {
		content = content[:discordMessageLimit-3] + "..."
	}
	sent, err := p.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return Result{}, fmt.Errorf("discord: %w", err)
	}
	return Result{ProviderMessageID: sent.ID}, nil
}
