package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAnnouncer posts community-wide notices to a Discord channel webhook.
// Per-user notices are never posted.
type DiscordAnnouncer struct {
	session   webhookExecutor
	webhookID string
	token     string
	tr        Translator
	locale    string
}

// NewDiscordAnnouncer constructs an announcer. Webhooks need no bot token.
func NewDiscordAnnouncer(webhookID, token, locale string, tr Translator) (*DiscordAnnouncer, error) {
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordAnnouncer{
		session:   session,
		webhookID: webhookID,
		token:     token,
		tr:        tr,
		locale:    locale,
	}, nil
}

func (d *DiscordAnnouncer) Name() string { return "discord" }

func (d *DiscordAnnouncer) Deliver(ctx context.Context, n Notice) error {
	if !n.Broadcast() {
		return nil
	}
	if n.Locale == "" {
		n.Locale = d.locale
	}
	subject, body := Render(d.tr, n)
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       subject,
			Description: body,
			Color:       0x2ECC71,
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
