package notifier

import (
	"context"
	"time"
)

// DiscordConfig configures the Discord webhook channel.
type DiscordConfig struct {
	Enabled bool
	// WebhookURL embeds the webhook token and must be kept secret.
	WebhookURL string
	Timeout    time.Duration
}

// DiscordNotifier delivers alert digests to a Discord webhook.
type DiscordNotifier struct {
	hook *webhook
	now  func() time.Time
}

// NewDiscordNotifier creates a DiscordNotifier paced at one request every
// two seconds with a burst of 3, inside Discord's 30 requests per minute.
func NewDiscordNotifier(config DiscordConfig, opts ...Option) *DiscordNotifier {
	return &DiscordNotifier{
		hook: newWebhook("discord", config.WebhookURL, config.Timeout, NewRateLimiter(2*time.Second, 3), opts),
		now:  time.Now,
	}
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Footer      discordFooter `json:"footer"`
	Timestamp   string        `json:"timestamp"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Embed limits.
const (
	discordTitleMax       = 256
	discordDescriptionMax = 4096
)

// discordAlertColor is #ED4245.
const discordAlertColor = 0xED4245

// CircuitOpen reports whether delivery is currently short-circuited.
func (d *DiscordNotifier) CircuitOpen() bool { return d.hook.breaker.Open() }

// Name returns "discord".
func (d *DiscordNotifier) Name() string { return "discord" }

// Deliver posts msg as a single embed. The body is preformatted and cut to
// the embed description limit.
func (d *DiscordNotifier) Deliver(ctx context.Context, msg Message) error {
	return d.hook.send(ctx, buildDiscordPayload(msg, d.now()))
}

func buildDiscordPayload(msg Message, now time.Time) discordPayload {
	return discordPayload{
		Username: "pagefeed",
		Embeds: []discordEmbed{{
			Title:       truncate(msg.Subject, discordTitleMax, "..."),
			Description: "```\n" + truncate(msg.Body, discordDescriptionMax-8, "...") + "\n```",
			Color:       discordAlertColor,
			Footer:      discordFooter{Text: "pagefeed alerts"},
			Timestamp:   now.UTC().Format(time.RFC3339),
		}},
	}
}
