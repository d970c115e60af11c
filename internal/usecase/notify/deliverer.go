// Package notify delivers monitor alerts to operators over the configured
// channels (email, Slack, Discord).
package notify

import (
	"context"
	"errors"

	"pagefeed/internal/infra/notifier"
)

// ErrNoChannels is returned by DeliverAll when alerts are pending but no
// channel is configured.
var ErrNoChannels = errors.New("no notification channels configured")

// Deliverer is one alert delivery channel. Implementations handle their
// own rate limiting, retries and circuit breaking, and must be safe for
// concurrent use.
type Deliverer interface {
	// Name returns the lowercase channel identifier used in logs and metrics.
	Name() string
	// Deliver sends msg, respecting ctx cancellation.
	Deliver(ctx context.Context, msg notifier.Message) error
}

// ChannelsConfig selects the delivery channels.
type ChannelsConfig struct {
	Email   notifier.SMTPConfig
	Slack   notifier.SlackConfig
	Discord notifier.DiscordConfig
}

// NewDeliverers builds a Deliverer for every enabled channel.
func NewDeliverers(cfg ChannelsConfig, opts ...notifier.Option) []Deliverer {
	var ds []Deliverer
	if cfg.Email.Enabled {
		ds = append(ds, notifier.NewEmailNotifier(cfg.Email, opts...))
	}
	if cfg.Slack.Enabled {
		ds = append(ds, notifier.NewSlackNotifier(cfg.Slack, opts...))
	}
	if cfg.Discord.Enabled {
		ds = append(ds, notifier.NewDiscordNotifier(cfg.Discord, opts...))
	}
	return ds
}
