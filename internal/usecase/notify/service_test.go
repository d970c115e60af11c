package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagefeed/internal/infra/notifier"
	"pagefeed/internal/usecase/monitor"
	"pagefeed/internal/usecase/notify"
)

type fakeDeliverer struct {
	name  string
	err   error
	panic bool

	mu   sync.Mutex
	msgs []notifier.Message
}

func (f *fakeDeliverer) Name() string { return f.name }

func (f *fakeDeliverer) Deliver(_ context.Context, msg notifier.Message) error {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeDeliverer) received() []notifier.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifier.Message(nil), f.msgs...)
}

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func streakAlert() monitor.Alert {
	return monitor.Alert{
		Kind:      monitor.KindFailureStreak,
		JobID:     "job-1",
		SourceURL: "https://example.com/news",
		At:        at,
		Streak:    3,
		Error:     "fetch https://example.com/news: timeout",
		Code:      "timeout",
	}
}

func overrideAlert() monitor.Alert {
	return monitor.Alert{
		Kind:        monitor.KindOverrideUsage,
		JobID:       "job-2",
		At:          at,
		OverrideKey: "example-next",
		Count:       12,
		Window:      24 * time.Hour,
	}
}

func TestDeliverAll_FansOutToEveryChannel(t *testing.T) {
	email := &fakeDeliverer{name: "email"}
	slack := &fakeDeliverer{name: "slack"}
	svc := notify.NewService([]notify.Deliverer{email, slack}, notify.Config{Recipients: []string{"ops@example.com"}}, nil)

	results, err := svc.DeliverAll(context.Background(), []monitor.Alert{streakAlert(), overrideAlert()})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, d := range []*fakeDeliverer{email, slack} {
		msgs := d.received()
		require.Len(t, msgs, 1, d.name)
		assert.Equal(t, "[pagefeed] 2 alerts (1 failing jobs, 1 override warnings)", msgs[0].Subject)
		assert.Equal(t, []string{"ops@example.com"}, msgs[0].Recipients)
	}
}

func TestDeliverAll_NoAlerts(t *testing.T) {
	d := &fakeDeliverer{name: "email"}
	results, err := notify.NewService([]notify.Deliverer{d}, notify.Config{}, nil).DeliverAll(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, d.received())
}

func TestDeliverAll_NoChannels(t *testing.T) {
	_, err := notify.NewService(nil, notify.Config{}, nil).DeliverAll(context.Background(), []monitor.Alert{streakAlert()})
	assert.ErrorIs(t, err, notify.ErrNoChannels)
}

func TestDeliverAll_ChannelFailureDoesNotBlockOthers(t *testing.T) {
	broken := &fakeDeliverer{name: "discord", err: errors.New("webhook gone")}
	panicky := &fakeDeliverer{name: "slack", panic: true}
	email := &fakeDeliverer{name: "email"}
	svc := notify.NewService([]notify.Deliverer{broken, panicky, email}, notify.Config{}, nil)

	results, err := svc.DeliverAll(context.Background(), []monitor.Alert{streakAlert()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: webhook gone")
	assert.Contains(t, err.Error(), "slack: panic: boom")

	require.Len(t, results, 3)
	assert.NoError(t, results[2].Err)
	assert.Len(t, email.received(), 1)
}

func TestService_Without(t *testing.T) {
	email := &fakeDeliverer{name: "email"}
	slack := &fakeDeliverer{name: "slack"}
	svc := notify.NewService([]notify.Deliverer{email, slack}, notify.Config{}, nil)

	assert.Equal(t, []string{"slack"}, svc.Without("email").Channels())
	assert.Equal(t, []string{"email", "slack"}, svc.Channels())

	_, err := svc.Without("email").DeliverAll(context.Background(), []monitor.Alert{streakAlert()})
	require.NoError(t, err)
	assert.Empty(t, email.received())
	assert.Len(t, slack.received(), 1)
}

func TestRender(t *testing.T) {
	msg := notify.Render([]monitor.Alert{streakAlert()}, "[feeds]")
	assert.Equal(t, "[feeds] job job-1 failed 3 times in a row", msg.Subject)
	assert.Contains(t, msg.Body, "failure_streak  job job-1")
	assert.Contains(t, msg.Body, "source:    https://example.com/news")
	assert.Contains(t, msg.Body, "code:      timeout")
	assert.Contains(t, msg.Body, "last ok:   never")

	msg = notify.Render([]monitor.Alert{overrideAlert()}, "")
	assert.Equal(t, "override example-next used 12 times by job job-2", msg.Subject)
	assert.Contains(t, msg.Body, "uses:      12 in the last 24h0m0s")
}

func TestNewDeliverers(t *testing.T) {
	ds := notify.NewDeliverers(notify.ChannelsConfig{
		Email: notifier.SMTPConfig{Enabled: true, Host: "localhost", Port: 25},
		Slack: notifier.SlackConfig{Enabled: false},
		Discord: notifier.DiscordConfig{
			Enabled:    true,
			WebhookURL: "https://discord.example/api/webhooks/1/x",
		},
	})
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"email", "discord"}, names)
}

func TestService_Status(t *testing.T) {
	ds := notify.NewDeliverers(notify.ChannelsConfig{
		Email: notifier.SMTPConfig{Enabled: true, Host: "localhost", Port: 25},
	})
	ds = append(ds, &fakeDeliverer{name: "fake"})
	svc := notify.NewService(ds, notify.Config{}, nil)

	assert.Equal(t, []notify.ChannelStatus{
		{Name: "email", CircuitOpen: false},
		{Name: "fake", CircuitOpen: false},
	}, svc.Status())
}
