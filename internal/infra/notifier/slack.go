package notifier

import (
	"context"
	"strings"
	"time"
)

// SlackConfig configures the Slack incoming-webhook channel.
type SlackConfig struct {
	Enabled bool
	// WebhookURL embeds the channel token and must be kept secret.
	WebhookURL string
	Timeout    time.Duration
}

// SlackNotifier delivers alert digests to a Slack incoming webhook.
type SlackNotifier struct {
	hook *webhook
	now  func() time.Time
}

// NewSlackNotifier creates a SlackNotifier paced at one request per second,
// the incoming-webhook limit.
func NewSlackNotifier(config SlackConfig, opts ...Option) *SlackNotifier {
	return &SlackNotifier{
		hook: newWebhook("slack", config.WebhookURL, config.Timeout, NewRateLimiter(time.Second, 1), opts),
		now:  time.Now,
	}
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block Kit limits.
const (
	slackHeaderMax   = 150
	slackSectionMax  = 3000
	slackMaxSections = 20
)

// CircuitOpen reports whether delivery is currently short-circuited.
func (s *SlackNotifier) CircuitOpen() bool { return s.hook.breaker.Open() }

// Name returns "slack".
func (s *SlackNotifier) Name() string { return "slack" }

// Deliver posts msg as a header block, the digest body in preformatted
// sections, and a timestamp footer.
func (s *SlackNotifier) Deliver(ctx context.Context, msg Message) error {
	return s.hook.send(ctx, buildSlackPayload(msg, s.now()))
}

func buildSlackPayload(msg Message, now time.Time) slackPayload {
	p := slackPayload{
		Text: truncate(msg.Subject, slackHeaderMax, "..."),
		Blocks: []slackBlock{{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: truncate(msg.Subject, slackHeaderMax, "...")},
		}},
	}
	for _, chunk := range chunkLines(msg.Body, slackSectionMax-6, slackMaxSections) {
		p.Blocks = append(p.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "```" + chunk + "```"},
		})
	}
	p.Blocks = append(p.Blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: "pagefeed • " + now.UTC().Format(time.RFC3339)}},
	})
	return p
}

// chunkLines splits body at line boundaries into at most max chunks of at
// most size bytes. Overlong lines are truncated and the last chunk is
// truncated when the body does not fit.
func chunkLines(body string, size, max int) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	for i, line := range lines {
		line = truncate(line, size, "...")
		if cur.Len() > 0 && cur.Len()+1+len(line) > size {
			flush()
		}
		if len(chunks) == max-1 && cur.Len() == 0 {
			rest := strings.Join(lines[i:], "\n")
			return append(chunks, truncate(rest, size, "..."))
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}
