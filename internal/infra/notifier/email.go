package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pagefeed/internal/resilience/circuitbreaker"
	"pagefeed/internal/resilience/retry"
)

// ErrNoRecipients is returned when an email has nowhere to go.
var ErrNoRecipients = errors.New("no email recipients")

// SMTPConfig contains configuration for email notifications.
type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// To is the default recipient list.
	To      []string
	Timeout time.Duration
	// StartTLS upgrades the connection when the server offers it.
	StartTLS bool
}

// EmailNotifier delivers alerts by email over SMTP.
type EmailNotifier struct {
	config  SMTPConfig
	breaker *circuitbreaker.Breaker
	retry   retry.Policy
	now     func() time.Time
}

// NewEmailNotifier creates an EmailNotifier. Only WithRetry applies.
func NewEmailNotifier(config SMTPConfig, opts ...Option) *EmailNotifier {
	o := applyOptions(opts)
	n := &EmailNotifier{
		config:  config,
		breaker: circuitbreaker.New(circuitbreaker.EmailPolicy()),
		retry:   retry.EmailPolicy(),
		now:     time.Now,
	}
	if o.retry != nil {
		n.retry = *o.retry
	}
	if n.config.Timeout <= 0 {
		n.config.Timeout = 30 * time.Second
	}
	return n
}

// CircuitOpen reports whether delivery is currently short-circuited.
func (n *EmailNotifier) CircuitOpen() bool { return n.breaker.Open() }

// Name returns "email".
func (n *EmailNotifier) Name() string { return "email" }

// Deliver sends msg as a plain-text UTF-8 email to msg.Recipients, or to
// the configured recipients when msg has none.
func (n *EmailNotifier) Deliver(ctx context.Context, msg Message) error {
	to := msg.Recipients
	if len(to) == 0 {
		to = n.config.To
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}

	data := n.compose(msg, to)
	err := n.breaker.Do(func() error {
		return retry.Do(ctx, n.retry, func() error {
			return n.send(ctx, to, data)
		})
	})
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	slog.Info("email delivered",
		slog.String("channel", "email"),
		slog.Int("recipients", len(to)))
	return nil
}

func (n *EmailNotifier) compose(msg Message, to []string) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	domain := "localhost"
	if at := strings.LastIndex(n.config.From, "@"); at >= 0 {
		domain = strings.Trim(n.config.From[at+1:], "> ")
	}

	header("From", n.config.From)
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", n.now().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.New().String(), domain))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	for _, line := range strings.Split(body, "\n") {
		// Dot-stuffing is handled by the smtp data writer.
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.Bytes()
}

func (n *EmailNotifier) send(ctx context.Context, to []string, data []byte) error {
	addr := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.Port))
	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if n.config.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: n.config.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if n.config.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(n.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data end: %w", err)
	}
	return c.Quit()
}
