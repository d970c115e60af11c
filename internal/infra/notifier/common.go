package notifier

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"pagefeed/internal/resilience/retry"
)

const defaultRetryAfter = 5 * time.Second

// statusError maps a non-2xx webhook response to a retry.StatusError. 429
// and 5xx responses are retried; other 4xx responses are not.
func statusError(service string, resp *http.Response, body []byte) error {
	msg := fmt.Sprintf("%s API error: %s", service, truncate(string(body), 200, "..."))
	herr := &retry.StatusError{Code: resp.StatusCode, Detail: msg}
	if resp.StatusCode == http.StatusTooManyRequests {
		herr.Detail = service + " rate limit exceeded"
		herr.RetryAfter = extractRetryAfter(resp, body)
	}
	return herr
}

// extractRetryAfter reads the retry delay from a JSON retry_after field
// (seconds, as Discord and Slack send it) or the Retry-After header.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}

	if h := resp.Header.Get("Retry-After"); h != "" {
		if seconds, err := strconv.Atoi(h); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return defaultRetryAfter
}

// truncate shortens text to at most maxLength bytes without splitting a
// rune, appending suffix when it cuts.
func truncate(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}

	cut := maxLength - len(suffix)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + suffix
}
