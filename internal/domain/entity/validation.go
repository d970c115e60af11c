package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

// ValidateURL validates the format of a source URL.
// It checks that the URL is well-formed, uses HTTP/HTTPS scheme, has a host
// and carries no credentials. Network reachability and address policy are the
// fetcher's concern.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &InputError{Field: "url", Message: "URL is required"}
	}

	// DoS protection: enforce maximum URL length
	if len(rawURL) > maxURLLength {
		return &InputError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &InputError{Field: "url", Message: "URL cannot be parsed"}
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "http" && scheme != "https" {
		return &InputError{Field: "url", Message: "URL must use http or https scheme"}
	}

	if parsedURL.Hostname() == "" {
		return &InputError{Field: "url", Message: "URL must have a valid host"}
	}

	if parsedURL.User != nil {
		return &InputError{Field: "url", Message: "URL must not carry credentials"}
	}

	return nil
}

// NormalizeKeywords trims, lower-cases and de-duplicates keyword filters.
func NormalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, kw := range strings.Split(raw, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, dup := seen[kw]; dup {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}
