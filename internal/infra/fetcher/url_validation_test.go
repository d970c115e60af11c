package fetcher

import (
	"net/netip"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagefeed/internal/domain/entity"
)

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.5.4", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"100.64.1.1", true},
		{"198.18.0.1", true},
		{"192.0.2.10", true},
		{"255.255.255.255", true},
		{"224.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"::ffff:10.0.0.1", true},
		{"64:ff9b::a00:1", true},
		{"2001:db8::1", true},
		{"93.184.216.34", false},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.blocked, isBlockedIP(netip.MustParseAddr(tt.ip)))
		})
	}
}

func TestResolveLocation(t *testing.T) {
	base, _ := url.Parse("https://example.com/news/2024/index.html?page=2")

	tests := []struct {
		location string
		want     string
	}{
		{"https://other.example/feed", "https://other.example/feed"},
		{"//cdn.example.com/a", "https://cdn.example.com/a"},
		{"/root/path", "https://example.com/root/path"},
		{"next.html", "https://example.com/news/2024/next.html"},
		{"../2023/./old.html", "https://example.com/news/2023/old.html"},
		{"?page=3", "https://example.com/news/2024/index.html?page=3"},
		{"/a#frag", "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			got, err := resolveLocation(base, tt.location)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolveLocation_Invalid(t *testing.T) {
	base, _ := url.Parse("https://example.com/")

	for _, loc := range []string{"", "   ", "gopher://example.com/", "mailto:a@example.com"} {
		_, err := resolveLocation(base, loc)
		assert.Equal(t, entity.CodeInvalidRedirectTarget, entity.ErrorCode(err), loc)
	}
}

func TestPolicy_ControlPeer(t *testing.T) {
	p := &policy{blocked: isBlockedIP}

	assert.NoError(t, p.controlPeer("tcp4", "93.184.216.34:443"))
	assert.Equal(t, entity.CodeBlockedPrivateIP, entity.ErrorCode(p.controlPeer("tcp4", "127.0.0.1:80")))
	assert.Equal(t, entity.CodeBlockedPrivateIP, entity.ErrorCode(p.controlPeer("tcp6", "[::1]:80")))

	open := &policy{}
	assert.NoError(t, open.controlPeer("tcp4", "127.0.0.1:80"))
}
