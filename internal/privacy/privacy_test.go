package privacy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrubMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:     "mysql dsn credentials",
			input:    "dial night:hunter2@tcp(192.168.1.20:3306)/nightsound failed",
			contains: []string{"[REDACTED]@tcp(private-ip)", "/nightsound failed"},
			absent:   []string{"hunter2", "night:", "192.168.1.20"},
		},
		{
			name:     "url",
			input:    "GET https://example.com/api/v1/snippets/12 failed",
			contains: []string{"url-", "failed"},
			absent:   []string{"example.com"},
		},
		{
			name:     "home path",
			input:    "open /home/alice/snippets/x.wav: permission denied",
			contains: []string{"/home/[USER]/snippets/x.wav"},
			absent:   []string{"alice"},
		},
		{
			name:     "plain message",
			input:    "session 4 already closed",
			contains: []string{"session 4 already closed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScrubMessage(tt.input)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func TestAnonymizeURLIsStable(t *testing.T) {
	a := AnonymizeURL("http://10.0.0.5:8080/api/v1/sessions")
	b := AnonymizeURL("http://10.0.0.5:8080/api/v1/sessions")
	c := AnonymizeURL("http://10.0.0.5:8081/api/v1/sessions")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCategorizeHost(t *testing.T) {
	assert.Equal(t, "localhost", categorizeHost("127.0.0.1"))
	assert.Equal(t, "private-ip", categorizeHost("10.1.2.3"))
	assert.Equal(t, "public-ip", categorizeHost("8.8.8.8"))
	assert.Equal(t, "domain-org", categorizeHost("db.example.org"))
	assert.Equal(t, "unknown-host", categorizeHost("db"))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil))

	base := errors.New("connect night:pw@tcp(db:3306)/x")
	wrapped := WrapError(base)
	require.Error(t, wrapped)
	assert.NotContains(t, wrapped.Error(), "pw")
	assert.ErrorIs(t, wrapped, base)
}
