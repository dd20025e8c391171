package hostutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHost(t *testing.T) {
	tests := []struct {
		host string
		ok   bool
	}{
		{"localhost", true},
		{"live.twitch.tv", true},
		{"a.rtmp.youtube.com.", true},
		{"10.0.0.1", true},
		{"::1", true},
		{"[2001:db8::1]", true},
		{"", false},
		{"256.1.1.1", false},
		{"-bad.example.com", false},
		{"bad-.example.com", false},
		{"under_score.example.com", false},
		{"a..b", false},
		{"::ffff:1.2.3.4:x", false},
		{strings.Repeat("a", 64) + ".com", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			err := ValidateHost(tt.host)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
