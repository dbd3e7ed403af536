package errclass

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected Kind
	}{
		{"Connection refused", "dial tcp 127.0.0.1:443: connection refused", KindNetwork},
		{"Chromium net error", "net::ERR_NAME_NOT_RESOLVED at https://example.com", KindNetwork},
		{"DNS failure", "lookup shop.example.com: DNS resolution failed", KindNetwork},
		{"Rate limited by status", "page responded with status 429", KindRateLimit},
		{"Rate limited by text", "Too Many Requests, slow down", KindRateLimit},
		{"Throttled", "request throttled by upstream", KindRateLimit},
		{"Server error 503", "server returned 503", KindServerError},
		{"Bad gateway", "upstream sent Bad Gateway", KindServerError},
		{"Captcha page", "CAPTCHA challenge presented", KindBotDetection},
		{"Robot check", "blocked page detected: Robot Check", KindBotDetection},
		{"Cloudflare", "cloudflare challenge loop", KindBotDetection},
		{"Navigation timeout", "Navigation timeout of 15000ms exceeded", KindNavigation},
		{"Generic timeout", "timeout 45000ms exceeded waiting for load state", KindNavigation},
		{"Page crash", "page crashed during evaluation", KindNavigation},
		{"Incomplete data", "incomplete product data: missing title or price", KindParsing},
		{"Selector miss", "selector matched no element", KindParsing},
		{"Not found", "page responded with 404 Not Found", KindClientError},
		{"Forbidden", "403 Forbidden", KindClientError},
		{"Bad request", "bad request: malformed product id", KindClientError},
		{"Unmatched", "something inexplicable happened", KindUnknown},
		{"Empty message", "", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(errors.New(tt.message))
			assert.Equal(t, tt.expected, got, "message: %q", tt.message)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, KindUnknown, Classify(nil))
}

func TestClassifyDeterministic(t *testing.T) {
	err := errors.New("Navigation timeout of 15000ms exceeded")
	first := Classify(err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(err))
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// A message carrying both network and server-error markers classifies as
	// network because network is evaluated first.
	err := errors.New("connection reset by peer after 503 response")
	assert.Equal(t, KindNetwork, Classify(err))
}

func TestStatusCodeDigitBoundary(t *testing.T) {
	// "15000ms" contains "500" as a substring but is not a status code.
	assert.Equal(t, KindNavigation, Classify(errors.New("Navigation timeout of 15000ms exceeded")))
	assert.Equal(t, KindServerError, Classify(errors.New("got 500 from origin")))
}
