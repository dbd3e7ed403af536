// Package errclass maps scraping failures onto a fixed taxonomy that drives
// retry policy and attempt analytics.
package errclass

import "strings"

// Kind is the classification bucket assigned to a failure.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindRateLimit    Kind = "rate_limit"
	KindServerError  Kind = "server_error"
	KindBotDetection Kind = "bot_detection"
	KindNavigation   Kind = "navigation"
	KindParsing      Kind = "parsing"
	KindClientError  Kind = "client_error"
	KindUnknown      Kind = "unknown"
)

// Classification priority. The first kind whose keyword set matches wins, so a
// message mentioning both a connection reset and a 503 still counts as network.
var order = []Kind{
	KindNetwork,
	KindRateLimit,
	KindServerError,
	KindBotDetection,
	KindNavigation,
	KindParsing,
	KindClientError,
}

type matcher struct {
	substrings []string
	// HTTP status codes are matched on digit boundaries so that "15000ms"
	// never counts as a 500.
	codes []string
}

var matchers = map[Kind]matcher{
	KindNetwork: {
		substrings: []string{
			"net::err_",
			"econnrefused",
			"econnreset",
			"enotfound",
			"etimedout",
			"connection refused",
			"connection reset",
			"dns",
			"socket hang up",
			"tls handshake",
		},
	},
	KindRateLimit: {
		substrings: []string{"too many requests", "rate limit", "throttl"},
		codes:      []string{"429"},
	},
	KindServerError: {
		substrings: []string{
			"internal server error",
			"bad gateway",
			"service unavailable",
			"gateway timeout",
		},
		codes: []string{"500", "502", "503", "504"},
	},
	KindBotDetection: {
		substrings: []string{
			"captcha",
			"robot check",
			"access denied",
			"bot detect",
			"blocked",
			"cloudflare",
			"are you a human",
			"unusual traffic",
			"automated access",
		},
	},
	KindNavigation: {
		substrings: []string{
			"navigation timeout",
			"navigation failed",
			"timeout",
			"page crashed",
			"page closed",
			"target closed",
			"frame was detached",
		},
	},
	KindParsing: {
		substrings: []string{
			"incomplete product data",
			"selector",
			"no element",
			"element not found",
			"parse",
			"extraction failed",
		},
	},
	KindClientError: {
		substrings: []string{
			"not found",
			"unauthorized",
			"forbidden",
			"bad request",
			"invalid url",
		},
		codes: []string{"400", "401", "403", "404"},
	},
}

// Classify maps err onto its Kind. Total and deterministic: the same message
// always yields the same kind, and unmatched input is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	msg := strings.ToLower(err.Error())
	for _, kind := range order {
		if matchers[kind].matches(msg) {
			return kind
		}
	}

	return KindUnknown
}

func (m matcher) matches(msg string) bool {
	for _, s := range m.substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	for _, code := range m.codes {
		if containsCode(msg, code) {
			return true
		}
	}
	return false
}

func containsCode(msg, code string) bool {
	for i := 0; ; {
		j := strings.Index(msg[i:], code)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(code)
		leftOK := start == 0 || !isDigit(msg[start-1])
		rightOK := end == len(msg) || !isDigit(msg[end])
		if leftOK && rightOK {
			return true
		}
		i = start + 1
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
