package browser

import (
	"log/slog"

	fakeua "github.com/EDDYCJY/fake-useragent"
	"github.com/mazen160/go-random"
)

// static pool used when the fake-useragent cache cannot be populated
// (it scrapes its list from the network on first use)
var fallbackUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

func fallbackUserAgent() string {
	i, err := random.IntRange(0, len(fallbackUserAgents))
	if err != nil {
		slog.Warn("user agent rotation failed, using first fallback", "err", err)
		return fallbackUserAgents[0]
	}
	return fallbackUserAgents[i]
}

// rotateUserAgent picks a fresh identification string per session so
// repeated logins do not present an identical fingerprint.
func rotateUserAgent() (ua string) {
	defer func() {
		// fake-useragent panics when its upstream list is unreachable
		if r := recover(); r != nil || ua == "" {
			ua = fallbackUserAgent()
		}
	}()

	ua = fakeua.Chrome()
	return ua
}
