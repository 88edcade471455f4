// Package browser owns the browser automation handle: it launches (or
// attaches to) a Chromium process through an ordered list of strategies,
// applies the container-safe anti-detection flag set, and guarantees the
// process is torn down exactly once no matter how scraping exits.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrDriverInit is fatal for the current attempt set; callers surface it
// as a job failure instead of retrying.
var ErrDriverInit = errors.New("could not start a browser with any launch strategy")

type Options struct {
	// Bin is an explicit browser binary path, tried after the system
	// install lookup.
	Bin string `json:"bin"`
	// RemoteURL attaches to an already-running browser over the
	// devtools protocol (the selenium/standalone-chrome style setup).
	RemoteURL string `json:"remote_url"`
	// Headed disables headless mode for local debugging.
	Headed bool `json:"headed"`

	PageLoadTimeout time.Duration `json:"-"`
	ElementTimeout  time.Duration `json:"-"`
	ScriptTimeout   time.Duration `json:"-"`
}

func (o *Options) fillDefaults() {
	if o.PageLoadTimeout == 0 {
		o.PageLoadTimeout = 2 * time.Minute
	}
	if o.ElementTimeout == 0 {
		o.ElementTimeout = 30 * time.Second
	}
	if o.ScriptTimeout == 0 {
		o.ScriptTimeout = time.Minute
	}
}

// Session wraps one browser process. Not safe for concurrent use; each
// scrape run acquires its own.
type Session struct {
	opts      Options
	browser   *rod.Browser
	launcher  *launcher.Launcher
	userAgent string
	release   sync.Once
}

// the same baseline flag set every strategy applies: headless unless
// debugging, sandboxing off for container compatibility, automation
// banners suppressed, rendering kept cheap for small instances
func applyBaseFlags(l *launcher.Launcher, opts Options) *launcher.Launcher {
	return l.
		Headless(!opts.Headed).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("disable-extensions").
		Set("disable-software-rasterizer").
		Set("disable-blink-features", "AutomationControlled").
		Set("exclude-switches", "enable-automation").
		Set("window-size", "1920,1080")
}

type launchStrategy struct {
	name string
	run  func(ctx context.Context, opts Options) (*rod.Browser, *launcher.Launcher, error)
}

func connect(ctx context.Context, l *launcher.Launcher) (*rod.Browser, *launcher.Launcher, error) {
	url, err := l.Launch()
	if err != nil {
		return nil, nil, err
	}
	b := rod.New().Context(ctx).ControlURL(url)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, err
	}
	return b, l, nil
}

var strategies = []launchStrategy{
	{
		name: "system-install",
		run: func(ctx context.Context, opts Options) (*rod.Browser, *launcher.Launcher, error) {
			bin, found := launcher.LookPath()
			if !found {
				return nil, nil, fmt.Errorf("no system browser install found")
			}
			return connect(ctx, applyBaseFlags(launcher.New().Bin(bin), opts))
		},
	},
	{
		name: "explicit-binary",
		run: func(ctx context.Context, opts Options) (*rod.Browser, *launcher.Launcher, error) {
			if opts.Bin == "" {
				return nil, nil, fmt.Errorf("no explicit binary configured")
			}
			return connect(ctx, applyBaseFlags(launcher.New().Bin(opts.Bin), opts))
		},
	},
	{
		name: "managed-download",
		run: func(ctx context.Context, opts Options) (*rod.Browser, *launcher.Launcher, error) {
			// the default launcher downloads a pinned chromium when
			// nothing is installed
			return connect(ctx, applyBaseFlags(launcher.New(), opts))
		},
	},
	{
		name: "no-leakless",
		run: func(ctx context.Context, opts Options) (*rod.Browser, *launcher.Launcher, error) {
			// leakless gets blocked on some hosts, retry without it
			return connect(ctx, applyBaseFlags(launcher.New().Leakless(false), opts))
		},
	},
	{
		name: "remote-attach",
		run: func(ctx context.Context, opts Options) (*rod.Browser, *launcher.Launcher, error) {
			if opts.RemoteURL == "" {
				return nil, nil, fmt.Errorf("no remote debugging url configured")
			}
			b := rod.New().Context(ctx).ControlURL(opts.RemoteURL)
			if err := b.Connect(); err != nil {
				return nil, nil, err
			}
			return b, nil, nil
		},
	},
}

// Acquire tries each launch strategy in order until one yields a usable
// browser. All strategies exhausted wraps ErrDriverInit.
func Acquire(ctx context.Context, opts Options) (*Session, error) {
	opts.fillDefaults()

	var errlist []error
	for _, strat := range strategies {
		b, l, err := strat.run(ctx, opts)
		if err != nil {
			slog.DebugContext(
				ctx, "launch strategy failed",
				"strategy", strat.name,
				"err", err,
			)
			errlist = append(errlist, fmt.Errorf("%s: %w", strat.name, err))
			continue
		}
		slog.InfoContext(ctx, "browser acquired", "strategy", strat.name)
		return &Session{
			opts:      opts,
			browser:   b,
			launcher:  l,
			userAgent: rotateUserAgent(),
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrDriverInit, errors.Join(errlist...))
}

// Release tears the browser process down. Idempotent; safe to defer
// unconditionally from every exit path.
func (s *Session) Release() {
	s.release.Do(func() {
		err := s.browser.Close()
		if err != nil {
			slog.Warn("failed to close browser", "err", err)
		}
		if s.launcher != nil {
			s.launcher.Cleanup()
		}
	})
}

// Page creates a stealth-patched page carrying the session's rotated
// user agent.
func (s *Session) Page(ctx context.Context) (*rod.Page, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, err
	}
	page = page.Context(ctx)

	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: s.userAgent,
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Navigate loads the url and waits for the load event, bounded by the
// page-load timeout. A timed-out load event is not an error: the portal
// is a single-page app that keeps rendering long after load fires.
func (s *Session) Navigate(page *rod.Page, url string) error {
	bounded := page.Timeout(s.opts.PageLoadTimeout)
	err := bounded.Navigate(url)
	if err != nil {
		return err
	}
	err = bounded.WaitLoad()
	if err != nil {
		slog.Debug("load event did not fire in time", "url", url, "err", err)
	}
	return nil
}

// HTML snapshots the currently rendered document.
func (s *Session) HTML(page *rod.Page) (string, error) {
	return page.Timeout(s.opts.ScriptTimeout).HTML()
}

// Element waits for a selector, bounded by the element timeout.
func (s *Session) Element(page *rod.Page, selector string) (*rod.Element, error) {
	return page.Timeout(s.opts.ElementTimeout).Element(selector)
}

// EvalString runs a js function in the page and returns its string
// result, bounded by the script timeout.
func (s *Session) EvalString(page *rod.Page, js string) (string, error) {
	obj, err := page.Timeout(s.opts.ScriptTimeout).Eval(js)
	if err != nil {
		return "", err
	}
	return obj.Value.Str(), nil
}

// Cookies returns the browser's current cookie set as a name->value map.
func (s *Session) Cookies() (map[string]string, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out, nil
}

// SetCookies injects a previously captured cookie set scoped to the
// given domain, used for session reuse without credentials.
func (s *Session) SetCookies(domain string, cookies map[string]string) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for name, value := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   name,
			Value:  value,
			Domain: domain,
			Path:   "/",
		})
	}
	return s.browser.SetCookies(params)
}
