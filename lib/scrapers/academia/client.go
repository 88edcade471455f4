package academia

import (
	"context"
	"fmt"
	"strings"
	"time"

	"academia-backend/lib/browser"
	"academia-backend/lib/timezone"
	"academia-backend/lib/token"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lib/scrapers/academia")

// SessionSink receives session material after a verified login. The
// store layer implements it; tests use a buffer.
type SessionSink interface {
	SetSessionMaterial(ctx context.Context, owner string, material SessionMaterial) error
}

// Client drives one authenticated portal session for one student. Not
// safe for concurrent use; the job layer serializes per owner.
type Client struct {
	session *browser.Session
	page    *rod.Page
	dom     portalDOM

	issuer token.Issuer
	sink   SessionSink

	email    string
	password string
	state    AuthState
}

func NewClient(session *browser.Session, issuer token.Issuer, sink SessionSink, email, password string) *Client {
	return &Client{
		session:  session,
		issuer:   issuer,
		sink:     sink,
		email:    email,
		password: password,
		state:    StateAnonymous,
	}
}

// State reports the current position in the auth state machine.
func (c *Client) State() AuthState {
	return c.state
}

// portalDOM is the surface the login state machine needs from the
// rendered page. The rod implementation is the real one.
type portalDOM interface {
	Navigate(url string) error
	CurrentURL() (string, error)
	HTML() (string, error)
	// Frame re-resolves the login iframe. Always called fresh before
	// each interaction; the portal swaps the frame between steps.
	Frame(selector string) (frameDOM, error)
	// Eval runs a js function in the page and returns its string result.
	Eval(js string) (string, error)
	Cookies() (map[string]string, error)
	SetCookies(domain string, cookies map[string]string) error
}

type frameDOM interface {
	Type(selector, text string) error
	Click(selector string) error
	// SetValueJS injects the value directly, the fallback when typing
	// into the field is rejected
	SetValueJS(selector, value string) error
}

type rodDOM struct {
	session *browser.Session
	page    *rod.Page
}

func (d *rodDOM) Navigate(url string) error { return d.session.Navigate(d.page, url) }

func (d *rodDOM) CurrentURL() (string, error) {
	return d.session.EvalString(d.page, `() => window.location.href`)
}

func (d *rodDOM) HTML() (string, error) { return d.session.HTML(d.page) }

func (d *rodDOM) Frame(selector string) (frameDOM, error) {
	el, err := d.session.Element(d.page, selector)
	if err != nil {
		return nil, fmt.Errorf("login frame %q: %w", selector, err)
	}
	frame, err := el.Frame()
	if err != nil {
		return nil, fmt.Errorf("resolve frame %q: %w", selector, err)
	}
	return &rodFrame{page: frame, timeout: 30 * time.Second}, nil
}

func (d *rodDOM) Eval(js string) (string, error) { return d.session.EvalString(d.page, js) }

func (d *rodDOM) Cookies() (map[string]string, error) { return d.session.Cookies() }

func (d *rodDOM) SetCookies(domain string, cookies map[string]string) error {
	return d.session.SetCookies(domain, cookies)
}

type rodFrame struct {
	page    *rod.Page
	timeout time.Duration
}

func (f *rodFrame) Type(selector, text string) error {
	el, err := f.page.Timeout(f.timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.Input(text)
}

func (f *rodFrame) Click(selector string) error {
	el, err := f.page.Timeout(f.timeout).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (f *rodFrame) SetValueJS(selector, value string) error {
	js := `(sel, val) => {
		const el = document.querySelector(sel);
		if (!el) throw new Error("no element " + sel);
		el.value = val;
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
	}`
	_, err := f.page.Timeout(f.timeout).Eval(js, selector, value)
	return err
}

// ensurePage lazily creates the session page and the dom handle.
func (c *Client) ensurePage(ctx context.Context) error {
	if c.dom != nil {
		return nil
	}
	page, err := c.session.Page(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	c.page = page
	c.dom = &rodDOM{session: c.session, page: page}
	return nil
}

// Document snapshots the current page into a goquery document.
func (c *Client) Document() (*goquery.Document, error) {
	raw, err := c.dom.HTML()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(raw))
}

func (c *Client) persistSession(ctx context.Context) error {
	cookies, err := c.dom.Cookies()
	if err != nil {
		return fmt.Errorf("extract cookies: %w", err)
	}
	jwt, err := c.issuer.Mint(c.email, timezone.Now())
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	material := SessionMaterial{
		Cookies:   cookies,
		Token:     jwt,
		UpdatedAt: timezone.Now(),
	}
	if err := c.sink.SetSessionMaterial(ctx, c.email, material); err != nil {
		return fmt.Errorf("persist session material: %w", err)
	}
	return nil
}
