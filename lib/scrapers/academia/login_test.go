package academia

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"academia-backend/lib/retryutil"
	"academia-backend/lib/token"

	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	typed  map[string]string
	clicks []string
}

func (f *fakeFrame) Type(selector, text string) error {
	f.typed[selector] = text
	return nil
}

func (f *fakeFrame) Click(selector string) error {
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakeFrame) SetValueJS(selector, value string) error {
	f.typed[selector] = value
	return nil
}

// fakeDOM scripts the portal: the login frame fails to resolve a
// configured number of times, and the page turns into the dashboard
// once the password submit lands.
type fakeDOM struct {
	frame         *fakeFrame
	frameFailures int
	frameProbes   int
	navigated     []string
	loggedIn      bool
	cookies       map[string]string
}

func newFakeDOM(frameFailures int) *fakeDOM {
	return &fakeDOM{
		frame:         &fakeFrame{typed: map[string]string{}},
		frameFailures: frameFailures,
		cookies:       map[string]string{"ZSID": "abc"},
	}
}

func (d *fakeDOM) Navigate(url string) error {
	d.navigated = append(d.navigated, url)
	return nil
}

func (d *fakeDOM) CurrentURL() (string, error) {
	if d.loggedIn {
		return BaseURL + "/#Page:Dashboard", nil
	}
	return "https://accounts.example.com/signin", nil
}

func (d *fakeDOM) HTML() (string, error) {
	if d.loggedIn {
		return `<html><a href="#Page:My_Attendance">Attendance</a>Academic Profile</html>`, nil
	}
	return `<html><iframe id="signinFrame"></iframe></html>`, nil
}

func (d *fakeDOM) Frame(selector string) (frameDOM, error) {
	d.frameProbes++
	if d.frameProbes <= d.frameFailures {
		return nil, fmt.Errorf("frame %q not attached yet", selector)
	}
	return d.frame, nil
}

func (d *fakeDOM) Eval(js string) (string, error) { return "", nil }

func (d *fakeDOM) Cookies() (map[string]string, error) { return d.cookies, nil }

func (d *fakeDOM) SetCookies(domain string, cookies map[string]string) error {
	for name, value := range cookies {
		d.cookies[name] = value
	}
	return nil
}

type memorySink struct {
	mu       sync.Mutex
	material map[string]SessionMaterial
}

func (s *memorySink) SetSessionMaterial(_ context.Context, owner string, material SessionMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.material == nil {
		s.material = map[string]SessionMaterial{}
	}
	s.material[owner] = material
	return nil
}

func fastTimings(t *testing.T) {
	t.Helper()
	prevSettle := postSubmitSettle
	prevInteraction := retryutil.Interaction
	postSubmitSettle = time.Millisecond
	retryutil.Interaction.Interval = time.Millisecond
	t.Cleanup(func() {
		postSubmitSettle = prevSettle
		retryutil.Interaction = prevInteraction
	})
}

func testClient(dom *fakeDOM) (*Client, *memorySink) {
	sink := &memorySink{}
	c := NewClient(nil, token.NewIssuer("test-secret"), sink, "student@srmist.edu.in", "hunter2")
	c.dom = dom
	// second click flips the scripted portal into the dashboard
	dom.frame.clicks = nil
	return c, sink
}

func TestLoginHappyPath(t *testing.T) {
	fastTimings(t)
	dom := newFakeDOM(0)
	c, sink := testClient(dom)

	// flip to the dashboard when the password submit lands
	orig := dom.frame
	done := func() {
		if len(orig.clicks) == 2 {
			dom.loggedIn = true
		}
	}
	c.dom = &hookDOM{fakeDOM: dom, afterClick: done}

	err := c.Login(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateVerified, c.State())

	require.Equal(t, "student@srmist.edu.in", dom.frame.typed[emailFieldSelector])
	require.Equal(t, "hunter2", dom.frame.typed[passwordFieldSelector])
	require.Equal(t, []string{nextButtonSelector, nextButtonSelector}, dom.frame.clicks)

	material, ok := sink.material["student@srmist.edu.in"]
	require.True(t, ok, "verified login persists session material")
	require.Equal(t, "abc", material.Cookies["ZSID"])
	require.NotEmpty(t, material.Token)
}

// hookDOM lets a test observe frame clicks through the dom seam.
type hookDOM struct {
	*fakeDOM
	afterClick func()
}

func (d *hookDOM) Frame(selector string) (frameDOM, error) {
	frame, err := d.fakeDOM.Frame(selector)
	if err != nil {
		return nil, err
	}
	return &hookFrame{frameDOM: frame, afterClick: d.afterClick}, nil
}

type hookFrame struct {
	frameDOM
	afterClick func()
}

func (f *hookFrame) Click(selector string) error {
	err := f.frameDOM.Click(selector)
	f.afterClick()
	return err
}

func TestLoginFrameRetriesWithinBudget(t *testing.T) {
	fastTimings(t)

	// the frame resolves on the third probe; the first interaction's
	// retry budget absorbs both failures without burning a full attempt
	dom := newFakeDOM(2)
	c, _ := testClient(dom)
	c.dom = &hookDOM{fakeDOM: dom, afterClick: func() {
		if len(dom.frame.clicks) == 2 {
			dom.loggedIn = true
		}
	}}

	err := c.Login(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateVerified, c.State())
	require.Equal(t, "student@srmist.edu.in", dom.frame.typed[emailFieldSelector])
}

func TestLoginExhaustedBudgetFails(t *testing.T) {
	fastTimings(t)

	// the frame never resolves: every interaction and every outer
	// attempt fails, ending in StateFailed
	dom := newFakeDOM(1 << 30)
	c, sink := testClient(dom)

	err := c.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, StateFailed, c.State())
	require.Empty(t, sink.material, "no session material on failure")
}

func TestLoginVerificationFailureDemotes(t *testing.T) {
	fastTimings(t)

	// interactions succeed but the portal never leaves the signin page
	dom := newFakeDOM(0)
	c, _ := testClient(dom)

	err := c.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, StateFailed, c.State())
	// three full attempts, two clicks each
	require.Len(t, dom.frame.clicks, 6)
}

func TestLoginWithCookies(t *testing.T) {
	fastTimings(t)
	prevProfile := profileSettle
	profileSettle = time.Millisecond
	t.Cleanup(func() { profileSettle = prevProfile })

	dom := newFakeDOM(0)
	dom.loggedIn = true
	c, _ := testClient(dom)

	err := c.LoginWithCookies(context.Background(), map[string]string{"ZSID": "saved"})
	require.NoError(t, err)
	require.Equal(t, StateVerified, c.State())
	require.Equal(t, "saved", dom.cookies["ZSID"])
	require.Contains(t, dom.navigated, ProfilePageURL)
}

func TestLoginWithDeadCookies(t *testing.T) {
	fastTimings(t)
	prevProfile := profileSettle
	profileSettle = time.Millisecond
	t.Cleanup(func() { profileSettle = prevProfile })

	dom := newFakeDOM(0)
	c, _ := testClient(dom)

	err := c.LoginWithCookies(context.Background(), map[string]string{"ZSID": "stale"})
	require.ErrorIs(t, err, ErrCookiesInvalid)
	require.Equal(t, StateAnonymous, c.State())
}

func TestEnsureLoginProbesVerifiedSession(t *testing.T) {
	fastTimings(t)
	prevProfile := profileSettle
	profileSettle = time.Millisecond
	t.Cleanup(func() { profileSettle = prevProfile })

	dom := newFakeDOM(0)
	dom.loggedIn = true
	c, _ := testClient(dom)
	c.state = StateVerified

	err := c.EnsureLogin(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateVerified, c.State())
	// only the liveness probe navigated, never the login page
	require.Equal(t, []string{ProfilePageURL}, dom.navigated)
}
