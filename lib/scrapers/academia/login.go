package academia

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"academia-backend/lib/retryutil"

	"go.opentelemetry.io/otel/codes"
)

// AuthState tracks progress through the credential flow. Transitions
// only move forward within one attempt; a failed verification demotes
// straight back to StateAnonymous.
type AuthState int

const (
	StateAnonymous AuthState = iota
	StateAwaitingCredentialFrame
	StateCredentialsEntered
	StateAwaitingPasswordFrame
	StatePasswordEntered
	StateSubmitted
	StateVerified
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAwaitingCredentialFrame:
		return "awaiting_credential_frame"
	case StateCredentialsEntered:
		return "credentials_entered"
	case StateAwaitingPasswordFrame:
		return "awaiting_password_frame"
	case StatePasswordEntered:
		return "password_entered"
	case StateSubmitted:
		return "submitted"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	loginFrameSelector    = "#signinFrame"
	emailFieldSelector    = "#login_id"
	nextButtonSelector    = "#nextbtn"
	passwordFieldSelector = "#password"

	loginAttempts = 3
)

// the dashboard settles slowly after the final submit; var so tests can
// shrink it
var postSubmitSettle = 5 * time.Second

// fillField types into the field inside a freshly resolved login frame,
// falling back to direct js value injection when typing fails. The
// frame is re-resolved on every call because the portal replaces it
// between the email and password steps.
func (c *Client) fillField(ctx context.Context, selector, value string) error {
	return retryutil.Interaction.Do(ctx, "fill "+selector, func() error {
		frame, err := c.dom.Frame(loginFrameSelector)
		if err != nil {
			return err
		}
		if err := frame.Type(selector, value); err != nil {
			slog.DebugContext(
				ctx, "typing into field failed, injecting value",
				"selector", selector,
				"err", err,
			)
			return frame.SetValueJS(selector, value)
		}
		return nil
	})
}

func (c *Client) clickInFrame(ctx context.Context, selector string) error {
	return retryutil.Interaction.Do(ctx, "click "+selector, func() error {
		frame, err := c.dom.Frame(loginFrameSelector)
		if err != nil {
			return err
		}
		return frame.Click(selector)
	})
}

// verifyLogin checks the three independent signals of a logged-in
// session: the URL back at the portal origin, the attendance anchor on
// the dashboard, and a logout affordance. Any one suffices.
func (c *Client) verifyLogin(ctx context.Context) bool {
	url, err := c.dom.CurrentURL()
	if err == nil && strings.HasPrefix(url, BaseURL) && !strings.Contains(strings.ToLower(url), "signin") {
		return true
	}

	raw, err := c.dom.HTML()
	if err != nil {
		return false
	}
	if strings.Contains(raw, "My_Attendance") {
		return true
	}
	lowered := strings.ToLower(raw)
	return strings.Contains(lowered, "logout") || strings.Contains(lowered, "sign out")
}

// loginOnce runs a single pass of the credential flow.
func (c *Client) loginOnce(ctx context.Context) error {
	c.state = StateAnonymous
	if err := c.dom.Navigate(LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	c.state = StateAwaitingCredentialFrame
	if err := c.fillField(ctx, emailFieldSelector, c.email); err != nil {
		return fmt.Errorf("enter email: %w", err)
	}
	c.state = StateCredentialsEntered

	if err := c.clickInFrame(ctx, nextButtonSelector); err != nil {
		return fmt.Errorf("advance past email: %w", err)
	}

	c.state = StateAwaitingPasswordFrame
	if err := c.fillField(ctx, passwordFieldSelector, c.password); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	c.state = StatePasswordEntered

	if err := c.clickInFrame(ctx, nextButtonSelector); err != nil {
		return fmt.Errorf("submit password: %w", err)
	}
	c.state = StateSubmitted

	settle(ctx, postSubmitSettle)
	if !c.verifyLogin(ctx) {
		c.state = StateAnonymous
		return ErrLoginFailed
	}

	c.state = StateVerified
	return nil
}

// Login runs the credential flow with a bounded retry budget, persisting
// session material once verified.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "academia.Login")
	defer span.End()

	if err := c.ensurePage(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= loginAttempts; attempt++ {
		lastErr = c.loginOnce(ctx)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		slog.WarnContext(
			ctx, "login attempt failed",
			"attempt", attempt,
			"state", c.state.String(),
			"err", lastErr,
		)
	}
	if lastErr != nil {
		c.state = StateFailed
		err := fmt.Errorf("%w: %v", ErrLoginFailed, lastErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := c.persistSession(ctx); err != nil {
		// the session itself is good, persistence failure is logged
		// and the run continues on the live browser
		slog.ErrorContext(ctx, "failed to persist session material", "err", err)
	}
	return nil
}

// LoginWithCookies short-circuits the credential flow by injecting a
// saved cookie set and probing liveness. Dead cookies return
// ErrCookiesInvalid so the caller can fall back to Login.
func (c *Client) LoginWithCookies(ctx context.Context, cookies map[string]string) error {
	ctx, span := tracer.Start(ctx, "academia.LoginWithCookies")
	defer span.End()

	if err := c.ensurePage(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := c.dom.SetCookies(CookieDomain, cookies); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("inject cookies: %w", err)
	}

	alive, err := c.probeSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !alive {
		c.state = StateAnonymous
		return ErrCookiesInvalid
	}

	c.state = StateVerified
	return nil
}

// probeSession checks whether the current browser session is still
// authenticated by loading the profile page and looking for its marker.
func (c *Client) probeSession(ctx context.Context) (bool, error) {
	if err := c.dom.Navigate(ProfilePageURL); err != nil {
		return false, fmt.Errorf("open profile page: %w", err)
	}
	settle(ctx, profileSettle)

	raw, err := c.dom.HTML()
	if err != nil {
		return false, err
	}
	return strings.Contains(raw, "Academic Profile"), nil
}

// EnsureLogin guarantees a verified session: already-verified sessions
// are liveness-probed first and demoted when dead, then the full
// credential flow runs.
func (c *Client) EnsureLogin(ctx context.Context) error {
	if err := c.ensurePage(ctx); err != nil {
		return err
	}

	if c.state == StateVerified {
		alive, err := c.probeSession(ctx)
		if err == nil && alive {
			return nil
		}
		slog.InfoContext(
			ctx, "session no longer live, re-authenticating",
			"probe_err", err,
		)
		c.state = StateAnonymous
	}

	return c.Login(ctx)
}
