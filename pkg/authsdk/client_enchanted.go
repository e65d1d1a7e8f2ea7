package authsdk

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 2 * time.Minute
)

// ErrPollTimeout is returned when an enchanted link is not clicked before
// the polling deadline.
var ErrPollTimeout = errors.New("authsdk: timed out waiting for enchanted link")

// PollOptions tunes PollEnchantedLink. Zero values select the defaults.
type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}

// SignInEnchantedLink emails loginID a link that completes the sign-in on
// any device. redirectURL is where the link lands; empty uses the project's
// configured page.
func (c *Client) SignInEnchantedLink(ctx context.Context, loginID, redirectURL string) (*EnchantedLinkResponse, error) {
	var out EnchantedLinkResponse
	req := enchantedLinkRequest{LoginID: loginID, URI: redirectURL}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/enchantedlink/signin/email", "", req, &out); err != nil {
		return nil, err
	}
	if out.PendingRef == "" {
		return nil, &DecodeError{Message: "enchanted link response without pending ref"}
	}
	return &out, nil
}

// PollEnchantedLink waits for the link identified by pendingRef to be
// verified. Network errors and "not yet verified" answers keep polling;
// any other error stops immediately. Cancelling ctx stops both the request
// in flight and the wait between polls.
func (c *Client) PollEnchantedLink(ctx context.Context, pendingRef string, opts PollOptions) (*AuthenticationResponse, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, pollDone(ctx)
		case <-timer.C:
		}

		var out AuthenticationResponse
		err := c.doJSON(ctx, http.MethodPost, "/v1/auth/enchantedlink/pending-session", "",
			pendingSessionRequest{PendingRef: pendingRef}, &out)
		switch {
		case err == nil:
			return &out, nil
		case ctx.Err() != nil:
			return nil, pollDone(ctx)
		case errors.Is(err, ErrNetwork), errors.Is(err, ErrEnchantedLinkPending):
			c.logger.DebugContext(ctx, "enchanted link not ready", "attempt", attempt, "error", err)
		default:
			return nil, err
		}

		timer.Reset(interval)
	}
}

func pollDone(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrPollTimeout
	}
	return ctx.Err()
}
