package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
)

const (
	// DefaultRefreshTimeout bounds the refresh call.
	DefaultRefreshTimeout = 15 * time.Second
	// DefaultWaitTimeout bounds how long a queued request waits for the
	// in-flight refresh.
	DefaultWaitTimeout = 30 * time.Second
)

var errRefreshAborted = errors.New("refresh aborted")

// SessionTerminator signs the session out when it cannot be recovered. It
// must be safe to call when already signed out.
type SessionTerminator interface {
	SignOut(ctx context.Context) error
}

// SignOutFunc adapts a function to SessionTerminator.
type SignOutFunc func(ctx context.Context) error

func (f SignOutFunc) SignOut(ctx context.Context) error {
	return f(ctx)
}

type refreshResult struct {
	token *oauth2.Token
	err   error
}

// waiter is a request suspended on the in-flight refresh. result is buffered
// so the coordinator never blocks resolving it.
type waiter struct {
	id     string
	result chan refreshResult
}

// RefreshCoordinator turns concurrent expired-token failures into a single
// refresh call followed by one replay per failed request.
type RefreshCoordinator struct {
	client     *Client
	refresher  common.RefreshClient
	store      common.CredentialStore
	terminator SessionTerminator

	logger         *zap.Logger
	clock          clockwork.Clock
	refreshTimeout time.Duration
	waitTimeout    time.Duration

	mu         sync.Mutex
	refreshing bool
	waiters    []*waiter
}

// CoordinatorOption configures a RefreshCoordinator.
type CoordinatorOption func(*RefreshCoordinator)

func WithCoordinatorLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *RefreshCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(clock clockwork.Clock) CoordinatorOption {
	return func(c *RefreshCoordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *RefreshCoordinator) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

func WithWaitTimeout(d time.Duration) CoordinatorOption {
	return func(c *RefreshCoordinator) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

func NewRefreshCoordinator(
	client *Client,
	refresher common.RefreshClient,
	store common.CredentialStore,
	terminator SessionTerminator,
	opts ...CoordinatorOption,
) *RefreshCoordinator {
	c := &RefreshCoordinator{
		client:         client,
		refresher:      refresher,
		store:          store,
		terminator:     terminator,
		logger:         zap.NewNop(),
		clock:          clockwork.NewRealClock(),
		refreshTimeout: DefaultRefreshTimeout,
		waitTimeout:    DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach registers the coordinator on its client and returns a function
// detaching it.
func (c *RefreshCoordinator) Attach() (detach func()) {
	return c.client.OnResponse(c.Intercept)
}

// Refreshing reports whether a refresh call is in flight.
func (c *RefreshCoordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refreshing
}

// Pending returns the number of requests waiting on the in-flight refresh.
func (c *RefreshCoordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.waiters)
}

// Intercept is the ResponseInterceptor. Successful responses and failures
// other than a structured 401 pass through unchanged.
func (c *RefreshCoordinator) Intercept(ctx context.Context, req *Request, resp *Response, err error) (*Response, error) {
	if err == nil {
		return resp, nil
	}

	var httpErr *common.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusUnauthorized || !httpErr.Structured {
		return resp, err
	}

	if !common.IsTokenFailure(httpErr.Message) {
		c.signOut(ctx, "unrecoverable unauthorized response", zap.String("reason", httpErr.Message))
		return resp, httpErr.WithKind(common.ErrUnauthorized)
	}

	// a replay that fails again is not refreshed a second time
	if req.Replayed() {
		return resp, err
	}

	stored, storeErr := c.store.Get(ctx)
	if storeErr != nil && !errors.Is(storeErr, common.ErrNoCredentials) {
		c.logger.Warn("failed to read credentials", zap.Error(storeErr))
	}
	if storeErr != nil || stored.RefreshToken == "" {
		c.signOut(ctx, "no refresh token")
		return resp, httpErr.WithKind(common.ErrSessionExpired)
	}

	c.mu.Lock()
	if c.refreshing {
		w := &waiter{id: uuid.NewString(), result: make(chan refreshResult, 1)}
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()

		c.logger.Debug("queued request behind token refresh",
			zap.String("waiter", w.id),
			zap.String("request", req.ID))
		return c.await(ctx, req, w)
	}
	// a refresh finished after this request was sent
	if current := c.client.DefaultAuthHeader(); current != "" && current != req.Header.Get("Authorization") {
		c.mu.Unlock()

		c.logger.Debug("replaying request with refreshed token", zap.String("request", req.ID))
		return c.client.Replay(ctx, req, strings.TrimPrefix(current, common.BearerPrefix))
	}
	c.refreshing = true
	c.mu.Unlock()

	return c.refreshAndReplay(ctx, req, stored.RefreshToken)
}

func (c *RefreshCoordinator) refreshAndReplay(ctx context.Context, req *Request, refreshToken string) (*Response, error) {
	settled := false
	defer func() {
		if !settled {
			c.settle(refreshResult{err: &common.RefreshError{Err: errRefreshAborted}})
		}
	}()

	token, err := c.refresh(ctx, refreshToken)
	if err != nil {
		refreshErr := &common.RefreshError{Err: err}
		c.logger.Warn("token refresh failed", zap.Error(err))
		c.signOut(ctx, "token refresh failed")
		settled = true
		c.settle(refreshResult{err: refreshErr})
		return nil, refreshErr
	}

	settled = true
	c.settle(refreshResult{token: token})
	return c.client.Replay(ctx, req, token.AccessToken)
}

// refresh exchanges the refresh token, persists the new pair and installs it
// as the default header. The call is detached from the caller's cancellation
// since every queued request depends on it.
func (c *RefreshCoordinator) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	token, err := c.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	c.client.SetDefaultAuthHeader(token.AccessToken)

	fields := []zap.Field{}
	if !token.Expiry.IsZero() {
		fields = append(fields, zap.Time("expiry", token.Expiry))
	}
	c.logger.Info("token refreshed", fields...)
	return token, nil
}

// settle ends the refresh cycle: the flag is cleared and the queue drained in
// one step, then each drained waiter is resolved in arrival order.
func (c *RefreshCoordinator) settle(result refreshResult) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, w := range waiters {
		w.result <- result
	}
	if len(waiters) > 0 {
		c.logger.Debug("resolved queued requests",
			zap.Int("count", len(waiters)),
			zap.Bool("ok", result.err == nil))
	}
}

func (c *RefreshCoordinator) await(ctx context.Context, req *Request, w *waiter) (*Response, error) {
	timeout := c.clock.After(c.waitTimeout)

	select {
	case res := <-w.result:
		if res.err != nil {
			return nil, res.err
		}
		return c.client.Replay(ctx, req, res.token.AccessToken)
	case <-ctx.Done():
		c.abandon(w)
		return nil, ctx.Err()
	case <-timeout:
		c.abandon(w)
		c.logger.Warn("gave up waiting for token refresh", zap.String("waiter", w.id))
		return nil, common.ErrRefreshTimeout
	}
}

// abandon drops w from the queue if the refresh has not drained it yet.
func (c *RefreshCoordinator) abandon(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, queued := range c.waiters {
		if queued == w {
			c.waiters = append(c.waiters[:i:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *RefreshCoordinator) signOut(ctx context.Context, reason string, fields ...zap.Field) {
	c.logger.Warn("signing out: "+reason, fields...)
	if c.terminator == nil {
		return
	}
	if err := c.terminator.SignOut(context.WithoutCancel(ctx)); err != nil {
		c.logger.Error("sign out failed", zap.Error(err))
	}
}
