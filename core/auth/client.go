package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portals/core"
	"github.com/trezcool/masomo-portals/core/session"
	"github.com/trezcool/masomo-portals/core/user"
)

// Client is the per application instance view of the Service; it implements session.Backend.
// It keeps the access token of its instance in a TokenStore and signs the instance out
// when its session is revoked elsewhere.
type Client struct {
	svc      *Service
	store    TokenStore
	clientID string
	logger   core.Logger

	listeners Listeners[session.Change]

	mu             sync.Mutex
	currentID      string    // ID of the session held by this instance
	expiresAt      time.Time // of the current access token
	checkedAt      time.Time
	unsubscribeBus func()

	checkMu sync.Mutex
}

var _ session.Backend = (*Client)(nil)

func NewClient(svc *Service, store TokenStore, clientID string, logger core.Logger) *Client {
	c := &Client{
		svc:      svc,
		store:    store,
		clientID: clientID,
		logger:   logger,
	}
	c.unsubscribeBus = svc.bus.Subscribe(c.onRevoked)
	return c
}

func (c *Client) ClientID() string { return c.clientID }

// GetSession restores the stored session. Expired tokens are refreshed when possible;
// tokens that cannot be used anymore are dropped.
func (c *Client) GetSession(ctx context.Context) (*session.Session, error) {
	token, err := c.store.Load(ctx, c.clientID)
	if err != nil {
		return nil, errors.Wrap(err, "loading token")
	}
	if token == "" {
		return nil, nil
	}

	sess, err := c.svc.GetSession(ctx, token)
	if errors.Cause(err) == ErrTokenExpired {
		if sess, err = c.svc.Refresh(ctx, token); err == nil {
			if err = c.saveToken(ctx, sess); err != nil {
				return nil, err
			}
		}
	}
	if err != nil {
		if isTokenRejected(err) {
			c.signedOut(ctx)
			return nil, nil
		}
		return nil, err
	}
	c.setCurrent(sess)
	return sess, nil
}

// Check re-validates the session held by this instance once it is due, that is once its
// access token expired or checkInterval elapsed since the last check. An expired token is
// refreshed; a token the Service rejects signs the instance out.
func (c *Client) Check(ctx context.Context) error {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	c.mu.Lock()
	id, expiresAt, checkedAt := c.currentID, c.expiresAt, c.checkedAt
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	now := c.svc.nowFunc()
	if now.Before(expiresAt) && now.Sub(checkedAt) < c.svc.conf.Server.SessionCheckInterval {
		return nil
	}

	token, err := c.store.Load(ctx, c.clientID)
	if err != nil {
		return errors.Wrap(err, "loading token")
	}
	if token == "" {
		c.signedOut(ctx)
		return nil
	}
	sess, err := c.svc.GetSession(ctx, token)
	switch {
	case err == nil:
		c.setCurrent(sess)
		return nil
	case errors.Cause(err) == ErrTokenExpired:
		if _, err = c.Refresh(ctx); err != nil && !isTokenRejected(err) {
			return err
		}
		return nil
	case isTokenRejected(err):
		c.signedOut(ctx)
		return nil
	}
	return err
}

func (c *Client) OnSessionChange(fn func(session.Change)) func() {
	return c.listeners.Add(fn)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	sess, err := c.svc.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, core.NewAuthError("sign in", err)
	}
	if err = c.saveToken(ctx, sess); err != nil {
		return nil, err
	}
	c.setCurrent(sess)
	c.listeners.Emit(session.Change{Event: session.EventSignedIn, Session: sess})
	return sess, nil
}

func (c *Client) SignUp(ctx context.Context, req session.SignUpRequest) error {
	if _, _, err := c.svc.SignUp(ctx, req); err != nil {
		return core.NewAuthError("sign up", err)
	}
	return nil
}

// SignOut forgets the local token, then revokes its session.
func (c *Client) SignOut(ctx context.Context) error {
	token, err := c.store.Load(ctx, c.clientID)
	c.dropToken(ctx)
	c.listeners.Emit(session.Change{Event: session.EventSignedOut})
	if err != nil {
		return errors.Wrap(err, "loading token")
	}
	if token == "" {
		return nil
	}
	if err = c.svc.SignOut(ctx, token); err != nil {
		return core.NewAuthError("sign out", err)
	}
	return nil
}

// Refresh re-issues the stored token.
func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	token, err := c.store.Load(ctx, c.clientID)
	if err != nil {
		return nil, errors.Wrap(err, "loading token")
	}
	if token == "" {
		return nil, core.ErrNoUser
	}
	sess, err := c.svc.Refresh(ctx, token)
	if err != nil {
		if isTokenRejected(err) {
			c.signedOut(ctx)
		}
		return nil, core.NewAuthError("token refresh", err)
	}
	if err = c.saveToken(ctx, sess); err != nil {
		return nil, err
	}
	c.setCurrent(sess)
	c.listeners.Emit(session.Change{Event: session.EventTokenRefreshed, Session: sess})
	return sess, nil
}

func (c *Client) FetchProfile(ctx context.Context, userID string) (user.Profile, error) {
	return c.svc.FetchProfile(ctx, userID)
}

func (c *Client) UpdateProfile(ctx context.Context, userID string, upd user.ProfileUpdate) (user.Profile, error) {
	return c.svc.UpdateProfile(ctx, userID, upd)
}

// Close stops listening to revocations and drops every listener. The stored token is kept.
func (c *Client) Close() {
	c.mu.Lock()
	unsub := c.unsubscribeBus
	c.unsubscribeBus = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	c.listeners.Clear()
}

func (c *Client) onRevoked(sessionID string) {
	c.mu.Lock()
	mine := sessionID != "" && sessionID == c.currentID
	if mine {
		c.currentID = ""
		c.expiresAt = time.Time{}
	}
	c.mu.Unlock()
	if !mine {
		return
	}

	if err := c.store.Delete(context.Background(), c.clientID); err != nil {
		c.logger.Error(fmt.Sprintf("deleting token of client %q: %v", c.clientID, err), err)
	}
	c.listeners.Emit(session.Change{Event: session.EventSignedOut})
}

// saveToken stores the access token of sess for as long as it can be used or refreshed.
func (c *Client) saveToken(ctx context.Context, sess *session.Session) error {
	ttl := sess.Deadline().Sub(c.svc.nowFunc())
	if ttl <= 0 {
		return errors.Wrap(ErrRefreshExpired, "saving token")
	}
	if err := c.store.Save(ctx, c.clientID, sess.AccessToken, ttl); err != nil {
		return errors.Wrap(err, "saving token")
	}
	return nil
}

func (c *Client) dropToken(ctx context.Context) {
	c.setCurrent(nil)
	if err := c.store.Delete(ctx, c.clientID); err != nil {
		c.logger.Error(fmt.Sprintf("deleting token of client %q: %v", c.clientID, err), err)
	}
}

// signedOut forgets the session of this instance and tells the provider.
func (c *Client) signedOut(ctx context.Context) {
	c.dropToken(ctx)
	c.listeners.Emit(session.Change{Event: session.EventSignedOut})
}

// setCurrent records sess as the session held by this instance; nil clears it.
func (c *Client) setCurrent(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess == nil {
		c.currentID = ""
		c.expiresAt = time.Time{}
		return
	}
	c.currentID = sess.ID
	c.expiresAt = sess.ExpiresAt
	c.checkedAt = c.svc.nowFunc()
}

func isTokenRejected(err error) bool {
	switch errors.Cause(err) {
	case ErrInvalidToken, ErrTokenExpired, ErrRefreshExpired, ErrSessionRevoked, ErrAccountInactive:
		return true
	}
	return false
}
