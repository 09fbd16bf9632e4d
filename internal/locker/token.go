package locker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"brokergate/internal/logger"
	"brokergate/internal/model"
)

// TokenStore persists the token pair and connection status so tokens
// survive restarts. The TokenManager remains usable when persistence
// fails; it logs and carries on with the in-memory pair.
type TokenStore interface {
	SaveTokenPair(ctx context.Context, connectionID int64, pair model.TokenPair) error
	SetStatus(ctx context.Context, connectionID int64, status model.ConnectionStatus) error
}

// TokenManager keeps one valid access token per broker connection.
//
// Refresh is single-flight per connection: concurrent requests that find an
// expiring token share one refresh call instead of racing, because refresh
// token rotation invalidates every earlier refresh token.
type TokenManager struct {
	client *Client
	store  TokenStore
	logger logger.Logger
	margin time.Duration

	group singleflight.Group

	mu    sync.RWMutex
	pairs map[int64]model.TokenPair
}

func NewTokenManager(client *Client, store TokenStore, margin time.Duration, logger logger.Logger) *TokenManager {
	return &TokenManager{
		client: client,
		store:  store,
		logger: logger,
		margin: margin,
		pairs:  make(map[int64]model.TokenPair),
	}
}

// EnsureValidToken returns an access token usable right now. It refreshes
// when the cached token is inside the safety margin of its expiry, falling
// back to a one-shot credential exchange when the refresh token is dead.
func (m *TokenManager) EnsureValidToken(ctx context.Context, conn *model.BrokerConnection) (string, error) {
	if pair := m.cached(conn); pair.Fresh(time.Now(), m.margin) {
		return pair.AccessToken, nil
	}
	return m.refresh(ctx, conn, false)
}

// ForceRefresh discards the cached token even if it looks fresh. Used after
// the upstream rejects a request with 401 despite a non-expired expireDate.
func (m *TokenManager) ForceRefresh(ctx context.Context, conn *model.BrokerConnection) (string, error) {
	return m.refresh(ctx, conn, true)
}

// Forget drops the in-memory pair, e.g. after credential rotation.
func (m *TokenManager) Forget(connectionID int64) {
	m.mu.Lock()
	delete(m.pairs, connectionID)
	m.mu.Unlock()
}

func (m *TokenManager) cached(conn *model.BrokerConnection) model.TokenPair {
	m.mu.RLock()
	pair, ok := m.pairs[conn.ID]
	m.mu.RUnlock()
	if ok {
		return pair
	}

	// Seed from the persisted pair the connection was loaded with.
	pair = conn.TokenPair()
	if !pair.Empty() {
		m.mu.Lock()
		if existing, ok := m.pairs[conn.ID]; ok {
			pair = existing
		} else {
			m.pairs[conn.ID] = pair
		}
		m.mu.Unlock()
	}
	return pair
}

func (m *TokenManager) refresh(ctx context.Context, conn *model.BrokerConnection, force bool) (string, error) {
	token, err, _ := m.group.Do(strconv.FormatInt(conn.ID, 10), func() (interface{}, error) {
		// A concurrent caller may have refreshed while we waited to enter.
		if !force {
			if pair := m.cached(conn); pair.Fresh(time.Now(), m.margin) {
				return pair.AccessToken, nil
			}
		}

		pair, err := m.exchange(ctx, conn)
		if err != nil {
			return "", err
		}

		m.publish(ctx, conn.ID, pair)
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// exchange runs the refresh flow: refresh token first, then exactly one
// credential re-auth when the refresh token is rejected. A second
// authentication failure marks the connection NeedsReauth.
func (m *TokenManager) exchange(ctx context.Context, conn *model.BrokerConnection) (model.TokenPair, error) {
	current := m.cached(conn)

	if current.RefreshToken != "" {
		pair, err := m.client.Refresh(ctx, current.RefreshToken, conn.Environment)
		if err == nil {
			return pair, nil
		}
		if !errors.Is(err, ErrAuthentication) {
			return model.TokenPair{}, fmt.Errorf("%w: can't refresh token", err)
		}
		m.logger.Warnf("refresh token rejected for connection %d, re-authenticating", conn.ID)
	}

	pair, err := m.client.Authenticate(ctx, conn.Email, conn.Password, conn.Server, conn.Environment)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			if serr := m.store.SetStatus(ctx, conn.ID, model.ConnectionNeedsReauth); serr != nil {
				m.logger.Errorf("%s: can't mark connection %d for re-auth", serr, conn.ID)
			}
		}
		return model.TokenPair{}, fmt.Errorf("%w: can't re-authenticate connection %d", err, conn.ID)
	}

	return pair, nil
}

func (m *TokenManager) publish(ctx context.Context, connectionID int64, pair model.TokenPair) {
	m.mu.Lock()
	m.pairs[connectionID] = pair
	m.mu.Unlock()

	if err := m.store.SaveTokenPair(ctx, connectionID, pair); err != nil {
		m.logger.Errorf("%s: can't persist token pair for connection %d", err, connectionID)
	}
}
