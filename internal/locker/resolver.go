package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"brokergate/internal/logger"
	"brokergate/internal/model"
)

// Resolver maps a broker connection to its trading accounts and, from
// there, to the (accountId, accNum) pair every trade call needs. The
// account list is an upstream mirror cached for a short TTL; it is never
// locally authoritative.
type Resolver struct {
	client *Client
	tokens *TokenManager
	cache  *ristretto.Cache
	ttl    time.Duration
	logger logger.Logger
}

func NewResolver(client *Client, tokens *TokenManager, ttl time.Duration, logger logger.Logger) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 12,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: can't init account cache", err)
	}

	return &Resolver{
		client: client,
		tokens: tokens,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Resolve lists the trading accounts for the connection, serving from the
// short-TTL mirror when possible.
func (r *Resolver) Resolve(ctx context.Context, conn *model.BrokerConnection) ([]model.TradingAccount, error) {
	if v, ok := r.cache.Get(conn.ID); ok {
		return v.([]model.TradingAccount), nil
	}

	token, err := r.tokens.EnsureValidToken(ctx, conn)
	if err != nil {
		return nil, err
	}

	accounts, err := r.client.AllAccounts(ctx, token, conn.Environment)
	if err != nil {
		var uerr *UpstreamError
		if !errors.As(err, &uerr) || uerr.StatusCode != 401 {
			return nil, fmt.Errorf("%w: can't list accounts", err)
		}
		// Token died mid-flight; refresh once and retry.
		if token, err = r.tokens.ForceRefresh(ctx, conn); err != nil {
			return nil, err
		}
		if accounts, err = r.client.AllAccounts(ctx, token, conn.Environment); err != nil {
			return nil, fmt.Errorf("%w: can't list accounts after token refresh", err)
		}
	}

	r.cache.SetWithTTL(conn.ID, accounts, 1, r.ttl)
	return accounts, nil
}

// Pair returns the accNum pairing for an account the connection actually
// owns. A wrong pairing must fail here rather than silently address another
// account upstream.
func (r *Resolver) Pair(ctx context.Context, conn *model.BrokerConnection, accountID string) (model.AccountKey, error) {
	accounts, err := r.Resolve(ctx, conn)
	if err != nil {
		return model.AccountKey{}, err
	}

	for _, a := range accounts {
		if a.ID == accountID {
			return model.AccountKey{AccountID: a.ID, AccNum: a.AccNum}, nil
		}
	}

	return model.AccountKey{}, fmt.Errorf("%w: account %s not found on connection %d", ErrAccountMismatch, accountID, conn.ID)
}

// Invalidate drops the cached mirror, e.g. after a credential refresh.
func (r *Resolver) Invalidate(connectionID int64) {
	r.cache.Del(connectionID)
}
