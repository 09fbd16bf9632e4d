package model

import (
	"time"
)

type Environment string

const (
	Demo Environment = "demo"
	Live Environment = "live"
)

func (e Environment) Valid() bool {
	return e == Demo || e == Live
}

type ConnectionStatus string

const (
	ConnectionActive      ConnectionStatus = "active"
	ConnectionNeedsReauth ConnectionStatus = "needs_reauth"
)

// BrokerConnection is one set of broker credentials plus the token pair
// last issued for them. Password is never serialized outward.
type BrokerConnection struct {
	ID          int64            `db:"id" json:"id"`
	Email       string           `db:"email" json:"email"`
	Password    string           `db:"password" json:"-"`
	Server      string           `db:"server" json:"server"`
	Environment Environment      `db:"environment" json:"environment"`
	Status      ConnectionStatus `db:"status" json:"status"`

	AccessToken   string `db:"access_token" json:"-"`
	RefreshToken  string `db:"refresh_token" json:"-"`
	TokenExpireMS int64  `db:"token_expire_ms" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (c *BrokerConnection) TokenPair() TokenPair {
	return TokenPair{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ExpireMS:     c.TokenExpireMS,
	}
}

// TokenPair is the broker-issued access/refresh pair. It is replaced
// wholesale on every refresh, never field by field.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpireMS     int64  `json:"expireDate"`
}

func (t TokenPair) Empty() bool {
	return t.AccessToken == "" || t.RefreshToken == ""
}

// Fresh reports whether the access token is still usable given a safety
// margin before the broker-declared expiry.
func (t TokenPair) Fresh(now time.Time, margin time.Duration) bool {
	if t.Empty() || t.ExpireMS <= 0 {
		return false
	}
	return now.UnixMilli() < t.ExpireMS-margin.Milliseconds()
}

// TradingAccount is a read-only mirror of one upstream sub-account.
// ID goes into URL paths, AccNum into the accNum header; the two must
// always travel as the pair the broker issued them as.
type TradingAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	AccNum   string `json:"accNum"`
	Balance  string `json:"accountBalance"`
}

// AccountKey is the (accountId, accNum) pairing required on every trade call.
type AccountKey struct {
	AccountID string
	AccNum    string
}
