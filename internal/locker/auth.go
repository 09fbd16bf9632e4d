package locker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"brokergate/internal/model"
)

const (
	_tokenURL       = "/auth/jwt/token"
	_refreshURL     = "/auth/jwt/refresh"
	_allAccountsURL = "/auth/jwt/all-accounts"
)

// Authenticate exchanges broker credentials for a fresh token pair.
// A 400 means bad credentials and is surfaced as ErrAuthentication.
func (c *Client) Authenticate(ctx context.Context, email, password, server string, environment model.Environment) (model.TokenPair, error) {
	c.take()

	var pair model.TokenPair
	resp, err := c.env(environment).R().
		SetContext(ctx).
		SetBody(map[string]string{
			"email":    email,
			"password": password,
			"server":   server,
		}).
		SetResult(&pair).
		SetError(&upstreamFault{}).
		Post(_tokenURL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: can't send auth request: %s", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized {
			return model.TokenPair{}, fmt.Errorf("%w: %s", ErrAuthentication, upstreamErr(resp))
		}
		return model.TokenPair{}, upstreamErr(resp)
	}
	if pair.Empty() {
		return model.TokenPair{}, fmt.Errorf("%w: auth reply carries no tokens", ErrAuthentication)
	}

	return pair, nil
}

// Refresh trades a refresh token for a new pair. Broker implementations
// rotate refresh tokens, so the previous pair is dead after this succeeds.
func (c *Client) Refresh(ctx context.Context, refreshToken string, environment model.Environment) (model.TokenPair, error) {
	c.take()

	var pair model.TokenPair
	resp, err := c.env(environment).R().
		SetContext(ctx).
		SetBody(map[string]string{"refreshToken": refreshToken}).
		SetResult(&pair).
		SetError(&upstreamFault{}).
		Post(_refreshURL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: can't send refresh request: %s", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized {
			return model.TokenPair{}, fmt.Errorf("%w: refresh token rejected: %s", ErrAuthentication, upstreamErr(resp))
		}
		return model.TokenPair{}, upstreamErr(resp)
	}
	if pair.Empty() {
		return model.TokenPair{}, fmt.Errorf("%w: refresh reply carries no tokens", ErrAuthentication)
	}

	return pair, nil
}

type allAccountsResponse struct {
	Accounts []wireAccount `json:"accounts"`
}

// wireAccount tolerates the broker sending account ids as numbers.
type wireAccount struct {
	ID       json.Number `json:"id"`
	Name     string      `json:"name"`
	Currency string      `json:"currency"`
	Status   string      `json:"status"`
	AccNum   json.Number `json:"accNum"`
	Balance  json.Number `json:"accountBalance"`
}

// AllAccounts lists the sub-accounts reachable with the given access token.
func (c *Client) AllAccounts(ctx context.Context, accessToken string, environment model.Environment) ([]model.TradingAccount, error) {
	c.take()

	var out allAccountsResponse
	resp, err := c.env(environment).R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&out).
		SetError(&upstreamFault{}).
		Get(_allAccountsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: can't request accounts: %s", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, upstreamErr(resp)
	}

	accounts := make([]model.TradingAccount, 0, len(out.Accounts))
	for _, a := range out.Accounts {
		accounts = append(accounts, model.TradingAccount{
			ID:       a.ID.String(),
			Name:     a.Name,
			Currency: a.Currency,
			Status:   a.Status,
			AccNum:   a.AccNum.String(),
			Balance:  a.Balance.String(),
		})
	}

	return accounts, nil
}
