package locker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"resty.dev/v3"

	"brokergate/internal/config"
	"brokergate/internal/logger"
	"brokergate/internal/model"
)

const (
	_tradeConfigURL = "/trade/config"
	_historyURL     = "/trade/history"
)

// Gateway composes trade-API calls for a resolved account: attaches the
// token and accNum header, enforces locally known constraints before
// sending, and normalizes the tuple-array replies into named records.
//
// Mutating calls are not idempotent upstream. The gateway never resends
// them on timeout; the error goes back to the caller, who must re-query
// state before retrying.
type Gateway struct {
	client   *Client
	tokens   *TokenManager
	resolver *Resolver
	cfg      config.GatewayConfig
	logger   logger.Logger

	mu      sync.RWMutex
	schemas map[string]*ColumnSchema
	details map[string]model.InstrumentDetail
}

func NewGateway(client *Client, tokens *TokenManager, resolver *Resolver, cfg config.GatewayConfig, logger logger.Logger) *Gateway {
	return &Gateway{
		client:   client,
		tokens:   tokens,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		schemas:  make(map[string]*ColumnSchema),
		details:  make(map[string]model.InstrumentDetail),
	}
}

// Resolver exposes the account resolver for facade-level lookups.
func (g *Gateway) Resolver() *Resolver {
	return g.resolver
}

// withAuth runs one upstream call with a valid token, refreshing and
// retrying exactly once when the upstream answers 401 on a token that
// looked fresh locally. A second 401 is an authentication failure.
func (g *Gateway) withAuth(ctx context.Context, conn *model.BrokerConnection, do func(token string) (*resty.Response, error)) (*resty.Response, error) {
	token, err := g.tokens.EnsureValidToken(ctx, conn)
	if err != nil {
		return nil, err
	}

	resp, err := do(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransient, err)
	}
	if resp.StatusCode() != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if token, err = g.tokens.ForceRefresh(ctx, conn); err != nil {
		return nil, err
	}
	resp, err = do(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransient, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: upstream rejected a freshly refreshed token", ErrAuthentication)
	}
	return resp, nil
}

// Schema returns the column schema for the account, fetching /trade/config
// on first use.
func (g *Gateway) Schema(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey) (*ColumnSchema, error) {
	cacheKey := string(conn.Environment) + ":" + key.AccNum

	g.mu.RLock()
	schema, ok := g.schemas[cacheKey]
	g.mu.RUnlock()
	if ok {
		return schema, nil
	}

	var out envelope[tradeConfigPayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get(_tradeConfigURL)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: can't fetch trade config", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, upstreamErr(resp)
	}

	schema = newColumnSchema(out.D)
	g.mu.Lock()
	g.schemas[cacheKey] = schema
	g.mu.Unlock()

	return schema, nil
}

type instrumentsPayload struct {
	Instruments []model.Instrument `json:"instruments"`
}

// Instruments lists the symbols tradable on the account.
func (g *Gateway) Instruments(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey) ([]model.Instrument, error) {
	var out envelope[instrumentsPayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get("/trade/accounts/" + key.AccountID + "/instruments")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: can't fetch instruments", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, upstreamErr(resp)
	}
	if out.S == "error" {
		return nil, &UpstreamError{StatusCode: resp.StatusCode(), Message: out.ErrMsg}
	}

	return out.D.Instruments, nil
}

// FindInstrument resolves a symbol name to its instrument, case-insensitively.
func (g *Gateway) FindInstrument(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, symbol string) (model.Instrument, error) {
	instruments, err := g.Instruments(ctx, conn, key)
	if err != nil {
		return model.Instrument{}, err
	}

	for _, inst := range instruments {
		if strings.EqualFold(inst.Name, symbol) {
			return inst, nil
		}
	}

	return model.Instrument{}, validationErr("symbol %q not found on account %s", symbol, key.AccountID)
}

// InstrumentDetail fetches lot sizing and tick tables for one instrument.
// Details are immutable per broker configuration and cached after first use.
func (g *Gateway) InstrumentDetail(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, tradableInstrumentID, routeID int64) (model.InstrumentDetail, error) {
	cacheKey := string(conn.Environment) + ":" + key.AccNum + ":" + strconv.FormatInt(tradableInstrumentID, 10)

	g.mu.RLock()
	detail, ok := g.details[cacheKey]
	g.mu.RUnlock()
	if ok {
		return detail, nil
	}

	var out envelope[model.InstrumentDetail]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetQueryParams(map[string]string{
				"routeId": strconv.FormatInt(routeID, 10),
				"locale":  "en",
			}).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get("/trade/instruments/" + strconv.FormatInt(tradableInstrumentID, 10))
	})
	if err != nil {
		return model.InstrumentDetail{}, fmt.Errorf("%w: can't fetch instrument detail", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return model.InstrumentDetail{}, upstreamErr(resp)
	}

	g.mu.Lock()
	g.details[cacheKey] = out.D
	g.mu.Unlock()

	return out.D, nil
}

// HistoryRequest describes one bar query. Either Count or an explicit
// FromMS/ToMS window must be set, not both.
type HistoryRequest struct {
	TradableInstrumentID int64
	RouteID              int64
	Timeframe            string
	Count                int
	FromMS               int64
	ToMS                 int64
	Continuous           bool
}

type historyPayload struct {
	BarDetails []model.Bar `json:"barDetails"`
	S          string      `json:"s"`
	NextBar    int64       `json:"nb"`
}

// History fetches OHLCV bars. Windows spanning more than the configured
// bar cap are rejected locally: the upstream enforces the same limit and
// the round trip would be wasted.
//
// An upstream "no_data" status is a distinct outcome, not an error; the
// NextBarMS hint points at adjacent data when the broker knows of any.
func (g *Gateway) History(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, req HistoryRequest) (model.BarHistory, error) {
	if req.TradableInstrumentID <= 0 || req.RouteID <= 0 {
		return model.BarHistory{}, validationErr("history requires tradableInstrumentId and routeId")
	}

	resolution, ok := resolutionFor(req.Timeframe)
	if !ok {
		return model.BarHistory{}, validationErr("unknown timeframe %q", req.Timeframe)
	}

	var fromMS, toMS int64
	switch {
	case req.FromMS > 0 || req.ToMS > 0:
		if req.Count > 0 {
			return model.BarHistory{}, validationErr("count and explicit window are mutually exclusive")
		}
		fromMS, toMS = req.FromMS, req.ToMS
		if toMS <= 0 {
			toMS = time.Now().UnixMilli()
		}
		if fromMS <= 0 || fromMS >= toMS {
			return model.BarHistory{}, validationErr("history window is empty")
		}
	default:
		count := req.Count
		if count <= 0 {
			count = g.cfg.DefaultBarCount
		}
		if count > g.cfg.MaxBarsPerRequest {
			return model.BarHistory{}, validationErr("count %d exceeds the %d-bar limit", count, g.cfg.MaxBarsPerRequest)
		}
		fromMS, toMS = historyWindow(time.Now(), resolution, count, req.Continuous)
	}

	if bars := (toMS - fromMS) / barDuration(resolution).Milliseconds(); bars > int64(g.cfg.MaxBarsPerRequest) {
		return model.BarHistory{}, validationErr("window spans %d bars, limit is %d", bars, g.cfg.MaxBarsPerRequest)
	}

	var out envelope[historyPayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetQueryParams(map[string]string{
				"tradableInstrumentId": strconv.FormatInt(req.TradableInstrumentID, 10),
				"routeId":              strconv.FormatInt(req.RouteID, 10),
				"resolution":           resolution,
				"from":                 strconv.FormatInt(fromMS, 10),
				"to":                   strconv.FormatInt(toMS, 10),
			}).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get(_historyURL)
	})
	if err != nil {
		return model.BarHistory{}, fmt.Errorf("%w: can't fetch history", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return model.BarHistory{}, upstreamErr(resp)
	}

	history := model.BarHistory{
		Bars:      out.D.BarDetails,
		Status:    out.D.S,
		NextBarMS: out.D.NextBar,
	}
	if history.Status == "" {
		history.Status = model.HistoryOK
	}

	// Count-based queries widen the window to survive weekend gaps; trim
	// back to the most recent bars actually requested.
	if req.Count > 0 && len(history.Bars) > req.Count {
		history.Bars = history.Bars[len(history.Bars)-req.Count:]
	}

	return history, nil
}

type accountStatePayload struct {
	AccountDetailsData []interface{} `json:"accountDetailsData"`
}

// AccountState returns the account's margin/balance snapshot keyed by the
// broker-configured column ids.
func (g *Gateway) AccountState(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey) (model.AccountState, error) {
	schema, err := g.Schema(ctx, conn, key)
	if err != nil {
		return nil, err
	}

	var out envelope[accountStatePayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get("/trade/accounts/" + key.AccountID + "/state")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: can't fetch account state", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, upstreamErr(resp)
	}

	state, err := schema.decodeAccountState(out.D.AccountDetailsData)
	if err != nil {
		return nil, fmt.Errorf("%w: can't decode account state", err)
	}
	return state, nil
}

type ordersPayload struct {
	Orders [][]interface{} `json:"orders"`
}

// Orders lists the account's pending (non-final) orders.
func (g *Gateway) Orders(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey) ([]model.Order, error) {
	schema, err := g.Schema(ctx, conn, key)
	if err != nil {
		return nil, err
	}

	var out envelope[ordersPayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get("/trade/accounts/" + key.AccountID + "/orders")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: can't fetch orders", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, upstreamErr(resp)
	}

	orders := make([]model.Order, 0, len(out.D.Orders))
	for _, values := range out.D.Orders {
		order, derr := schema.decodeOrder(values)
		if derr != nil {
			g.logger.Warnf("%s: skipping undecodable order row", derr)
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

type ordersHistoryPayload struct {
	OrdersHistory [][]interface{} `json:"ordersHistory"`
	HasMore       bool            `json:"hasMore"`
}

// OrdersHistory lists final orders in the window; hasMore signals upstream
// pagination.
func (g *Gateway) OrdersHistory(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, fromMS, toMS int64) ([]model.Order, bool, error) {
	schema, err := g.Schema(ctx, conn, key)
	if err != nil {
		return nil, false, err
	}

	params := map[string]string{}
	if fromMS > 0 {
		params["from"] = strconv.FormatInt(fromMS, 10)
	}
	if toMS > 0 {
		params["to"] = strconv.FormatInt(toMS, 10)
	}

	var out envelope[ordersHistoryPayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetQueryParams(params).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get("/trade/accounts/" + key.AccountID + "/ordersHistory")
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: can't fetch orders history", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, false, upstreamErr(resp)
	}

	orders := make([]model.Order, 0, len(out.D.OrdersHistory))
	for _, values := range out.D.OrdersHistory {
		order, derr := schema.decodeHistoryOrder(values)
		if derr != nil {
			g.logger.Warnf("%s: skipping undecodable order history row", derr)
			continue
		}
		orders = append(orders, order)
	}
	return orders, out.D.HasMore, nil
}

type placeOrderPayload struct {
	OrderID json.Number `json:"orderId"`
}

// PlaceOrder validates the request locally and submits it. Validity rules
// are enforced before the call: market orders are immediate-or-cancel,
// resting orders are good-till-cancelled, and each resting type must carry
// its trigger price.
func (g *Gateway) PlaceOrder(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, req model.OrderRequest) (model.Order, error) {
	if err := validateOrder(&req); err != nil {
		return model.Order{}, err
	}
	g.snapPrices(ctx, conn, key, &req)

	body := map[string]interface{}{
		"tradableInstrumentId": req.TradableInstrumentID,
		"routeId":              req.RouteID,
		"side":                 req.Side,
		"type":                 req.Type,
		"qty":                  req.Qty,
		"price":                req.Price,
		"validity":             req.Validity,
	}
	if req.StopPrice > 0 {
		body["stopPrice"] = req.StopPrice
	}
	if req.StopLoss != nil {
		body["stopLoss"] = *req.StopLoss
		body["stopLossType"] = "absolute"
	}
	if req.TakeProfit != nil {
		body["takeProfit"] = *req.TakeProfit
		body["takeProfitType"] = "absolute"
	}
	if req.StrategyID != "" {
		body["strategyId"] = req.StrategyID
	}

	requestTag := uuid.NewString()
	g.logger.Infof("placing %s %s order [%s] on account %s, qty %v", req.Side, req.Type, requestTag, key.AccountID, req.Qty)

	var out envelope[placeOrderPayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetBody(body).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Post("/trade/accounts/" + key.AccountID + "/orders")
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("%w: order [%s] outcome unknown, re-query before resubmitting", err, requestTag)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return model.Order{}, upstreamErr(resp)
	}
	if out.S == "error" {
		return model.Order{}, &UpstreamError{StatusCode: resp.StatusCode(), Message: out.ErrMsg}
	}

	g.logger.Infof("order [%s] accepted upstream as %s", requestTag, out.D.OrderID.String())

	return model.Order{
		ID:                   out.D.OrderID.String(),
		TradableInstrumentID: req.TradableInstrumentID,
		RouteID:              req.RouteID,
		Side:                 req.Side,
		Type:                 req.Type,
		Status:               model.OrderNew,
		Qty:                  req.Qty,
		Price:                req.Price,
		StopPrice:            req.StopPrice,
		Validity:             req.Validity,
	}, nil
}

// ModifyOrder patches a pending order's price, trigger or protective levels.
func (g *Gateway) ModifyOrder(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, orderID string, mod model.OrderModification) error {
	if orderID == "" {
		return validationErr("empty order id")
	}
	if mod.Empty() {
		return validationErr("nothing to modify")
	}

	body := map[string]interface{}{}
	if mod.Price != nil {
		body["price"] = *mod.Price
	}
	if mod.StopPrice != nil {
		body["stopPrice"] = *mod.StopPrice
	}
	if mod.Qty != nil {
		body["qty"] = *mod.Qty
	}
	if mod.StopLoss != nil {
		body["stopLoss"] = *mod.StopLoss
		body["stopLossType"] = "absolute"
	}
	if mod.TakeProfit != nil {
		body["takeProfit"] = *mod.TakeProfit
		body["takeProfitType"] = "absolute"
	}

	return g.mutate(ctx, conn, key, http.MethodPatch, "/trade/orders/"+orderID, body, nil)
}

// CancelOrder cancels one pending order.
func (g *Gateway) CancelOrder(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, orderID string) error {
	if orderID == "" {
		return validationErr("empty order id")
	}
	return g.mutate(ctx, conn, key, http.MethodDelete, "/trade/orders/"+orderID, nil, nil)
}

// CancelAllOrders cancels every pending order on the account, optionally
// only for one instrument.
func (g *Gateway) CancelAllOrders(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, tradableInstrumentID int64) error {
	params := map[string]string{}
	if tradableInstrumentID > 0 {
		params["tradableInstrumentId"] = strconv.FormatInt(tradableInstrumentID, 10)
	}
	return g.mutate(ctx, conn, key, http.MethodDelete, "/trade/accounts/"+key.AccountID+"/orders", nil, params)
}

type positionsPayload struct {
	Positions [][]interface{} `json:"positions"`
}

// Positions lists the account's open positions.
func (g *Gateway) Positions(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey) ([]model.Position, error) {
	schema, err := g.Schema(ctx, conn, key)
	if err != nil {
		return nil, err
	}

	var out envelope[positionsPayload]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Get("/trade/accounts/" + key.AccountID + "/positions")
	})
	if err != nil {
		return nil, fmt.Errorf("%w: can't fetch positions", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, upstreamErr(resp)
	}

	positions := make([]model.Position, 0, len(out.D.Positions))
	for _, values := range out.D.Positions {
		position, derr := schema.decodePosition(values)
		if derr != nil {
			g.logger.Warnf("%s: skipping undecodable position row", derr)
			continue
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// ClosePosition closes a position fully (qty 0) or partially.
func (g *Gateway) ClosePosition(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, positionID string, qty float64) error {
	if positionID == "" {
		return validationErr("empty position id")
	}
	if qty < 0 {
		return validationErr("close qty can't be negative")
	}
	return g.mutate(ctx, conn, key, http.MethodDelete, "/trade/positions/"+positionID, map[string]interface{}{"qty": qty}, nil)
}

// ModifyPosition adjusts protective levels on an open position.
func (g *Gateway) ModifyPosition(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, positionID string, mod model.PositionModification) error {
	if positionID == "" {
		return validationErr("empty position id")
	}
	if mod.Empty() {
		return validationErr("nothing to modify")
	}

	body := map[string]interface{}{}
	if mod.StopLoss != nil {
		body["stopLoss"] = *mod.StopLoss
	}
	if mod.TakeProfit != nil {
		body["takeProfit"] = *mod.TakeProfit
	}
	if mod.TrailingOffset != nil {
		body["trailingOffset"] = *mod.TrailingOffset
	}

	return g.mutate(ctx, conn, key, http.MethodPatch, "/trade/positions/"+positionID, body, nil)
}

// CloseAllPositions asks the upstream to close every open position on the
// account. The upstream tries IOC then falls back to GTC with possible
// delay, so a success here means accepted for processing, not completed.
// It returns the number of positions the broker acknowledged.
func (g *Gateway) CloseAllPositions(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, tradableInstrumentID int64) (int, error) {
	params := map[string]string{}
	if tradableInstrumentID > 0 {
		params["tradableInstrumentId"] = strconv.FormatInt(tradableInstrumentID, 10)
	}

	var out envelope[positionsPayload]
	requestTag := uuid.NewString()
	g.logger.Infof("closing all positions [%s] on account %s", requestTag, key.AccountID)

	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		return g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetQueryParams(params).
			SetResult(&out).
			SetError(&upstreamFault{}).
			Delete("/trade/accounts/" + key.AccountID + "/positions")
	})
	if err != nil {
		return 0, fmt.Errorf("%w: close-all [%s] outcome unknown, re-query positions", err, requestTag)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, upstreamErr(resp)
	}
	if out.S == "error" {
		return 0, &UpstreamError{StatusCode: resp.StatusCode(), Message: out.ErrMsg}
	}

	return len(out.D.Positions), nil
}

// mutate runs one non-idempotent call. Transport failures surface as-is:
// the upstream may or may not have executed the call, and resending
// blindly could double it.
func (g *Gateway) mutate(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, method, path string, body map[string]interface{}, params map[string]string) error {
	requestTag := uuid.NewString()
	g.logger.Infof("%s %s [%s]", method, path, requestTag)

	var out envelope[json.RawMessage]
	resp, err := g.withAuth(ctx, conn, func(token string) (*resty.Response, error) {
		g.client.take()
		req := g.client.env(conn.Environment).R().
			SetContext(ctx).
			SetAuthToken(token).
			SetHeader("accNum", key.AccNum).
			SetResult(&out).
			SetError(&upstreamFault{})
		if body != nil {
			req.SetBody(body)
		}
		if len(params) > 0 {
			req.SetQueryParams(params)
		}
		switch method {
		case http.MethodDelete:
			return req.Delete(path)
		case http.MethodPatch:
			return req.Patch(path)
		default:
			return req.Post(path)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: mutation [%s] outcome unknown, re-query before retrying", err, requestTag)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return upstreamErr(resp)
	}
	if out.S == "error" {
		return &UpstreamError{StatusCode: resp.StatusCode(), Message: out.ErrMsg}
	}
	return nil
}

// snapPrices aligns limit and stop trigger prices to the instrument's tick
// grid; off-tick prices get rejected upstream. Best effort: when the detail
// fetch fails the order goes out with the caller's prices.
func (g *Gateway) snapPrices(ctx context.Context, conn *model.BrokerConnection, key model.AccountKey, req *model.OrderRequest) {
	if req.Price <= 0 && req.StopPrice <= 0 {
		return
	}

	detail, err := g.InstrumentDetail(ctx, conn, key, req.TradableInstrumentID, req.RouteID)
	if err != nil {
		g.logger.Warnf("%s: can't fetch tick table for instrument %d, sending prices as-is", err, req.TradableInstrumentID)
		return
	}

	if req.Price > 0 {
		req.Price = model.RoundToStep(req.Price, detail.TickSizeAt(req.Price))
	}
	if req.StopPrice > 0 {
		req.StopPrice = model.RoundToStep(req.StopPrice, detail.TickSizeAt(req.StopPrice))
	}
}

// validateOrder enforces the broker's published order constraints before
// the request leaves the process.
func validateOrder(req *model.OrderRequest) error {
	if req.TradableInstrumentID <= 0 {
		return validationErr("tradableInstrumentId is required")
	}
	if req.RouteID <= 0 {
		return validationErr("routeId is required")
	}
	if req.Qty <= 0 {
		return validationErr("qty must be positive")
	}
	if req.Side != model.Buy && req.Side != model.Sell {
		return validationErr("side must be buy or sell, got %q", req.Side)
	}

	switch req.Type {
	case model.Market:
		if req.Validity == "" {
			req.Validity = model.IOC
		}
		if req.Validity != model.IOC {
			return validationErr("market orders must use IOC validity, got %q", req.Validity)
		}
	case model.Limit:
		if req.Validity == "" {
			req.Validity = model.GTC
		}
		if req.Validity != model.GTC {
			return validationErr("limit orders must use GTC validity, got %q", req.Validity)
		}
		if req.Price <= 0 {
			return validationErr("limit orders require a price")
		}
	case model.Stop:
		if req.Validity == "" {
			req.Validity = model.GTC
		}
		if req.Validity != model.GTC {
			return validationErr("stop orders must use GTC validity, got %q", req.Validity)
		}
		if req.StopPrice <= 0 {
			return validationErr("stop orders require a stopPrice")
		}
	default:
		return validationErr("unknown order type %q", req.Type)
	}

	return nil
}
