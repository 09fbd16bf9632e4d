package model

import "strings"

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
	Stop   OrderType = "stop"
)

type Validity string

const (
	IOC Validity = "IOC"
	GTC Validity = "GTC"
)

type OrderStatus string

const (
	OrderNew      OrderStatus = "New"
	OrderFilled   OrderStatus = "Filled"
	OrderCanceled OrderStatus = "Canceled"
	OrderRejected OrderStatus = "Rejected"
)

// Order is the named-field view of an upstream order row. Upstream sends
// orders as positional arrays; field meaning comes from the /trade/config
// column schema, never from hardcoded offsets.
type Order struct {
	ID                   string      `json:"id"`
	TradableInstrumentID int64       `json:"tradableInstrumentId"`
	RouteID              int64       `json:"routeId"`
	Side                 Side        `json:"side"`
	Type                 OrderType   `json:"type"`
	Status               OrderStatus `json:"status"`
	Qty                  float64     `json:"qty"`
	FilledQty            float64     `json:"filledQty"`
	Price                float64     `json:"price"`
	AvgPrice             float64     `json:"avgPrice"`
	StopPrice            float64     `json:"stopPrice"`
	StopLoss             float64     `json:"stopLoss"`
	TakeProfit           float64     `json:"takeProfit"`
	Validity             Validity    `json:"validity"`
	CreatedMS            int64       `json:"createdDate"`
}

// Position is the named-field view of an upstream position row.
type Position struct {
	ID                   string  `json:"id"`
	TradableInstrumentID int64   `json:"tradableInstrumentId"`
	RouteID              int64   `json:"routeId"`
	Side                 Side    `json:"side"`
	Qty                  float64 `json:"qty"`
	AvgPrice             float64 `json:"avgPrice"`
	StopLossID           string  `json:"stopLossId"`
	TakeProfitID         string  `json:"takeProfitId"`
	UnrealizedPnL        float64 `json:"unrealizedPl"`
	OpenMS               int64   `json:"openDate"`
}

type RouteType string

const (
	RouteInfo  RouteType = "INFO"
	RouteTrade RouteType = "TRADE"
)

type Route struct {
	ID   int64     `json:"id"`
	Type RouteType `json:"type"`
}

// Instrument is one tradable symbol on an account.
type Instrument struct {
	TradableInstrumentID int64   `json:"tradableInstrumentId"`
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	Type                 string  `json:"type"`
	Routes               []Route `json:"routes"`
}

// Route picks the route of the wanted type, falling back to the first one.
func (i Instrument) Route(t RouteType) (int64, bool) {
	for _, r := range i.Routes {
		if r.Type == t {
			return r.ID, true
		}
	}
	if len(i.Routes) > 0 {
		return i.Routes[0].ID, true
	}
	return 0, false
}

// Continuous reports whether the instrument trades around the clock,
// which changes how far back a count-based bar window must reach.
func (i Instrument) Continuous() bool {
	return strings.Contains(strings.ToUpper(i.Type), "CRYPTO")
}

// InstrumentDetail carries the lot sizing and tick table metadata from
// GET /trade/instruments/{id}.
type InstrumentDetail struct {
	TradableInstrumentID int64      `json:"tradableInstrumentId"`
	Name                 string     `json:"name"`
	Type                 string     `json:"type"`
	LotSize              float64    `json:"lotSize"`
	LotStep              float64    `json:"lotStep"`
	MinLot               float64    `json:"minLot"`
	MaxLot               float64    `json:"maxLot"`
	TickSizes            []TickRule `json:"tickSizes"`
}

type TickRule struct {
	MinPrice float64 `json:"minPrice"`
	TickSize float64 `json:"tickSize"`
}

type Bar struct {
	TimeMS int64   `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

const (
	HistoryOK     = "ok"
	HistoryNoData = "no_data"
)

// BarHistory is the outcome of one history query. Status "no_data" is a
// normal outcome, not an error: the requested window is empty and NextBarMS
// points at the closest bar outside it when the upstream knows one.
type BarHistory struct {
	Bars      []Bar  `json:"bars"`
	Status    string `json:"status"`
	NextBarMS int64  `json:"nextBar,omitempty"`
}

// OrderRequest is a locally validated order before composition into an
// upstream call.
type OrderRequest struct {
	TradableInstrumentID int64     `json:"tradableInstrumentId"`
	RouteID              int64     `json:"routeId"`
	Side                 Side      `json:"side"`
	Type                 OrderType `json:"type"`
	Qty                  float64   `json:"qty"`
	Price                float64   `json:"price,omitempty"`
	StopPrice            float64   `json:"stopPrice,omitempty"`
	Validity             Validity  `json:"validity"`
	StopLoss             *float64  `json:"stopLoss,omitempty"`
	TakeProfit           *float64  `json:"takeProfit,omitempty"`
	StrategyID           string    `json:"strategyId,omitempty"`
}

// OrderModification carries the mutable fields of a pending order.
// Nil means leave untouched.
type OrderModification struct {
	Price      *float64 `json:"price,omitempty"`
	StopPrice  *float64 `json:"stopPrice,omitempty"`
	Qty        *float64 `json:"qty,omitempty"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

func (m OrderModification) Empty() bool {
	return m.Price == nil && m.StopPrice == nil && m.Qty == nil && m.StopLoss == nil && m.TakeProfit == nil
}

// PositionModification adjusts protective levels on an open position.
type PositionModification struct {
	StopLoss       *float64 `json:"stopLoss,omitempty"`
	TakeProfit     *float64 `json:"takeProfit,omitempty"`
	TrailingOffset *float64 `json:"trailingOffset,omitempty"`
}

func (m PositionModification) Empty() bool {
	return m.StopLoss == nil && m.TakeProfit == nil && m.TrailingOffset == nil
}

// AccountState is the named view of the accountDetails row, keyed by the
// column ids the broker reported in /trade/config.
type AccountState map[string]float64
