package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"brokergate/internal/locker"
	"brokergate/internal/logger"
	"brokergate/internal/model"
	"brokergate/internal/news"
	"brokergate/internal/store"
)

// Deps is everything the built-in tools need.
type Deps struct {
	Conns   *store.ConnectionsRepo
	Gateway *locker.Gateway
	Events  *news.Store
	Updater *news.Updater
	Logger  logger.Logger
}

// accountArgs is the addressing pair shared by every account-scoped tool.
type accountArgs struct {
	ConnectionID int64  `json:"connection_id"`
	AccountID    string `json:"account_id"`
}

var _accountProps = map[string]interface{}{
	"connection_id": map[string]interface{}{"type": "integer", "description": "broker connection id"},
	"account_id":    map[string]interface{}{"type": "string", "description": "trading account id on the connection"},
}

func schema(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{}
	for k, v := range _accountProps {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func (d Deps) scope(ctx context.Context, args accountArgs) (*model.BrokerConnection, model.AccountKey, error) {
	if args.ConnectionID == 0 {
		return nil, model.AccountKey{}, fmt.Errorf("%w: connection_id is required", locker.ErrValidation)
	}
	conn, err := d.Conns.GetByID(ctx, args.ConnectionID)
	if err != nil {
		return nil, model.AccountKey{}, err
	}
	if args.AccountID == "" {
		return nil, model.AccountKey{}, fmt.Errorf("%w: account_id is required", locker.ErrValidation)
	}
	key, err := d.Gateway.Resolver().Pair(ctx, conn, args.AccountID)
	if err != nil {
		return nil, model.AccountKey{}, err
	}
	return conn, key, nil
}

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := sonic.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("%w: bad tool arguments: %s", locker.ErrValidation, err)
	}
	return v, nil
}

// BuiltinTools builds the standard tool set over the gateway and news mirror.
func BuiltinTools(d Deps) []Tool {
	return []Tool{
		listAccountsTool(d),
		accountStateTool(d),
		instrumentsTool(d),
		marketDataTool(d),
		newsTool(d),
		placeOrderTool(d),
		cancelOrderTool(d),
		ordersTool(d),
		positionsTool(d),
		closePositionTool(d),
	}
}

func listAccountsTool(d Deps) Tool {
	return &funcTool{
		name:        "list_accounts",
		description: "List the trading accounts of a broker connection. Call this first to discover account ids.",
		schema: map[string]interface{}{
			"connection_id": _accountProps["connection_id"],
		},
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[accountArgs](args)
			if err != nil {
				return nil, err
			}
			conn, err := d.Conns.GetByID(ctx, a.ConnectionID)
			if err != nil {
				return nil, err
			}
			return d.Gateway.Resolver().Resolve(ctx, conn)
		},
	}
}

func accountStateTool(d Deps) Tool {
	return &funcTool{
		name:        "get_account_state",
		description: "Get balance, equity and margin figures for a trading account.",
		schema:      schema(nil),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[accountArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a)
			if err != nil {
				return nil, err
			}
			return d.Gateway.AccountState(ctx, conn, key)
		},
	}
}

func instrumentsTool(d Deps) Tool {
	return &funcTool{
		name:        "get_instruments",
		description: "List tradable instruments on an account.",
		schema:      schema(nil),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[accountArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a)
			if err != nil {
				return nil, err
			}
			return d.Gateway.Instruments(ctx, conn, key)
		},
	}
}

type marketDataArgs struct {
	accountArgs
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Count     int    `json:"count"`
}

func marketDataTool(d Deps) Tool {
	return &funcTool{
		name:        "get_market_data",
		description: "Fetch OHLCV bars for a symbol. Timeframes: M1 M5 M15 M30 H1 H4 D1 W1 MN1.",
		schema: schema(map[string]interface{}{
			"symbol":    map[string]interface{}{"type": "string"},
			"timeframe": map[string]interface{}{"type": "string"},
			"count":     map[string]interface{}{"type": "integer", "description": "number of bars, default 100"},
		}),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[marketDataArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a.accountArgs)
			if err != nil {
				return nil, err
			}

			timeframe := locker.NormalizeTimeframe(a.Timeframe)
			if !locker.ValidTimeframe(timeframe) {
				return nil, fmt.Errorf("%w: unknown timeframe %q", locker.ErrValidation, a.Timeframe)
			}

			inst, err := d.Gateway.FindInstrument(ctx, conn, key, a.Symbol)
			if err != nil {
				return nil, err
			}
			routeID, ok := inst.Route(model.RouteInfo)
			if !ok {
				return nil, fmt.Errorf("%w: instrument %s has no routes", locker.ErrValidation, inst.Name)
			}

			return d.Gateway.History(ctx, conn, key, locker.HistoryRequest{
				TradableInstrumentID: inst.TradableInstrumentID,
				RouteID:              routeID,
				Timeframe:            timeframe,
				Count:                a.Count,
				Continuous:           inst.Continuous(),
			})
		},
	}
}

type newsArgs struct {
	Country string `json:"country"`
	Impact  string `json:"impact"`
	Hours   int    `json:"hours"`
	Limit   int    `json:"limit"`
}

func newsTool(d Deps) Tool {
	return &funcTool{
		name:        "get_economic_news",
		description: "List upcoming economic calendar events from the local mirror.",
		schema: map[string]interface{}{
			"country": map[string]interface{}{"type": "string", "description": "two-letter country code filter"},
			"impact":  map[string]interface{}{"type": "string", "description": "high, medium or low"},
			"hours":   map[string]interface{}{"type": "integer", "description": "look-ahead horizon in hours, default 48"},
			"limit":   map[string]interface{}{"type": "integer"},
		},
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[newsArgs](args)
			if err != nil {
				return nil, err
			}
			if a.Hours <= 0 {
				a.Hours = 48
			}
			now := time.Now().UTC()
			return d.Events.ListEvents(ctx, news.EventFilter{
				From:    now,
				To:      now.Add(time.Duration(a.Hours) * time.Hour),
				Country: a.Country,
				Impact:  model.Impact(a.Impact),
				Limit:   a.Limit,
			})
		},
	}
}

type placeOrderArgs struct {
	accountArgs
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Type       string   `json:"type"`
	Qty        float64  `json:"qty"`
	Price      float64  `json:"price"`
	StopPrice  float64  `json:"stop_price"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
}

func placeOrderTool(d Deps) Tool {
	return &funcTool{
		name:        "place_order",
		description: "Place a market, limit or stop order. Limit orders need price, stop orders need stop_price.",
		schema: schema(map[string]interface{}{
			"symbol":      map[string]interface{}{"type": "string"},
			"side":        map[string]interface{}{"type": "string", "description": "buy or sell"},
			"type":        map[string]interface{}{"type": "string", "description": "market, limit or stop"},
			"qty":         map[string]interface{}{"type": "number"},
			"price":       map[string]interface{}{"type": "number"},
			"stop_price":  map[string]interface{}{"type": "number"},
			"stop_loss":   map[string]interface{}{"type": "number"},
			"take_profit": map[string]interface{}{"type": "number"},
		}),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[placeOrderArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a.accountArgs)
			if err != nil {
				return nil, err
			}

			inst, err := d.Gateway.FindInstrument(ctx, conn, key, a.Symbol)
			if err != nil {
				return nil, err
			}
			routeID, ok := inst.Route(model.RouteTrade)
			if !ok {
				return nil, fmt.Errorf("%w: instrument %s has no routes", locker.ErrValidation, inst.Name)
			}

			return d.Gateway.PlaceOrder(ctx, conn, key, model.OrderRequest{
				TradableInstrumentID: inst.TradableInstrumentID,
				RouteID:              routeID,
				Side:                 model.Side(a.Side),
				Type:                 model.OrderType(a.Type),
				Qty:                  a.Qty,
				Price:                a.Price,
				StopPrice:            a.StopPrice,
				StopLoss:             a.StopLoss,
				TakeProfit:           a.TakeProfit,
			})
		},
	}
}

type orderIDArgs struct {
	accountArgs
	OrderID string `json:"order_id"`
}

func cancelOrderTool(d Deps) Tool {
	return &funcTool{
		name:        "cancel_order",
		description: "Cancel a pending order by id.",
		schema: schema(map[string]interface{}{
			"order_id": map[string]interface{}{"type": "string"},
		}),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[orderIDArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a.accountArgs)
			if err != nil {
				return nil, err
			}
			if err := d.Gateway.CancelOrder(ctx, conn, key, a.OrderID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"canceled": a.OrderID}, nil
		},
	}
}

func ordersTool(d Deps) Tool {
	return &funcTool{
		name:        "get_orders",
		description: "List pending orders on an account.",
		schema:      schema(nil),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[accountArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a)
			if err != nil {
				return nil, err
			}
			return d.Gateway.Orders(ctx, conn, key)
		},
	}
}

func positionsTool(d Deps) Tool {
	return &funcTool{
		name:        "get_positions",
		description: "List open positions on an account.",
		schema:      schema(nil),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[accountArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a)
			if err != nil {
				return nil, err
			}
			return d.Gateway.Positions(ctx, conn, key)
		},
	}
}

type closePositionArgs struct {
	accountArgs
	PositionID string  `json:"position_id"`
	Qty        float64 `json:"qty"`
}

func closePositionTool(d Deps) Tool {
	return &funcTool{
		name:        "close_position",
		description: "Close an open position, fully by default or partially with qty.",
		schema: schema(map[string]interface{}{
			"position_id": map[string]interface{}{"type": "string"},
			"qty":         map[string]interface{}{"type": "number", "description": "partial close quantity, omit for full close"},
		}),
		run: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			a, err := decode[closePositionArgs](args)
			if err != nil {
				return nil, err
			}
			conn, key, err := d.scope(ctx, a.accountArgs)
			if err != nil {
				return nil, err
			}
			if err := d.Gateway.ClosePosition(ctx, conn, key, a.PositionID, a.Qty); err != nil {
				return nil, err
			}
			return map[string]interface{}{"closed": a.PositionID}, nil
		},
	}
}
