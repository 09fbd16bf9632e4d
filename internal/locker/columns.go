package locker

import (
	"fmt"
	"strconv"

	"brokergate/internal/model"
)

// The broker returns list rows as positional arrays; which index means what
// is defined by GET /trade/config per account. The schema is fetched once
// per account and cached, never hardcoded, because column order differs
// between broker configurations.

type wireColumn struct {
	ID string `json:"id"`
}

type wireColumnSet struct {
	Columns []wireColumn `json:"columns"`
}

type tradeConfigPayload struct {
	AccountDetailsConfig wireColumnSet `json:"accountDetailsConfig"`
	OrdersConfig         wireColumnSet `json:"ordersConfig"`
	OrdersHistoryConfig  wireColumnSet `json:"ordersHistoryConfig"`
	PositionsConfig      wireColumnSet `json:"positionsConfig"`
}

// ColumnSchema maps column ids to row indexes for every tuple-array shape
// the trade API returns.
type ColumnSchema struct {
	accountDetailIDs []string
	orders           map[string]int
	ordersHistory    map[string]int
	positions        map[string]int
}

func newColumnSchema(p tradeConfigPayload) *ColumnSchema {
	index := func(set wireColumnSet) map[string]int {
		m := make(map[string]int, len(set.Columns))
		for i, col := range set.Columns {
			m[col.ID] = i
		}
		return m
	}

	ids := make([]string, len(p.AccountDetailsConfig.Columns))
	for i, col := range p.AccountDetailsConfig.Columns {
		ids[i] = col.ID
	}

	return &ColumnSchema{
		accountDetailIDs: ids,
		orders:           index(p.OrdersConfig),
		ordersHistory:    index(p.OrdersHistoryConfig),
		positions:        index(p.PositionsConfig),
	}
}

// row is one positional record plus the id→index mapping to read it with.
type row struct {
	values []interface{}
	index  map[string]int
}

func (r row) str(id string) string {
	i, ok := r.index[id]
	if !ok || i >= len(r.values) || r.values[i] == nil {
		return ""
	}
	switch v := r.values[i].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (r row) float(id string) float64 {
	i, ok := r.index[id]
	if !ok || i >= len(r.values) || r.values[i] == nil {
		return 0
	}
	switch v := r.values[i].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func (r row) int64(id string) int64 {
	return int64(r.float(id))
}

func (s *ColumnSchema) decodeOrder(values []interface{}) (model.Order, error) {
	r := row{values: values, index: s.orders}
	return decodeOrderRow(r)
}

func (s *ColumnSchema) decodeHistoryOrder(values []interface{}) (model.Order, error) {
	r := row{values: values, index: s.ordersHistory}
	return decodeOrderRow(r)
}

func decodeOrderRow(r row) (model.Order, error) {
	id := r.str("id")
	if id == "" {
		return model.Order{}, fmt.Errorf("order row carries no id")
	}

	return model.Order{
		ID:                   id,
		TradableInstrumentID: r.int64("tradableInstrumentId"),
		RouteID:              r.int64("routeId"),
		Side:                 model.Side(r.str("side")),
		Type:                 model.OrderType(r.str("type")),
		Status:               model.OrderStatus(r.str("status")),
		Qty:                  r.float("qty"),
		FilledQty:            r.float("filledQty"),
		Price:                r.float("price"),
		AvgPrice:             r.float("avgPrice"),
		StopPrice:            r.float("stopPrice"),
		StopLoss:             r.float("stopLoss"),
		TakeProfit:           r.float("takeProfit"),
		Validity:             model.Validity(r.str("validity")),
		CreatedMS:            r.int64("createdDate"),
	}, nil
}

func (s *ColumnSchema) decodePosition(values []interface{}) (model.Position, error) {
	r := row{values: values, index: s.positions}

	id := r.str("id")
	if id == "" {
		return model.Position{}, fmt.Errorf("position row carries no id")
	}

	return model.Position{
		ID:                   id,
		TradableInstrumentID: r.int64("tradableInstrumentId"),
		RouteID:              r.int64("routeId"),
		Side:                 model.Side(r.str("side")),
		Qty:                  r.float("qty"),
		AvgPrice:             r.float("avgPrice"),
		StopLossID:           r.str("stopLossId"),
		TakeProfitID:         r.str("takeProfitId"),
		UnrealizedPnL:        r.float("unrealizedPl"),
		OpenMS:               r.int64("openDate"),
	}, nil
}

// decodeAccountState names the accountDetails values by column position.
func (s *ColumnSchema) decodeAccountState(values []interface{}) (model.AccountState, error) {
	if len(values) > len(s.accountDetailIDs) {
		return nil, fmt.Errorf("account state has %d values for %d configured columns", len(values), len(s.accountDetailIDs))
	}

	state := make(model.AccountState, len(values))
	for i, v := range values {
		f, ok := v.(float64)
		if !ok {
			if sv, isStr := v.(string); isStr {
				parsed, err := strconv.ParseFloat(sv, 64)
				if err != nil {
					continue
				}
				f = parsed
			} else {
				continue
			}
		}
		state[s.accountDetailIDs[i]] = f
	}
	return state, nil
}
