package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"brokergate/internal/locker"
	"brokergate/internal/model"
)

func (h *Handler) accountState(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	state, err := h.gateway.AccountState(r.Context(), conn, key)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, state)
}

func (h *Handler) instruments(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	instruments, err := h.gateway.Instruments(r.Context(), conn, key)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, instruments)
}

func (h *Handler) instrumentDetail(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	instrumentID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondErr(w, h.logger, locker.ErrValidation)
		return
	}
	routeID, err := queryInt64(r, "route_id")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if routeID == 0 {
		inst, ferr := h.instrumentByID(r, conn, key, instrumentID)
		if ferr != nil {
			respondErr(w, h.logger, ferr)
			return
		}
		if routeID, _ = inst.Route(model.RouteInfo); routeID == 0 {
			respondErr(w, h.logger, fmt.Errorf("%w: instrument %d has no routes", locker.ErrValidation, instrumentID))
			return
		}
	}

	detail, err := h.gateway.InstrumentDetail(r.Context(), conn, key, instrumentID, routeID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, detail)
}

// marketData serves bar history for a symbol. Market data travels over the
// instrument's INFO route; order flow uses the TRADE route.
func (h *Handler) marketData(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		respondErr(w, h.logger, fmt.Errorf("%w: symbol is required", locker.ErrValidation))
		return
	}

	timeframe := locker.NormalizeTimeframe(r.URL.Query().Get("timeframe"))
	if !locker.ValidTimeframe(timeframe) {
		respondErr(w, h.logger, fmt.Errorf("%w: unknown timeframe, expected one of %s",
			locker.ErrValidation, strings.Join(locker.Timeframes(), ", ")))
		return
	}

	count, err := queryInt64(r, "count")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	inst, err := h.gateway.FindInstrument(r.Context(), conn, key, symbol)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	routeID, ok := inst.Route(model.RouteInfo)
	if !ok {
		respondErr(w, h.logger, fmt.Errorf("%w: instrument %s has no routes", locker.ErrValidation, inst.Name))
		return
	}

	req := locker.HistoryRequest{
		TradableInstrumentID: inst.TradableInstrumentID,
		RouteID:              routeID,
		Timeframe:            timeframe,
		Count:                int(count),
		Continuous:           inst.Continuous(),
	}
	if !from.IsZero() {
		req.FromMS = from.UnixMilli()
	}
	if !to.IsZero() {
		req.ToMS = to.UnixMilli()
	}

	history, err := h.gateway.History(r.Context(), conn, key, req)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, history)
}

func (h *Handler) orders(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	orders, err := h.gateway.Orders(r.Context(), conn, key)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, orders)
}

func (h *Handler) ordersHistory(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	from, err := queryTime(r, "from")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var fromMS, toMS int64
	if !from.IsZero() {
		fromMS = from.UnixMilli()
	}
	if !to.IsZero() {
		toMS = to.UnixMilli()
	}

	orders, hasMore, err := h.gateway.OrdersHistory(r.Context(), conn, key, fromMS, toMS)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"orders":   orders,
		"has_more": hasMore,
	})
}

type tradeRequest struct {
	Symbol               string          `json:"symbol"`
	TradableInstrumentID int64           `json:"tradable_instrument_id"`
	RouteID              int64           `json:"route_id"`
	Side                 model.Side      `json:"side"`
	Type                 model.OrderType `json:"type"`
	Qty                  float64         `json:"qty"`
	Price                float64         `json:"price"`
	StopPrice            float64         `json:"stop_price"`
	Validity             model.Validity  `json:"validity"`
	StopLoss             *float64        `json:"stop_loss"`
	TakeProfit           *float64        `json:"take_profit"`
	StrategyID           string          `json:"strategy_id"`
}

// trade places an order, resolving a symbol to its TRADE route when the
// caller doesn't address the instrument directly.
func (h *Handler) trade(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if req.TradableInstrumentID == 0 {
		if req.Symbol == "" {
			respondErr(w, h.logger, fmt.Errorf("%w: symbol or tradable_instrument_id is required", locker.ErrValidation))
			return
		}
		inst, ferr := h.gateway.FindInstrument(r.Context(), conn, key, req.Symbol)
		if ferr != nil {
			respondErr(w, h.logger, ferr)
			return
		}
		req.TradableInstrumentID = inst.TradableInstrumentID
		if req.RouteID == 0 {
			req.RouteID, _ = inst.Route(model.RouteTrade)
		}
	}

	order, err := h.gateway.PlaceOrder(r.Context(), conn, key, model.OrderRequest{
		TradableInstrumentID: req.TradableInstrumentID,
		RouteID:              req.RouteID,
		Side:                 req.Side,
		Type:                 req.Type,
		Qty:                  req.Qty,
		Price:                req.Price,
		StopPrice:            req.StopPrice,
		Validity:             req.Validity,
		StopLoss:             req.StopLoss,
		TakeProfit:           req.TakeProfit,
		StrategyID:           req.StrategyID,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusCreated, order)
}

func (h *Handler) modifyOrder(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var mod model.OrderModification
	if err := decodeBody(r, &mod); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if err := h.gateway.ModifyOrder(r.Context(), conn, key, mux.Vars(r)["id"], mod); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"modified": mux.Vars(r)["id"]})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if err := h.gateway.CancelOrder(r.Context(), conn, key, mux.Vars(r)["id"]); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"canceled": mux.Vars(r)["id"]})
}

func (h *Handler) cancelAllOrders(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	instrumentID, err := queryInt64(r, "tradable_instrument_id")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if err := h.gateway.CancelAllOrders(r.Context(), conn, key, instrumentID); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"canceled": "all"})
}

func (h *Handler) positions(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	positions, err := h.gateway.Positions(r.Context(), conn, key)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, positions)
}

type closePositionRequest struct {
	Qty float64 `json:"qty"`
}

// closePosition closes fully by default; a positive qty in the body closes
// partially.
func (h *Handler) closePosition(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var req closePositionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondErr(w, h.logger, err)
			return
		}
	}

	if err := h.gateway.ClosePosition(r.Context(), conn, key, mux.Vars(r)["id"], req.Qty); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"closed": mux.Vars(r)["id"]})
}

func (h *Handler) modifyPosition(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	var mod model.PositionModification
	if err := decodeBody(r, &mod); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if err := h.gateway.ModifyPosition(r.Context(), conn, key, mux.Vars(r)["id"], mod); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"modified": mux.Vars(r)["id"]})
}

func (h *Handler) closeAllPositions(w http.ResponseWriter, r *http.Request) {
	conn, key, err := h.scope(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	instrumentID, err := queryInt64(r, "tradable_instrument_id")
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	accepted, err := h.gateway.CloseAllPositions(r.Context(), conn, key, instrumentID)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"accepted": accepted})
}

// scope resolves the connection and account every trade endpoint requires.
func (h *Handler) scope(r *http.Request) (*model.BrokerConnection, model.AccountKey, error) {
	conn, err := h.connection(r)
	if err != nil {
		return nil, model.AccountKey{}, err
	}
	key, err := h.accountKey(r, conn)
	if err != nil {
		return nil, model.AccountKey{}, err
	}
	return conn, key, nil
}

func (h *Handler) instrumentByID(r *http.Request, conn *model.BrokerConnection, key model.AccountKey, id int64) (model.Instrument, error) {
	instruments, err := h.gateway.Instruments(r.Context(), conn, key)
	if err != nil {
		return model.Instrument{}, err
	}
	for _, inst := range instruments {
		if inst.TradableInstrumentID == id {
			return inst, nil
		}
	}
	return model.Instrument{}, fmt.Errorf("%w: instrument %d not found on account %s", locker.ErrValidation, id, key.AccountID)
}
