package locker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"brokergate/internal/logger"
	"brokergate/internal/model"
)

var testKey = model.AccountKey{AccountID: "123", AccNum: "5"}

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()

	client := newTestClient(t, baseURL)
	tokens := NewTokenManager(client, newStubStore(), time.Minute, logger.NewNopLogger())
	resolver, err := NewResolver(client, tokens, time.Minute, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return NewGateway(client, tokens, resolver, testGatewayConfig(baseURL), logger.NewNopLogger())
}

func TestHistoryRejectsOversizedCount(t *testing.T) {
	g := newTestGateway(t, "http://127.0.0.1:0")

	_, err := g.History(context.Background(), freshConn(), testKey, HistoryRequest{
		TradableInstrumentID: 1,
		RouteID:              10,
		Timeframe:            "M1",
		Count:                20001,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestHistoryRejectsOversizedWindow(t *testing.T) {
	g := newTestGateway(t, "http://127.0.0.1:0")

	to := time.Now()
	from := to.Add(-30000 * time.Minute)
	_, err := g.History(context.Background(), freshConn(), testKey, HistoryRequest{
		TradableInstrumentID: 1,
		RouteID:              10,
		Timeframe:            "M1",
		FromMS:               from.UnixMilli(),
		ToMS:                 to.UnixMilli(),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestHistoryNoDataOutcome(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != _historyURL {
			t.Errorf("unexpected call to %s", r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"s":"ok","d":{"barDetails":[],"s":"no_data","nb":1700000000000}}`))
	}))
	defer ts.Close()

	g := newTestGateway(t, ts.URL)
	history, err := g.History(context.Background(), freshConn(), testKey, HistoryRequest{
		TradableInstrumentID: 1,
		RouteID:              10,
		Timeframe:            "H1",
		Count:                10,
	})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if history.Status != model.HistoryNoData {
		t.Errorf("status = %q, want no_data", history.Status)
	}
	if history.NextBarMS != 1700000000000 {
		t.Errorf("next bar = %d, want 1700000000000", history.NextBarMS)
	}
	if len(history.Bars) != 0 {
		t.Errorf("got %d bars, want 0", len(history.Bars))
	}
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name    string
		req     model.OrderRequest
		wantErr bool
		wantVal model.Validity
	}{
		{
			name:    "market defaults to IOC",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Buy, Type: model.Market, Qty: 1},
			wantVal: model.IOC,
		},
		{
			name:    "market rejects GTC",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Buy, Type: model.Market, Qty: 1, Validity: model.GTC},
			wantErr: true,
		},
		{
			name:    "limit defaults to GTC",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Sell, Type: model.Limit, Qty: 1, Price: 1.1},
			wantVal: model.GTC,
		},
		{
			name:    "limit requires price",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Sell, Type: model.Limit, Qty: 1},
			wantErr: true,
		},
		{
			name:    "stop requires stopPrice",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Buy, Type: model.Stop, Qty: 1},
			wantErr: true,
		},
		{
			name:    "stop with trigger ok",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Buy, Type: model.Stop, Qty: 1, StopPrice: 2.5},
			wantVal: model.GTC,
		},
		{
			name:    "unknown type",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Buy, Type: "trailing", Qty: 1},
			wantErr: true,
		},
		{
			name:    "bad side",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: "long", Type: model.Market, Qty: 1},
			wantErr: true,
		},
		{
			name:    "zero qty",
			req:     model.OrderRequest{TradableInstrumentID: 1, RouteID: 11, Side: model.Buy, Type: model.Market},
			wantErr: true,
		},
		{
			name:    "missing route",
			req:     model.OrderRequest{TradableInstrumentID: 1, Side: model.Buy, Type: model.Market, Qty: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOrder(&tt.req)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("got %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validateOrder: %v", err)
			}
			if tt.req.Validity != tt.wantVal {
				t.Errorf("validity = %q, want %q", tt.req.Validity, tt.wantVal)
			}
		})
	}
}

func TestPlaceOrderRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trade/accounts/123/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			return
		}
		if got := r.Header.Get("accNum"); got != "5" {
			t.Errorf("accNum header = %q, want 5", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"s":"ok","d":{"orderId":456}}`))
	}))
	defer ts.Close()

	g := newTestGateway(t, ts.URL)
	order, err := g.PlaceOrder(context.Background(), freshConn(), testKey, model.OrderRequest{
		TradableInstrumentID: 1,
		RouteID:              11,
		Side:                 model.Buy,
		Type:                 model.Market,
		Qty:                  0.5,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if order.ID != "456" {
		t.Errorf("order id = %q, want 456", order.ID)
	}
	if order.Status != model.OrderNew {
		t.Errorf("order status = %q, want New", order.Status)
	}
	if order.Validity != model.IOC {
		t.Errorf("order validity = %q, want IOC", order.Validity)
	}
}

func TestReadRetriesOnceAfterUnauthorized(t *testing.T) {
	var instrumentCalls, refreshCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trade/accounts/123/instruments":
			if atomic.AddInt64(&instrumentCalls, 1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"errmsg":"token expired"}`))
				return
			}
			if got := r.Header.Get("Authorization"); !strings.Contains(got, "new-access") {
				t.Errorf("retry used token %q, want the refreshed one", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"s":"ok","d":{"instruments":[{"tradableInstrumentId":1,"name":"EURUSD","type":"FOREX","routes":[{"id":10,"type":"INFO"}]}]}}`))
		case _refreshURL:
			atomic.AddInt64(&refreshCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"accessToken":"new-access","refreshToken":"new-refresh","expireDate":` + msFromNow(time.Hour) + `}`))
		default:
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	g := newTestGateway(t, ts.URL)
	instruments, err := g.Instruments(context.Background(), freshConn(), testKey)
	if err != nil {
		t.Fatalf("Instruments: %v", err)
	}
	if len(instruments) != 1 || instruments[0].Name != "EURUSD" {
		t.Errorf("unexpected instruments: %+v", instruments)
	}
	if got := atomic.LoadInt64(&instrumentCalls); got != 2 {
		t.Errorf("instruments called %d times, want 2", got)
	}
	if got := atomic.LoadInt64(&refreshCalls); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
}

func TestSecondUnauthorizedSurfacesAuthError(t *testing.T) {
	var instrumentCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trade/accounts/123/instruments":
			atomic.AddInt64(&instrumentCalls, 1)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errmsg":"nope"}`))
		case _refreshURL:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"accessToken":"new-access","refreshToken":"new-refresh","expireDate":` + msFromNow(time.Hour) + `}`))
		default:
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	g := newTestGateway(t, ts.URL)
	_, err := g.Instruments(context.Background(), freshConn(), testKey)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("got %v, want ErrAuthentication", err)
	}
	if got := atomic.LoadInt64(&instrumentCalls); got != 2 {
		t.Errorf("instruments called %d times, want exactly 2", got)
	}
}

func TestCloseAllPositionsOnEmptyAccount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trade/accounts/123/positions" || r.Method != http.MethodDelete {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			return
		}
		w.Write([]byte(`{"s":"ok","d":{"positions":[]}}`))
	}))
	defer ts.Close()

	g := newTestGateway(t, ts.URL)
	accepted, err := g.CloseAllPositions(context.Background(), freshConn(), testKey, 0)
	if err != nil {
		t.Fatalf("CloseAllPositions: %v", err)
	}
	if accepted != 0 {
		t.Errorf("accepted = %d, want 0", accepted)
	}
}

func TestSchemaFetchedOncePerAccount(t *testing.T) {
	var configCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != _tradeConfigURL {
			t.Errorf("unexpected call to %s", r.URL.Path)
			return
		}
		atomic.AddInt64(&configCalls, 1)
		w.Write([]byte(`{"s":"ok","d":{
			"accountDetailsConfig":{"columns":[{"id":"balance"},{"id":"equity"}]},
			"ordersConfig":{"columns":[{"id":"id"},{"id":"qty"}]},
			"ordersHistoryConfig":{"columns":[{"id":"id"}]},
			"positionsConfig":{"columns":[{"id":"id"},{"id":"side"}]}}}`))
	}))
	defer ts.Close()

	g := newTestGateway(t, ts.URL)
	conn := freshConn()
	for i := 0; i < 3; i++ {
		if _, err := g.Schema(context.Background(), conn, testKey); err != nil {
			t.Fatalf("Schema: %v", err)
		}
	}
	if got := atomic.LoadInt64(&configCalls); got != 1 {
		t.Errorf("trade config fetched %d times, want 1", got)
	}
}
