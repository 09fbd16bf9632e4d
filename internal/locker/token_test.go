package locker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"brokergate/internal/config"
	"brokergate/internal/logger"
	"brokergate/internal/model"
)

type stubStore struct {
	mu       sync.Mutex
	saved    []model.TokenPair
	statuses map[int64]model.ConnectionStatus
}

func newStubStore() *stubStore {
	return &stubStore{statuses: make(map[int64]model.ConnectionStatus)}
}

func (s *stubStore) SaveTokenPair(ctx context.Context, connectionID int64, pair model.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, pair)
	return nil
}

func (s *stubStore) SetStatus(ctx context.Context, connectionID int64, status model.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[connectionID] = status
	return nil
}

func (s *stubStore) status(id int64) model.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func testGatewayConfig(baseURL string) config.GatewayConfig {
	return config.GatewayConfig{
		DemoBaseURL:       baseURL,
		LiveBaseURL:       baseURL,
		TokenSafetyMargin: time.Minute,
		AccountCacheTTL:   time.Minute,
		RequestTimeout:    5 * time.Second,
		RequestsPerMinute: 100000,
		MaxBarsPerRequest: 20000,
		DefaultBarCount:   100,
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := NewClient(testGatewayConfig(baseURL), logger.NewNopLogger())
	t.Cleanup(func() { c.Close() })
	return c
}

func freshConn() *model.BrokerConnection {
	return &model.BrokerConnection{
		ID:            1,
		Email:         "trader@example.com",
		Password:      "secret",
		Server:        "DEMO1",
		Environment:   model.Demo,
		AccessToken:   "fresh-access",
		RefreshToken:  "fresh-refresh",
		TokenExpireMS: time.Now().Add(time.Hour).UnixMilli(),
	}
}

func staleConn() *model.BrokerConnection {
	c := freshConn()
	c.AccessToken = "stale-access"
	c.TokenExpireMS = time.Now().Add(-time.Hour).UnixMilli()
	return c
}

func TestEnsureValidTokenServesFreshTokenWithoutUpstream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected upstream call to %s", r.URL.Path)
	}))
	defer ts.Close()

	m := NewTokenManager(newTestClient(t, ts.URL), newStubStore(), time.Minute, logger.NewNopLogger())

	token, err := m.EnsureValidToken(context.Background(), freshConn())
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if token != "fresh-access" {
		t.Errorf("got token %q, want fresh-access", token)
	}
}

func TestEnsureValidTokenSingleFlight(t *testing.T) {
	var refreshCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != _refreshURL {
			t.Errorf("unexpected call to %s", r.URL.Path)
			return
		}
		atomic.AddInt64(&refreshCalls, 1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accessToken":"new-access","refreshToken":"new-refresh","expireDate":` + msFromNow(time.Hour) + `}`))
	}))
	defer ts.Close()

	m := NewTokenManager(newTestClient(t, ts.URL), newStubStore(), time.Minute, logger.NewNopLogger())
	conn := staleConn()

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := m.EnsureValidToken(context.Background(), conn)
			if err != nil {
				t.Errorf("EnsureValidToken: %v", err)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&refreshCalls); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
	for i, token := range tokens {
		if token != "new-access" {
			t.Errorf("caller %d got token %q, want new-access", i, token)
		}
	}
}

func TestRefreshFallsBackToCredentialExchange(t *testing.T) {
	var authCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case _refreshURL:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errmsg":"refresh token expired"}`))
		case _tokenURL:
			atomic.AddInt64(&authCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"accessToken":"reauth-access","refreshToken":"reauth-refresh","expireDate":` + msFromNow(time.Hour) + `}`))
		default:
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	store := newStubStore()
	m := NewTokenManager(newTestClient(t, ts.URL), store, time.Minute, logger.NewNopLogger())

	token, err := m.EnsureValidToken(context.Background(), staleConn())
	if err != nil {
		t.Fatalf("EnsureValidToken: %v", err)
	}
	if token != "reauth-access" {
		t.Errorf("got token %q, want reauth-access", token)
	}
	if got := atomic.LoadInt64(&authCalls); got != 1 {
		t.Errorf("credential exchange called %d times, want 1", got)
	}
	if len(store.saved) != 1 || store.saved[0].AccessToken != "reauth-access" {
		t.Errorf("token pair not persisted: %+v", store.saved)
	}
}

func TestReauthFailureMarksNeedsReauth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errmsg":"bad credentials"}`))
	}))
	defer ts.Close()

	store := newStubStore()
	m := NewTokenManager(newTestClient(t, ts.URL), store, time.Minute, logger.NewNopLogger())
	conn := staleConn()

	_, err := m.EnsureValidToken(context.Background(), conn)
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("got %v, want ErrAuthentication", err)
	}
	if got := store.status(conn.ID); got != model.ConnectionNeedsReauth {
		t.Errorf("connection status = %q, want needs_reauth", got)
	}
}

func msFromNow(d time.Duration) string {
	return strconv.FormatInt(time.Now().Add(d).UnixMilli(), 10)
}
