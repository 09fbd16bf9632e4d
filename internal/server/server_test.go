package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"brokergate/internal/locker"
	"brokergate/internal/logger"
	"brokergate/internal/store"
	"brokergate/internal/tools"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	h := &Handler{
		tools:  tools.NewRegistry(),
		logger: logger.NewNopLogger(),
	}
	return NewRouter(h, "test-key", logger.NewNopLogger())
}

func TestHealthIsOpen(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"s":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestAPIRoutesRequireKey(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"right key", "test-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestUnknownToolIs404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tools/nonexistent", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"s":"error"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestStatusForErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad qty", locker.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: wrapped", locker.ErrAuthentication), http.StatusUnauthorized},
		{locker.ErrAccountMismatch, http.StatusNotFound},
		{fmt.Errorf("%w: id 9", store.ErrNotFound), http.StatusNotFound},
		{&locker.UpstreamError{StatusCode: 422, Message: "rejected"}, 422},
		{fmt.Errorf("%w: timeout", locker.ErrTransient), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
