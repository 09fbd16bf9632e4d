package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"brokergate/internal/locker"
	"brokergate/internal/logger"
	"brokergate/internal/model"
	"brokergate/internal/news"
	"brokergate/internal/store"
	"brokergate/internal/tools"
)

type Handler struct {
	conns    *store.ConnectionsRepo
	gateway  *locker.Gateway
	tokens   *locker.TokenManager
	resolver *locker.Resolver
	events   *news.Store
	updater  *news.Updater
	tools    *tools.Registry
	logger   logger.Logger
}

func NewHandler(
	conns *store.ConnectionsRepo,
	gateway *locker.Gateway,
	tokens *locker.TokenManager,
	events *news.Store,
	updater *news.Updater,
	registry *tools.Registry,
	logger logger.Logger,
) *Handler {
	return &Handler{
		conns:    conns,
		gateway:  gateway,
		tokens:   tokens,
		resolver: gateway.Resolver(),
		events:   events,
		updater:  updater,
		tools:    registry,
		logger:   logger,
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// connection loads the broker connection named by the connection_id query
// parameter.
func (h *Handler) connection(r *http.Request) (*model.BrokerConnection, error) {
	raw := r.URL.Query().Get("connection_id")
	if raw == "" {
		return nil, fmt.Errorf("%w: connection_id is required", locker.ErrValidation)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad connection_id %q", locker.ErrValidation, raw)
	}
	return h.conns.GetByID(r.Context(), id)
}

// accountKey resolves the account_id query parameter to its accNum pairing,
// verifying the account belongs to the connection.
func (h *Handler) accountKey(r *http.Request, conn *model.BrokerConnection) (model.AccountKey, error) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		return model.AccountKey{}, fmt.Errorf("%w: account_id is required", locker.ErrValidation)
	}
	return h.resolver.Pair(r.Context(), conn, accountID)
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: can't read request body", locker.ErrValidation)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty request body", locker.ErrValidation)
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: bad request body: %s", locker.ErrValidation, err)
	}
	return nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", locker.ErrValidation, name, raw)
	}
	return v, nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339, got %q", locker.ErrValidation, name, raw)
	}
	return t, nil
}
