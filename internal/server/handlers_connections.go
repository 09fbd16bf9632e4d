package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"brokergate/internal/locker"
	"brokergate/internal/model"
)

type createConnectionRequest struct {
	Email       string            `json:"email"`
	Password    string            `json:"password"`
	Server      string            `json:"server"`
	Environment model.Environment `json:"environment"`
}

// createConnection registers broker credentials and verifies them with an
// immediate token exchange, so bad credentials fail loudly at registration
// instead of on the first trade call.
func (h *Handler) createConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := decodeBody(r, &req); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" || req.Server == "" {
		respondErr(w, h.logger, locker.ErrValidation)
		return
	}
	if req.Environment == "" {
		req.Environment = model.Demo
	}
	if !req.Environment.Valid() {
		respondErr(w, h.logger, locker.ErrValidation)
		return
	}

	conn := &model.BrokerConnection{
		Email:       req.Email,
		Password:    req.Password,
		Server:      req.Server,
		Environment: req.Environment,
	}
	if err := h.conns.Create(r.Context(), conn); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if _, err := h.tokens.EnsureValidToken(r.Context(), conn); err != nil {
		if errors.Is(err, locker.ErrAuthentication) {
			conn.Status = model.ConnectionNeedsReauth
		}
		h.logger.Warnf("%s: connection %d registered without a working token", err, conn.ID)
	}

	respond(w, http.StatusCreated, conn)
}

func (h *Handler) listConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.conns.List(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, conns)
}

func (h *Handler) pathConnection(r *http.Request) (*model.BrokerConnection, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, locker.ErrValidation
	}
	return h.conns.GetByID(r.Context(), id)
}

func (h *Handler) getConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.pathConnection(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, conn)
}

func (h *Handler) deleteConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.pathConnection(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	if err := h.conns.Delete(r.Context(), conn.ID); err != nil {
		respondErr(w, h.logger, err)
		return
	}

	h.tokens.Forget(conn.ID)
	h.resolver.Invalidate(conn.ID)
	respond(w, http.StatusOK, map[string]interface{}{"deleted": conn.ID})
}

// refreshConnection forces a token refresh and drops the account mirror, the
// recovery path for a connection stuck in needs_reauth after a password fix.
func (h *Handler) refreshConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.pathConnection(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	if _, err := h.tokens.ForceRefresh(r.Context(), conn); err != nil {
		respondErr(w, h.logger, err)
		return
	}
	h.resolver.Invalidate(conn.ID)

	respond(w, http.StatusOK, map[string]interface{}{"refreshed": conn.ID})
}

func (h *Handler) connectionAccounts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.pathConnection(r)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}

	accounts, err := h.resolver.Resolve(r.Context(), conn)
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, accounts)
}
