package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"brokergate/internal/locker"
)

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.tools.List())
}

// invokeTool runs one named tool with the raw JSON body as its arguments.
func (h *Handler) invokeTool(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondErr(w, h.logger, locker.ErrValidation)
		return
	}

	result, err := h.tools.Execute(r.Context(), name, json.RawMessage(body))
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, result)
}
