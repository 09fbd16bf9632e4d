package server

import (
	"net/http"
	"strconv"

	"brokergate/internal/locker"
	"brokergate/internal/model"
	"brokergate/internal/news"
)

func (h *Handler) listNews(w http.ResponseWriter, r *http.Request) {
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

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			respondErr(w, h.logger, locker.ErrValidation)
			return
		}
	}

	events, err := h.events.ListEvents(r.Context(), news.EventFilter{
		From:    from,
		To:      to,
		Country: r.URL.Query().Get("country"),
		Impact:  model.Impact(r.URL.Query().Get("impact")),
		Limit:   limit,
	})
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// syncNews triggers one full-window sync outside the schedule.
func (h *Handler) syncNews(w http.ResponseWriter, r *http.Request) {
	saved, updated, fetched, err := h.updater.SyncNow(r.Context())
	if err != nil {
		respondErr(w, h.logger, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"saved":   saved,
		"updated": updated,
		"fetched": fetched,
	})
}

func (h *Handler) updaterStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.updater.Status())
}
