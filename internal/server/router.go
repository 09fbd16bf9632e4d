package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brokergate/internal/logger"
)

// NewRouter wires the facade routes. /health and /metrics are open; every
// /api route sits behind the shared API key.
func NewRouter(h *Handler, apiKey string, log logger.Logger) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	r := mux.NewRouter()
	r.Use(recovery(log), observe(newMetrics(registry), log))

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requireAPIKey(apiKey, log))

	api.HandleFunc("/connections", h.createConnection).Methods(http.MethodPost)
	api.HandleFunc("/connections", h.listConnections).Methods(http.MethodGet)
	api.HandleFunc("/connections/{id:[0-9]+}", h.getConnection).Methods(http.MethodGet)
	api.HandleFunc("/connections/{id:[0-9]+}", h.deleteConnection).Methods(http.MethodDelete)
	api.HandleFunc("/connections/{id:[0-9]+}/refresh", h.refreshConnection).Methods(http.MethodPost)
	api.HandleFunc("/connections/{id:[0-9]+}/accounts", h.connectionAccounts).Methods(http.MethodGet)

	api.HandleFunc("/account-state", h.accountState).Methods(http.MethodGet)
	api.HandleFunc("/instruments", h.instruments).Methods(http.MethodGet)
	api.HandleFunc("/instruments/{id:[0-9]+}", h.instrumentDetail).Methods(http.MethodGet)
	api.HandleFunc("/market-data", h.marketData).Methods(http.MethodGet)

	api.HandleFunc("/orders", h.orders).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.cancelAllOrders).Methods(http.MethodDelete)
	api.HandleFunc("/orders-history", h.ordersHistory).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.modifyOrder).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}", h.cancelOrder).Methods(http.MethodDelete)
	api.HandleFunc("/trade", h.trade).Methods(http.MethodPost)

	api.HandleFunc("/positions", h.positions).Methods(http.MethodGet)
	api.HandleFunc("/positions", h.closeAllPositions).Methods(http.MethodDelete)
	api.HandleFunc("/positions/{id}", h.modifyPosition).Methods(http.MethodPatch)
	api.HandleFunc("/positions/{id}", h.closePosition).Methods(http.MethodDelete)

	api.HandleFunc("/news", h.listNews).Methods(http.MethodGet)
	api.HandleFunc("/news/sync", h.syncNews).Methods(http.MethodPost)
	api.HandleFunc("/news/updater", h.updaterStatus).Methods(http.MethodGet)

	api.HandleFunc("/tools", h.listTools).Methods(http.MethodGet)
	api.HandleFunc("/tools/{name}", h.invokeTool).Methods(http.MethodPost)

	return r
}
