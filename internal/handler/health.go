package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"transitmap/internal/ingestor"
	"transitmap/internal/store"
)

type HealthHandler struct {
	ingestor *ingestor.Ingestor
	store    *store.Store
}

func NewHealthHandler(ing *ingestor.Ingestor, s *store.Store) *HealthHandler {
	return &HealthHandler{
		ingestor: ing,
		store:    s,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	StopCount  int       `json:"stopCount"`
	RouteCount int       `json:"routeCount"`
	ServerTime time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ingestor.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	stats := h.store.GetStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:      ready,
		StopCount:  stats.StopsCount,
		RouteCount: stats.RoutesCount,
		ServerTime: time.Now(),
	})
}
