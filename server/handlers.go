package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
)

// StatusSource provides the counts shown by /status. *store.Store satisfies it.
type StatusSource interface {
	CountStreamers(ctx context.Context) (int, error)
	CountSnapshots(ctx context.Context) (int, error)
}

type Handlers struct {
	db          *sql.DB
	status      StatusSource
	oauthStates *oauthStates
}

// HandleHealthz responds to liveness probes by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes. Ready means the database answers;
// upstream platform availability is deliberately not part of readiness since
// the monitor tolerates upstream outages.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       "not_ready",
			"failed_check": "database",
			"error":        err.Error(),
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports tracked and currently-live streamer counts.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	tracked, err := h.status.CountStreamers(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	live, err := h.status.CountSnapshots(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"tracked": tracked,
		"live":    live,
	})
}
