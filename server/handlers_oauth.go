package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/streamwatch/config"
	dbpkg "github.com/onnwee/streamwatch/db"
	"github.com/onnwee/streamwatch/youtubeapi"
)

// oauthStates holds pending OAuth state tokens with expiry.
type oauthStates struct {
	mu     sync.Mutex
	states map[string]time.Time
}

func newOAuthStates() *oauthStates {
	return &oauthStates{states: make(map[string]time.Time)}
}

func (o *oauthStates) add(state string, expiry time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[state] = expiry
	// Drop anything already expired while we hold the lock.
	now := time.Now()
	for s, exp := range o.states {
		if now.After(exp) {
			delete(o.states, s)
		}
	}
}

func (o *oauthStates) consume(state string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	exp, ok := o.states[state]
	if !ok {
		return false
	}
	delete(o.states, state)
	return time.Now().Before(exp)
}

// HandleYouTubeOAuthStart initiates the YouTube OAuth flow for deployments that
// use a stored user token instead of an API key.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	cfg, _ := config.Load()
	if cfg.YTClientID == "" || cfg.YTRedirectURI == "" {
		http.Error(w, "youtube oauth not configured (need YT_CLIENT_ID + YT_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(b)
	h.oauthStates.add(state, time.Now().Add(10*time.Minute))

	yts := youtubeapi.New(cfg, &dbpkg.TokenStoreAdapter{DB: h.db})
	http.Redirect(w, r, yts.AuthCodeURL(state), http.StatusFound)
}

// HandleYouTubeOAuthCallback completes the flow and persists the token.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	cfg, _ := config.Load()
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.oauthStates.consume(state) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	yts := youtubeapi.New(cfg, &dbpkg.TokenStoreAdapter{DB: h.db})
	tok, err := yts.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "expiry": tok.Expiry}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
