package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/game"
	"github.com/freeeve/blunderscan/internal/store"
)

// Handler serves the analysed games of a store.
type Handler struct {
	store store.Store
	log   zerolog.Logger
}

// NewRouter creates the read-only API router.
func NewRouter(log zerolog.Logger, s store.Store) http.Handler {
	h := &Handler{
		store: s,
		log:   log,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("/v1/games", http.HandlerFunc(h.games))
	mux.Handle("/v1/games/", http.HandlerFunc(h.gameByID))
	mux.Handle("/v1/blunders/recurring", http.HandlerFunc(h.recurring))
	mux.Handle("/v1/stats", http.HandlerFunc(h.stats))

	handler := CORS(RequestID(AccessLog(log, mux)))
	return handler
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, store.Summarize(h.store))
}

// games lists stored games. ?eco= filters by ECO code prefix; ?id= returns
// one game, for ids that do not survive path cleaning.
func (h *Handler) games(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		h.writeGame(w, id)
		return
	}

	prefix := strings.ToUpper(r.URL.Query().Get("eco"))

	list := make([]GameSummary, 0)
	for _, g := range h.store.Games() {
		s := ToGameSummary(g)
		if prefix != "" && !strings.HasPrefix(s.ECO, prefix) {
			continue
		}
		list = append(list, s)
	}
	writeJSON(w, map[string]any{
		"games": list,
		"count": len(list),
	})
}

// gameByID serves /v1/games/{id}. Ids are usually URLs, so the path
// segment is unescaped.
func (h *Handler) gameByID(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/v1/games/")
	if raw == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		http.Error(w, "invalid game id: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.writeGame(w, id)
}

func (h *Handler) writeGame(w http.ResponseWriter, id string) {
	g, ok := store.Lookup(h.store, id)
	if !ok {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	writeJSON(w, ToGameResponse(g))
}

// recurring lists blunder positions seen at least ?min= times (default 2).
func (h *Handler) recurring(w http.ResponseWriter, r *http.Request) {
	minCount := game.MinRecurrence
	if v := r.URL.Query().Get("min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < game.MinRecurrence {
			http.Error(w, "invalid min parameter", http.StatusBadRequest)
			return
		}
		minCount = n
	}

	groups := game.Recurring(h.store.Games(), minCount)
	resp := make([]RecurringResponse, 0, len(groups))
	for _, rb := range groups {
		resp = append(resp, toRecurringResponse(rb))
	}
	h.log.Debug().Int("min", minCount).Int("positions", len(resp)).Msg("recurring blunders")
	writeJSON(w, map[string]any{
		"blunders": resp,
		"count":    len(resp),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
	// Don't call http.Error after setting headers - it causes "superfluous WriteHeader"
}
