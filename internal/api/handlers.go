package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/counselling-resolver/internal/engine"
	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// ResultDTO is the wire form of a fused result.
type ResultDTO struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Name       string             `json:"name"`
	Score      float64            `json:"score"`
	Strategies []string           `json:"strategies"`
	MatchKinds []string           `json:"match_kinds"`
	Location   *refstore.Location `json:"location,omitempty"`
}

func toDTOs(results []fusion.Result) []ResultDTO {
	out := make([]ResultDTO, 0, len(results))
	for _, r := range results {
		out = append(out, ResultDTO{
			ID:         r.Entity.ID,
			Type:       string(r.Entity.Type),
			Name:       r.Entity.CanonicalName,
			Score:      r.FinalScore,
			Strategies: r.Strategies(),
			MatchKinds: r.MatchKinds,
			Location:   r.Entity.Location,
		})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	store := s.eng.Store()
	if store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	counts := make(map[string]int)
	for t, n := range store.Counts() {
		counts[string(t)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   store.Version(),
		"loaded_at": store.LoadedAt(),
		"entities":  counts,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	typ, err := refstore.ParseEntityType(q.Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "type must be one of college, program, quota, category, state")
		return
	}
	limit := s.defaultLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxLimit)
	}

	var results []fusion.Result
	if pattern, _ := strconv.ParseBool(q.Get("pattern")); pattern {
		results, err = s.eng.SearchPattern(r.Context(), text, typ, limit)
	} else {
		results, err = s.eng.Search(r.Context(), text, typ, limit)
	}
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(results))
}

type resolveRequest struct {
	Text  string `json:"text"`
	Type  string `json:"type"`
	State string `json:"state"`
	City  string `json:"city"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ, err := refstore.ParseEntityType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "type must be one of college, program, quota, category, state")
		return
	}
	var hint *refstore.Location
	if req.State != "" || req.City != "" {
		hint = &refstore.Location{State: req.State, City: req.City}
	}

	results, err := s.eng.ResolveEntity(r.Context(), req.Text, typ, hint)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(results))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	store, err := s.reload(r.Context())
	if err != nil {
		zap.L().Error("api: reload failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusUnprocessableEntity, "reload rejected: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  store.Version(),
		"entities": store.Len(),
	})
}

func (s *Server) engineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case eris.Is(err, engine.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "reference data not loaded")
	case eris.Is(err, refstore.ErrUnknownEntityType):
		writeError(w, http.StatusBadRequest, "unknown entity type")
	default:
		zap.L().Error("api: engine error",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
