// internal/httpserver/routes_api.go
//
// Condition API consumed by the game client. Exposes four endpoints under /api:
//   - GET /api/latest_metadata             → default ceiling + generation years
//   - GET /api/valid_combos?max_gen=N      → validity relation for the ceiling
//   - GET /api/matches?guess=G&max_gen=N   → name search for the search modal
//   - GET /api/test?identifier=ID&conditions=a,b → guess check
//
// A missing or unparsable max_gen means "every generation".

package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tickantoe/internal/dex"
)

type comboItem struct {
	Combo [2]string `json:"combo"`
}

type matchItem struct {
	Pokemon dex.Match `json:"pokemon"`
}

// mountAPI registers all /api routes.
func (s *Server) mountAPI(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/latest_metadata", s.handleMetadata)
		r.Get("/valid_combos", s.handleValidCombos)
		r.Get("/matches", s.handleMatches)
		r.Get("/test", s.handleTest)
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.dex.Metadata(s.opts.DefaultMaxGen))
}

func (s *Server) handleValidCombos(w http.ResponseWriter, r *http.Request) {
	combos := s.dex.ValidCombos(maxGenParam(r))
	out := make([]comboItem, 0, len(combos))
	for _, c := range combos {
		out = append(out, comboItem{Combo: c})
	}
	writeJSON(w, out)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	matches := s.dex.Matches(r.URL.Query().Get("guess"), maxGenParam(r))
	out := make([]matchItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchItem{Pokemon: m})
	}
	writeJSON(w, out)
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("identifier")
	if id == "" {
		http.Error(w, `{"error":"missing_identifier"}`, http.StatusBadRequest)
		return
	}
	var conds []string
	for _, c := range strings.Split(q.Get("conditions"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			conds = append(conds, c)
		}
	}
	if len(conds) == 0 {
		http.Error(w, `{"error":"missing_conditions"}`, http.StatusBadRequest)
		return
	}
	ok := s.dex.Test(id, conds)
	log.Debug().Str("identifier", id).Strs("conditions", conds).Bool("ok", ok).Msg("guess check")
	writeJSON(w, map[string]bool{"ok": ok})
}

func maxGenParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("max_gen"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}
