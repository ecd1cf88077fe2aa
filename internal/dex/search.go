// internal/dex/search.go
//
// Metadata and name search for the search modal.

package dex

import (
	"slices"
	"strings"
)

// Metadata is the body of /api/latest_metadata.
type Metadata struct {
	Defaults Defaults  `json:"defaults"`
	GenYears []GenYear `json:"gen_years"`
}

// Defaults carries the server-chosen starting ceiling.
type Defaults struct {
	MaxGen int `json:"max_gen"`
}

// GenYear pairs a generation with its release year.
type GenYear struct {
	N    int `json:"n"`
	Year int `json:"year"`
}

// Metadata describes the table. defaultMaxGen is clamped onto a known generation.
func (d *Dex) Metadata(defaultMaxGen int) Metadata {
	out := Metadata{Defaults: Defaults{MaxGen: d.Clamp(defaultMaxGen)}}
	for _, g := range d.generations {
		out.GenYears = append(out.GenYears, GenYear{N: g.N, Year: g.Year})
	}
	return out
}

// Form is the placeable variant of an entity.
type Form struct {
	Name       string `json:"name"`
	ID         int    `json:"id"`
	MonID      int    `json:"mon_id"`
	Generation int    `json:"generation"`
}

// Match is one search hit.
type Match struct {
	Name  string `json:"name"`
	Dex   int    `json:"dex"`
	Forms []Form `json:"forms"`
}

// maxMatches bounds a result list.
const maxMatches = 10

// Matches searches names of generation ≤ maxGen. Guesses of one or two
// characters return nothing. Results sharing the guess as a prefix come first,
// then names containing it, then names sharing the first two letters.
func (d *Dex) Matches(guess string, maxGen int) []Match {
	guess = strings.ToLower(strings.TrimSpace(guess))
	if len(guess) <= 2 {
		return nil
	}
	maxGen = d.Clamp(maxGen)

	type hit struct {
		rank int
		e    Entity
	}
	var hits []hit
	for _, e := range d.entities {
		if e.Generation > maxGen {
			continue
		}
		name := strings.ToLower(e.Name)
		switch {
		case strings.HasPrefix(name, guess):
			hits = append(hits, hit{0, e})
		case strings.Contains(name, guess):
			hits = append(hits, hit{1, e})
		case strings.HasPrefix(name, guess[:2]):
			hits = append(hits, hit{2, e})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		if a.rank != b.rank {
			return a.rank - b.rank
		}
		return strings.Compare(a.e.Name, b.e.Name)
	})
	if len(hits) > maxMatches {
		hits = hits[:maxMatches]
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		out = append(out, Match{
			Name: h.e.Name,
			Dex:  h.e.ID,
			Forms: []Form{{
				Name:       h.e.Name,
				ID:         h.e.ID,
				MonID:      h.e.ID,
				Generation: h.e.Generation,
			}},
		})
	}
	return out
}
