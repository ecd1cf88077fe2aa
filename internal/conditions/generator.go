// internal/conditions/generator.go
//
// Condition generator: builds a 3×3 grid whose rows and columns form a complete
// valid biclique of the validity relation.
//
// Algorithm (Pick):
//   1. Pool = relation ∪ reversed relation, minus pairs banned by the history.
//   2. Draw up to 3 "diagonal" picks. After each pick, prune the remaining pool:
//      - drop candidates reusing a row or column condition already on the board;
//      - drop candidates whose row does not pair with every picked column, or whose
//        column does not pair with every picked row (checked against the pool).
//   3. An attempt that empties its pool before 3 picks restarts from the full pool,
//      up to MaxRounds attempts. After that the missing picks become ("unknown","unknown").
//
// Pick[i] = (row_i, col_i), so the flattened grid is rows = pick[*][0], cols = pick[*][1].
package conditions

import (
	"context"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// MaxRounds bounds the number of restarted attempts.
const MaxRounds = 1000

var (
	generatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickantoe_generator_grids_total",
		Help: "Grids generated, by result (complete or exhausted)",
	}, []string{"result"})

	generatorRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tickantoe_generator_rounds",
		Help:    "Attempts needed per generated grid",
		Buckets: []float64{1, 2, 5, 10, 50, 100, 500, 1000},
	})
)

// Source supplies the validity relation for a generation ceiling.
type Source interface {
	ValidCombos(ctx context.Context, maxGen int) ([]Pair, error)
}

// Result describes one Pick run.
type Result struct {
	Grid      Grid
	Rounds    int  // attempts made
	Exhausted bool // true when placeholders were needed
}

// Pick builds a grid from relation, avoiding pairs banned by history.
// It always terminates with exactly 3 rows and 3 columns.
func Pick(rng *rand.Rand, relation []Pair, history History) Result {
	pool := candidates(relation, history)
	valid := make(map[Pair]struct{}, len(pool))
	for _, p := range pool {
		valid[p] = struct{}{}
	}

	var picks []Pair
	rounds := 0
	for rounds < MaxRounds {
		rounds++
		picks = attempt(rng, pool, valid)
		if len(picks) == 3 {
			break
		}
	}

	res := Result{Rounds: rounds, Exhausted: len(picks) < 3}
	for len(picks) < 3 {
		picks = append(picks, Pair{Unknown, Unknown})
	}
	for i, p := range picks {
		res.Grid.Rows[i] = p.Row()
		res.Grid.Cols[i] = p.Col()
	}
	return res
}

// candidates returns the deduplicated, symmetrized relation minus banned pairs.
func candidates(relation []Pair, history History) []Pair {
	seen := make(map[Pair]struct{}, 2*len(relation))
	out := make([]Pair, 0, 2*len(relation))
	add := func(p Pair) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		if history.Banned(p) {
			return
		}
		out = append(out, p)
	}
	for _, p := range relation {
		add(p)
	}
	for _, p := range relation {
		add(p.Reversed())
	}
	return out
}

// attempt draws picks until 3 are found or the pool runs dry.
func attempt(rng *rand.Rand, pool []Pair, valid map[Pair]struct{}) []Pair {
	remaining := pool
	picks := make([]Pair, 0, 3)
	for len(picks) < 3 && len(remaining) > 0 {
		picks = append(picks, remaining[rng.IntN(len(remaining))])
		remaining = prune(remaining, picks, valid)
	}
	return picks
}

// prune keeps the candidates that can still join picks.
func prune(remaining, picks []Pair, valid map[Pair]struct{}) []Pair {
	used := make(map[string]struct{}, 2*len(picks))
	for _, p := range picks {
		used[p.Row()] = struct{}{}
		used[p.Col()] = struct{}{}
	}
	out := make([]Pair, 0, len(remaining))
	for _, c := range remaining {
		if _, ok := used[c.Row()]; ok {
			continue
		}
		if _, ok := used[c.Col()]; ok {
			continue
		}
		if compatible(c, picks, valid) {
			out = append(out, c)
		}
	}
	return out
}

func compatible(c Pair, picks []Pair, valid map[Pair]struct{}) bool {
	for _, p := range picks {
		if _, ok := valid[Pair{c.Row(), p.Col()}]; !ok {
			return false
		}
		if _, ok := valid[Pair{p.Row(), c.Col()}]; !ok {
			return false
		}
	}
	return true
}

// Generator fetches the relation from a Source and runs Pick.
type Generator struct {
	src Source
	rng *rand.Rand
}

// NewGenerator constructs a Generator. rng is not safe for concurrent use;
// callers serialize Generate.
func NewGenerator(src Source, rng *rand.Rand) *Generator {
	return &Generator{src: src, rng: rng}
}

// Generate builds a fresh grid for maxGen. A failed relation fetch is not fatal:
// the error is returned alongside a placeholder grid.
func (g *Generator) Generate(ctx context.Context, maxGen int, history History) (Grid, error) {
	relation, err := g.src.ValidCombos(ctx, maxGen)
	if err != nil {
		log.Warn().Err(err).Int("maxGen", maxGen).Msg("fetch validity relation")
		relation = nil
	}
	res := Pick(g.rng, relation, history)
	generatorRounds.Observe(float64(res.Rounds))
	if res.Exhausted {
		generatedTotal.WithLabelValues("exhausted").Inc()
		log.Warn().
			Int("maxGen", maxGen).
			Int("combos", len(relation)).
			Int("excluded", len(history)).
			Int("unknowns", res.Grid.Unknowns()).
			Msg("generator exhausted, using placeholders")
	} else {
		generatedTotal.WithLabelValues("complete").Inc()
	}
	return res.Grid, err
}
