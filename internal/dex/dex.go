// internal/dex/dex.go
//
// Entity table behind the condition API.
//
// Responsibilities:
//   - Load the YAML table from DEX_FILE or fall back to the embedded default.
//   - Derive each entity's criteria: its types, its region, and "monotype" when
//     it has a single type.
//   - Answer the validity relation per generation ceiling (ValidCombos), guess
//     checks (Test), generation metadata (Metadata) and name search (Matches).
//
// Constraints:
//   • Criteria are lowercase; conditions are compared case-insensitively.
//   • A generation ceiling of 0 or above the largest generation means "all".
//   • The table is immutable after Load, so a *Dex is safe for concurrent use.

package dex

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/robalobadob/tickantoe/assets"
	"github.com/robalobadob/tickantoe/internal/conditions"
)

// Monotype is the criterion shared by single-typed entities.
const Monotype = "monotype"

// Generation is one release generation.
type Generation struct {
	N      int    `yaml:"n" json:"n" validate:"gte=1"`
	Year   int    `yaml:"year" json:"year" validate:"gte=1"`
	Region string `yaml:"region" json:"region" validate:"required"`
}

// Entity is one guessable entry.
type Entity struct {
	ID         int      `yaml:"id" json:"id" validate:"gte=1"`
	Name       string   `yaml:"name" json:"name" validate:"required"`
	Generation int      `yaml:"generation" json:"generation" validate:"gte=1"`
	Types      []string `yaml:"types" json:"types" validate:"min=1,max=2,dive,required"`
}

type table struct {
	Generations []Generation `yaml:"generations" validate:"min=1,dive"`
	Entities    []Entity     `yaml:"entities" validate:"min=1,dive"`
}

// Dex is a loaded, indexed table.
type Dex struct {
	generations []Generation
	entities    []Entity
	byID        map[int]Entity
	regions     map[int]string
	combos      map[int][]conditions.Pair // by generation ceiling
}

var validate = validator.New()

// Load reads the table at path, or the embedded table when path is empty.
func Load(path string) (*Dex, error) {
	data, err := assets.Dex(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a Dex from YAML.
func Parse(data []byte) (*Dex, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse dex: %w", err)
	}
	if err := validate.Struct(t); err != nil {
		return nil, fmt.Errorf("invalid dex: %w", err)
	}

	d := &Dex{
		generations: slices.Clone(t.Generations),
		byID:        make(map[int]Entity, len(t.Entities)),
		regions:     make(map[int]string, len(t.Generations)),
		combos:      make(map[int][]conditions.Pair),
	}
	slices.SortFunc(d.generations, func(a, b Generation) int { return a.N - b.N })
	for _, g := range d.generations {
		if _, dup := d.regions[g.N]; dup {
			return nil, fmt.Errorf("invalid dex: generation %d listed twice", g.N)
		}
		d.regions[g.N] = strings.ToLower(g.Region)
	}
	for _, e := range t.Entities {
		if _, ok := d.regions[e.Generation]; !ok {
			return nil, fmt.Errorf("invalid dex: %s has unknown generation %d", e.Name, e.Generation)
		}
		if _, dup := d.byID[e.ID]; dup {
			return nil, fmt.Errorf("invalid dex: id %d listed twice", e.ID)
		}
		for i := range e.Types {
			e.Types[i] = strings.ToLower(e.Types[i])
		}
		d.byID[e.ID] = e
		d.entities = append(d.entities, e)
	}
	for _, g := range d.generations {
		d.combos[g.N] = d.buildCombos(g.N)
	}
	return d, nil
}

// Generations returns the generation list in ascending order.
func (d *Dex) Generations() []Generation { return slices.Clone(d.generations) }

// MaxGeneration is the largest generation number.
func (d *Dex) MaxGeneration() int { return d.generations[len(d.generations)-1].N }

// Clamp maps a requested ceiling onto a known generation: 0 or anything above
// the largest means the largest; values between entries round down.
func (d *Dex) Clamp(maxGen int) int {
	top := d.MaxGeneration()
	if maxGen <= 0 || maxGen >= top {
		return top
	}
	best := d.generations[0].N
	for _, g := range d.generations {
		if g.N <= maxGen {
			best = g.N
		}
	}
	return best
}

// Entity looks up an entity by id.
func (d *Dex) Entity(id int) (Entity, bool) {
	e, ok := d.byID[id]
	return e, ok
}

// Criteria lists the conditions e satisfies.
func (d *Dex) Criteria(e Entity) []string {
	out := slices.Clone(e.Types)
	if len(e.Types) == 1 {
		out = append(out, Monotype)
	}
	return append(out, d.regions[e.Generation])
}

// ValidCombos returns every unordered pair of distinct criteria shared by some
// entity of generation ≤ maxGen, each once and sorted.
func (d *Dex) ValidCombos(maxGen int) []conditions.Pair {
	return slices.Clone(d.combos[d.Clamp(maxGen)])
}

func (d *Dex) buildCombos(maxGen int) []conditions.Pair {
	seen := make(map[conditions.Pair]struct{})
	for _, e := range d.entities {
		if e.Generation > maxGen {
			continue
		}
		crit := d.Criteria(e)
		for i := 0; i < len(crit); i++ {
			for j := i + 1; j < len(crit); j++ {
				a, b := crit[i], crit[j]
				if a == b {
					continue
				}
				if b < a {
					a, b = b, a
				}
				seen[conditions.Pair{a, b}] = struct{}{}
			}
		}
	}
	out := make([]conditions.Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.SortFunc(out, func(x, y conditions.Pair) int {
		if c := strings.Compare(x[0], y[0]); c != 0 {
			return c
		}
		return strings.Compare(x[1], y[1])
	})
	return out
}

// Test reports whether the entity named by identifier satisfies every condition.
// Unknown identifiers and an empty condition list never pass.
func (d *Dex) Test(identifier string, conds []string) bool {
	if len(conds) == 0 {
		return false
	}
	id, err := strconv.Atoi(strings.TrimSpace(identifier))
	if err != nil {
		return false
	}
	e, ok := d.byID[id]
	if !ok {
		return false
	}
	crit := d.Criteria(e)
	for _, c := range conds {
		if !slices.ContainsFunc(crit, func(x string) bool { return strings.EqualFold(x, strings.TrimSpace(c)) }) {
			return false
		}
	}
	return true
}
