// internal/badges/badges.go
//
// Badge ledger: the wager ("badge") numbering shared by both players.
// Responsibilities:
//   - Static table generation → contiguous badge-id range.
//   - Nearest-generation lookup tolerant of gaps in the table (there is no gen 7).
//   - Random and rescaled badge selection for a generation ceiling.
//
// Ids are 1..N across all generations; ranges never overlap.
package badges

import (
	"math/rand/v2"
	"sort"
)

// Badge is one entry of a generation's range.
type Badge struct {
	ID   int
	Name string
}

// table is ordered by generation and by id inside each generation.
var table = map[int][]Badge{
	1: {{1, "boulder"}, {2, "cascade"}, {3, "thunder"}, {4, "rainbow"}, {5, "soul"}, {6, "marsh"}, {7, "volcano"}, {8, "earth"}},
	2: {{9, "zephyr"}, {10, "hive"}, {11, "plain"}, {12, "fog"}, {13, "storm"}, {14, "mineral"}, {15, "glacier"}, {16, "rising"}},
	3: {{17, "stone"}, {18, "knuckle"}, {19, "dynamo"}, {20, "heat"}, {21, "balance"}, {22, "feather"}, {23, "mind"}, {24, "rain"}},
	4: {{25, "coal"}, {26, "forest"}, {27, "cobble"}, {28, "fen"}, {29, "relic"}, {30, "mine"}, {31, "icicle"}, {32, "beacon"}},
	5: {{33, "trio"}, {34, "basic"}, {35, "insect"}, {36, "bolt"}, {37, "quake"}, {38, "jet"}, {39, "freeze"}, {40, "legend"}},
	6: {{41, "bug"}, {42, "cliff"}, {43, "rumble"}, {44, "plant"}, {45, "voltage"}, {46, "fairy"}, {47, "psychic"}, {48, "iceberg"}},
	8: {{49, "grass"}, {50, "water"}, {51, "fire"}, {52, "fighting"}, {53, "ghost"}, {54, "fairy"}, {55, "rock"}, {56, "ice"}, {57, "dark"}, {58, "dragon"}},
}

// generations holds the table keys in natural order.
var generations = func() []int {
	out := make([]int, 0, len(table))
	for g := range table {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}()

// byID indexes every badge across generations.
var byID = func() map[int]string {
	out := make(map[int]string)
	for _, list := range table {
		for _, b := range list {
			out[b.ID] = b.Name
		}
	}
	return out
}()

// Generations returns the table keys in ascending order.
func Generations() []int {
	return append([]int(nil), generations...)
}

// MaxGeneration is the newest generation with badges.
func MaxGeneration() int { return generations[len(generations)-1] }

// NearestGeneration returns the table key closest to g.
// Ties resolve to the lower key.
func NearestGeneration(g int) int {
	best := generations[0]
	for _, k := range generations[1:] {
		if abs(k-g) < abs(best-g) {
			best = k
		}
	}
	return best
}

// MinID is the first badge id of the generation nearest to gen.
func MinID(gen int) int {
	list := table[NearestGeneration(gen)]
	return list[0].ID
}

// MaxID is the last badge id of the generation nearest to gen.
func MaxID(gen int) int {
	list := table[NearestGeneration(gen)]
	return list[len(list)-1].ID
}

// Name returns the badge name for id, or "" when the id is not in the table.
func Name(id int) string { return byID[id] }

// Random draws a badge uniformly from the range of the generation nearest to maxGen.
func Random(rng *rand.Rand, maxGen int) int {
	lo, hi := MinID(maxGen), MaxID(maxGen)
	return lo + rng.IntN(hi-lo+1)
}

// Rescale maps a badge offered under another ceiling onto maxGen:
//
//	1 + ((offer-1) mod MaxID(maxGen))
//
// The modulo is Euclidean so negative offers wrap too. Results that land
// below MinID(maxGen) are folded into the generation's own range by the
// same relative position, so Rescale always returns a legal id and
// Rescale(Rescale(x, g), g) == Rescale(x, g).
func Rescale(offer, maxGen int) int {
	lo, hi := MinID(maxGen), MaxID(maxGen)
	out := 1 + mod(offer-1, hi)
	if out < lo {
		out = lo + mod(out-1, hi-lo+1)
	}
	return out
}

// InRange reports whether id is legal for the ceiling maxGen.
func InRange(id, maxGen int) bool {
	return id >= MinID(maxGen) && id <= MaxID(maxGen)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
