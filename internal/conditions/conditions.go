// internal/conditions/conditions.go
//
// Core types for grid conditions.
// Defines:
//   - Pair: an ordered (row, column) condition pair, JSON-encoded as a 2-element array.
//   - Grid: the 3 row and 3 column conditions of a puzzle.
//   - History: the persisted exclusion history of pairs already used together.
package conditions

// Unknown is the placeholder condition used when no valid grid could be built.
const Unknown = "unknown"

// Pair is an ordered (row, column) pair of conditions.
type Pair [2]string

// Row returns the row condition.
func (p Pair) Row() string { return p[0] }

// Col returns the column condition.
func (p Pair) Col() string { return p[1] }

// Reversed swaps row and column.
func (p Pair) Reversed() Pair { return Pair{p[1], p[0]} }

// has reports whether c is either member of p.
func (p Pair) has(c string) bool { return p[0] == c || p[1] == c }

// covers reports whether every member of q appears in p, ignoring order.
func (p Pair) covers(q Pair) bool { return p.has(q[0]) && p.has(q[1]) }

// Grid holds the row and column conditions; index = position on the board.
type Grid struct {
	Rows [3]string `json:"rows"`
	Cols [3]string `json:"cols"`
}

// Pairs returns the 9 row×column pairs in row-major order.
func (g Grid) Pairs() []Pair {
	out := make([]Pair, 0, 9)
	for _, r := range g.Rows {
		for _, c := range g.Cols {
			out = append(out, Pair{r, c})
		}
	}
	return out
}

// Unknowns counts the placeholder rows and columns.
func (g Grid) Unknowns() int {
	n := 0
	for i := 0; i < 3; i++ {
		if g.Rows[i] == Unknown {
			n++
		}
		if g.Cols[i] == Unknown {
			n++
		}
	}
	return n
}

// History is the exclusion history: unordered pairs used together in earlier grids,
// oldest first.
type History []Pair

// Banned reports whether both members of some history entry appear in p.
func (h History) Banned(p Pair) bool {
	for _, b := range h {
		if p.covers(b) {
			return true
		}
	}
	return false
}

// With returns a copy of h extended with the pairs of g, skipping placeholders
// and pairs already present. When limit > 0 the oldest entries are dropped so
// that at most limit remain.
func (h History) With(g Grid, limit int) History {
	out := append(History(nil), h...)
	for _, p := range g.Pairs() {
		if p.has(Unknown) || out.contains(p) {
			continue
		}
		out = append(out, p)
	}
	if limit > 0 && len(out) > limit {
		out = append(History(nil), out[len(out)-limit:]...)
	}
	return out
}

func (h History) contains(p Pair) bool {
	for _, b := range h {
		if b.covers(p) && p.covers(b) {
			return true
		}
	}
	return false
}
