package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robalobadob/tickantoe/internal/conditions"
	"github.com/robalobadob/tickantoe/internal/phase"
	"github.com/robalobadob/tickantoe/internal/session"
)

func TestBoard(t *testing.T) {
	snap := session.Snapshot{
		Online:   session.Online{MaxGen: 1, BadgeOffer: 1},
		Identity: session.Identity{UserID: "me", Group: []string{"peer", "me"}},
		Phase:    phase.Matched,
		Grid: conditions.Grid{
			Rows: [3]string{"kanto", "water", "grass"},
			Cols: [3]string{"poison", "psychic", "monotype"},
		},
		Tries:    9,
		Failures: []int{3},
	}
	snap.Contents[4] = &session.Entity{Name: "Slowpoke", ID: 79}

	out := Board(snap)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[0], "psychic")
	assert.Contains(t, lines[2], "water")
	assert.Contains(t, lines[2], "Slowpoke")
	assert.Contains(t, lines[1], "[0]")
	assert.Contains(t, lines[4], "matched")
	assert.Contains(t, lines[4], "with peer")
	assert.Contains(t, lines[4], "tries 9/9")
	assert.Contains(t, lines[4], "out of tries")
}
