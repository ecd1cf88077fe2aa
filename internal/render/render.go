// Package render draws a session snapshot as plain terminal text for the play
// command. Colour is applied by lipgloss only when the output supports it.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robalobadob/tickantoe/internal/badges"
	"github.com/robalobadob/tickantoe/internal/session"
)

const cellWidth = 14

var (
	header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Width(cellWidth)
	cell   = lipgloss.NewStyle().Width(cellWidth)
	empty  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(cellWidth)
	failed = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Board renders the grid with its conditions, then a status line.
func Board(snap session.Snapshot) string {
	var b strings.Builder

	row := []string{cell.Render("")}
	for _, c := range snap.Grid.Cols {
		row = append(row, header.Render(c))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
	b.WriteByte('\n')

	for r := 0; r < 3; r++ {
		row = []string{header.Render(snap.Grid.Rows[r])}
		for c := 0; c < 3; c++ {
			pos := r*3 + c
			if e := snap.Contents[pos]; e != nil {
				row = append(row, cell.Render(e.Name))
			} else {
				row = append(row, empty.Render(fmt.Sprintf("[%d]", pos)))
			}
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		b.WriteByte('\n')
	}
	b.WriteString(Status(snap))
	return b.String()
}

// Status is the one-line summary under the board.
func Status(snap session.Snapshot) string {
	badge := badges.Name(snap.Online.BadgeOffer)
	if badge == "" {
		badge = fmt.Sprintf("#%d", snap.Online.BadgeOffer)
	}
	line := fmt.Sprintf("gen ≤%d  badge %s  tries %d/%d  %s",
		snap.Online.MaxGen, badge, snap.Tries, session.MaxTries, snap.Phase)
	if len(snap.Identity.Group) > 1 {
		line += "  with " + strings.Join(others(snap.Identity), ",")
	}
	line = status.Render(line)
	if snap.Failed() {
		line += "  " + failed.Render("out of tries")
	}
	return line
}

func others(id session.Identity) []string {
	var out []string
	for _, u := range id.Group {
		if u != id.UserID {
			out = append(out, u)
		}
	}
	return out
}
