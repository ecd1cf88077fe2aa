// internal/online/shape.go
//
// Pure message shaping: snapshot → outbound frame, and (snapshot, inbound frame) →
// reconciled snapshot. Neither function touches the connection or the store.
package online

import (
	"slices"

	"github.com/robalobadob/tickantoe/internal/phase"
	"github.com/robalobadob/tickantoe/internal/session"
	"github.com/robalobadob/tickantoe/internal/wire"
)

// Discard reasons, also used as metric labels.
const (
	reasonMalformed = "malformed"
	reasonForeign   = "foreign_group"
	reasonPhase     = "illegal_phase"
)

// Outbound shapes the frame sent for snap.
func Outbound(snap session.Snapshot, action *session.Action) wire.Message {
	m := wire.Message{
		IsOn:       snap.Online.IsOn,
		MaxGen:     snap.Online.MaxGen,
		UserID:     snap.Identity.UserID,
		BadgeOffer: snap.Online.BadgeOffer,
		GroupIDs:   slices.Clone(snap.Identity.Group),
		GridState: wire.GridState{
			Contents: make([]*wire.Content, session.Size),
			Cols:     snap.Grid.Cols[:],
			Rows:     snap.Grid.Rows[:],
		},
		WSState: snap.Phase.Wire(),
	}
	if len(m.GroupIDs) == 0 {
		m.GroupIDs = []string{snap.Identity.UserID}
	}
	for i, e := range snap.Contents {
		if e != nil {
			c := wire.Content(*e)
			m.GridState.Contents[i] = &c
		}
	}
	if action != nil {
		m.GridAction = &wire.Action{Content: wire.Content(action.Content), Position: action.Position}
	}
	return m
}

// Reconcile applies an inbound frame to local. It reports false, leaving local
// untouched, when the frame is addressed to another group or names a phase this
// session cannot reach from where it is.
func Reconcile(local session.Snapshot, m wire.Message) (session.Snapshot, bool) {
	next, reason := reconcile(local, m)
	return next, reason == ""
}

func reconcile(local session.Snapshot, m wire.Message) (session.Snapshot, string) {
	if !local.Identity.InGroup(m.GroupIDs) {
		return local, reasonForeign
	}
	to, ok := phase.FromWire(m.WSState)
	if !ok || !phase.Accepts(local.Phase, to) {
		return local, reasonPhase
	}

	next := local.Clone()
	next.Online.MaxGen = m.MaxGen
	next.Online.BadgeOffer = m.BadgeOffer
	next.Phase = to
	next.Identity.Group = slices.Clone(m.GroupIDs)
	copy(next.Grid.Rows[:], m.GridState.Rows)
	copy(next.Grid.Cols[:], m.GridState.Cols)
	for i := range next.Contents {
		next.Contents[i] = nil
		if i < len(m.GridState.Contents) && m.GridState.Contents[i] != nil {
			e := session.Entity(*m.GridState.Contents[i])
			next.Contents[i] = &e
		}
	}

	if to == phase.Matched && local.Phase != phase.Matched {
		next.Tries = next.Filled()
		next.Failures = []int{}
	}
	return next, ""
}
