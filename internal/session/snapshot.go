// internal/session/snapshot.go
//
// Snapshot types owned by the session store.
// Defines:
//   - Entity: a placed grid occupant.
//   - Online: the wager and generation ceiling shared with a peer.
//   - Identity: this session's id and its current group.
//   - Snapshot: everything one session knows about itself.
//   - Action: an advisory single-slot delta sent with a snapshot.
package session

import (
	"slices"

	"github.com/robalobadob/tickantoe/internal/conditions"
	"github.com/robalobadob/tickantoe/internal/phase"
)

// Size is the number of grid slots.
const Size = 9

// MaxTries caps the attempt counter.
const MaxTries = 9

// Entity is a placed grid occupant.
type Entity struct {
	Generation int    `json:"generation"`
	Name       string `json:"name"`
	Key        int    `json:"key"`
	ID         int    `json:"id"`
}

// Online is the wager state.
type Online struct {
	IsOn       bool `json:"is_on"`
	MaxGen     int  `json:"max_gen"`
	BadgeOffer int  `json:"badge_offer"`
}

// Identity is the locally generated user id and the group it is paired with.
type Identity struct {
	UserID string   `json:"user_id"`
	Group  []string `json:"group_ids"`
}

// Solo resets the group to just this identity.
func (id Identity) Solo() Identity {
	return Identity{UserID: id.UserID, Group: []string{id.UserID}}
}

// InGroup reports whether the local id is a member of group.
func (id Identity) InGroup(group []string) bool {
	return slices.Contains(group, id.UserID)
}

// Snapshot is the full session state.
type Snapshot struct {
	Online   Online
	Identity Identity
	Phase    phase.Phase
	Grid     conditions.Grid
	Contents [Size]*Entity
	Tries    int
	Failures []int
}

// Action describes the most recent local placement.
type Action struct {
	Content  Entity `json:"content"`
	Position int    `json:"position"`
}

// Filled counts the non-empty slots.
func (s Snapshot) Filled() int {
	n := 0
	for _, e := range s.Contents {
		if e != nil {
			n++
		}
	}
	return n
}

// Failed reports whether the session has used all its tries with at least one miss.
func (s Snapshot) Failed() bool {
	return len(s.Failures) > 0 && s.Tries >= MaxTries
}

// Clone returns a deep copy; entities are copied by value.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Identity.Group = slices.Clone(s.Identity.Group)
	out.Failures = slices.Clone(s.Failures)
	for i, e := range s.Contents {
		if e != nil {
			c := *e
			out.Contents[i] = &c
		}
	}
	return out
}

// Publisher forwards snapshots for transmission. Implementations must not
// call back into the Store that invoked them.
type Publisher interface {
	Publish(snap Snapshot, action *Action)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Snapshot, *Action)

// Publish implements Publisher.
func (f PublisherFunc) Publish(snap Snapshot, action *Action) { f(snap, action) }
