// internal/phase/phase.go
//
// Connection phase of a session and every legal transition between phases.
//
//	disconnected → available            Enable (user)
//	available    → seeking              Seek (user)
//	matched      → departing            Leave (user)
//	seeking, departing, matched → available   Cancel (user)
//	any          → disconnected         Disable (user)
//	available, seeking, matched → matched     relay reports a match
//	any connected phase → available     relay reports the peer left
//
// The wire names are the ones the relay speaks: hosting, finding, found, leaving.
package phase

import "fmt"

// Phase is the pairing state of this session.
type Phase int

const (
	Disconnected Phase = iota // presence disabled, nothing is sent
	Available                 // online, not seeking
	Seeking                   // asking the relay for a match
	Matched                   // paired, contest in progress
	Departing                 // told the peer we are leaving
)

// Event names a user action.
type Event string

const (
	Enable  Event = "enable"
	Seek    Event = "seek"
	Leave   Event = "leave"
	Cancel  Event = "cancel"
	Disable Event = "disable"
)

var names = [...]string{"disconnected", "available", "seeking", "matched", "departing"}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(names) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return names[p]
}

// Wire returns the relay name of p, or "" for Disconnected.
func (p Phase) Wire() string {
	switch p {
	case Available:
		return "hosting"
	case Seeking:
		return "finding"
	case Matched:
		return "found"
	case Departing:
		return "leaving"
	}
	return ""
}

// FromWire parses a relay phase name.
func FromWire(s string) (Phase, bool) {
	switch s {
	case "hosting":
		return Available, true
	case "finding":
		return Seeking, true
	case "found":
		return Matched, true
	case "leaving":
		return Departing, true
	}
	return Disconnected, false
}

// Connected reports whether p takes part in the relay conversation.
func (p Phase) Connected() bool { return p != Disconnected }

// local lists the user-driven transitions.
var local = map[Event]map[Phase]Phase{
	Enable: {
		Disconnected: Available,
	},
	Seek: {
		Available: Seeking,
	},
	Leave: {
		Matched: Departing,
	},
	Cancel: {
		Seeking:   Available,
		Departing: Available,
		Matched:   Available,
	},
	Disable: {
		Available: Disconnected,
		Seeking:   Disconnected,
		Matched:   Disconnected,
		Departing: Disconnected,
	},
}

// Next returns the phase reached from p on e, and whether the move is legal.
func Next(p Phase, e Event) (Phase, bool) {
	to, ok := local[e][p]
	return to, ok
}

// inbound[from] lists the phases a relay message may move this session to.
var inbound = map[Phase]map[Phase]bool{
	Available: {Available: true, Matched: true},
	Seeking:   {Available: true, Seeking: true, Matched: true},
	Matched:   {Available: true, Matched: true, Departing: true},
	Departing: {Available: true, Departing: true},
}

// Accepts reports whether a relay message naming to may be applied while in from.
// A disconnected session accepts nothing.
func Accepts(from, to Phase) bool {
	return inbound[from][to]
}
