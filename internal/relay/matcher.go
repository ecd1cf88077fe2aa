// internal/relay/matcher.go
//
// Matchmaking memory of the relay. Not safe for concurrent use: the hub's worker
// goroutine is its only caller.
//
// Rules:
//   - finding pairs with the first host whose max_gen ≥ the seeker's.
//   - hosting pairs with the first seeker whose max_gen ≤ the host's.
//   - A new pair is keyed (seeker, host) and carries the host's message as "found".
//   - found from a battle member replaces the battle state; found with no battle
//     turns the sender back into a host.
//   - leaving dissolves the battle: every member becomes a solo host.
//   - Leaving a battle by any other message, or by disconnecting, turns the
//     partner into a solo host.
//   - Unmatched hosting/finding messages are echoed with a singleton group.
package relay

import (
	"slices"

	"github.com/robalobadob/tickantoe/internal/wire"
)

type battle struct {
	key   [2]string // seeker, host
	state wire.Message
}

func (b battle) has(user string) bool { return b.key[0] == user || b.key[1] == user }

func (b battle) other(user string) string {
	if b.key[0] == user {
		return b.key[1]
	}
	return b.key[0]
}

// Matcher holds hosts, seekers and battles in arrival order.
type Matcher struct {
	hosts   []wire.Message
	seekers []wire.Message
	battles []battle
}

// NewMatcher returns an empty matcher.
func NewMatcher() *Matcher { return &Matcher{} }

// Apply handles one inbound message and returns the messages to broadcast.
func (m *Matcher) Apply(msg wire.Message) []wire.Message {
	own := msg.UserID
	b, inBattle := m.battleOf(own)

	switch msg.WSState {
	case wire.Leaving:
		m.clear(own)
		if !inBattle {
			return []wire.Message{m.host(msg, own)}
		}
		m.clear(b.other(own))
		return []wire.Message{m.host(msg, b.key[0]), m.host(msg, b.key[1])}

	case wire.Found:
		if !inBattle {
			m.clear(own)
			return []wire.Message{m.host(msg, own)}
		}
		return []wire.Message{m.replace(b.key, msg)}
	}

	var out []wire.Message
	var partner string
	m.clear(own)
	if inBattle {
		partner = b.other(own)
		out = append(out, m.host(b.state, partner))
	}

	if msg.WSState == wire.Hosting {
		if i := slices.IndexFunc(m.seekers, func(s wire.Message) bool { return msg.MaxGen >= s.MaxGen }); i >= 0 {
			seeker := m.seekers[i]
			m.clear(seeker.UserID)
			return append(out, m.pair([2]string{seeker.UserID, own}, msg))
		}
		return append(out, m.host(msg, own))
	}

	// finding
	if i := slices.IndexFunc(m.hosts, func(h wire.Message) bool {
		return h.UserID != partner && h.MaxGen >= msg.MaxGen
	}); i >= 0 {
		host := m.hosts[i]
		m.clear(host.UserID)
		return append(out, m.pair([2]string{own, host.UserID}, host))
	}
	return append(out, m.seek(msg))
}

// Forget drops a disconnected user. A battle partner becomes a solo host.
func (m *Matcher) Forget(user string) []wire.Message {
	b, inBattle := m.battleOf(user)
	m.clear(user)
	if !inBattle {
		return nil
	}
	return []wire.Message{m.host(b.state, b.other(user))}
}

// Counts reports the number of hosts, seekers and battles.
func (m *Matcher) Counts() (hosts, seekers, battles int) {
	return len(m.hosts), len(m.seekers), len(m.battles)
}

func (m *Matcher) battleOf(user string) (battle, bool) {
	for _, b := range m.battles {
		if b.has(user) {
			return b, true
		}
	}
	return battle{}, false
}

// clear removes user from every table, dissolving any battle it is part of.
func (m *Matcher) clear(user string) {
	byUser := func(x wire.Message) bool { return x.UserID == user }
	m.hosts = slices.DeleteFunc(m.hosts, byUser)
	m.seekers = slices.DeleteFunc(m.seekers, byUser)
	m.battles = slices.DeleteFunc(m.battles, func(b battle) bool { return b.has(user) })
}

func (m *Matcher) host(msg wire.Message, user string) wire.Message {
	out := msg.Clone()
	out.UserID = user
	out.GroupIDs = []string{user}
	out.WSState = wire.Hosting
	out.GridAction = nil
	m.hosts = append(m.hosts, out)
	return out
}

func (m *Matcher) seek(msg wire.Message) wire.Message {
	out := msg.Clone()
	out.GroupIDs = []string{msg.UserID}
	m.seekers = append(m.seekers, out)
	return out
}

func (m *Matcher) pair(key [2]string, winner wire.Message) wire.Message {
	out := winner.Clone()
	out.GroupIDs = []string{key[0], key[1]}
	out.WSState = wire.Found
	m.battles = append(m.battles, battle{key: key, state: out})
	return out
}

func (m *Matcher) replace(key [2]string, msg wire.Message) wire.Message {
	out := msg.Clone()
	out.GroupIDs = []string{key[0], key[1]}
	out.WSState = wire.Found
	for i := range m.battles {
		if m.battles[i].key == key {
			m.battles[i].state = out
		}
	}
	return out
}
