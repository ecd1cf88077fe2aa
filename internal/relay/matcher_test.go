package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tickantoe/internal/wire"
)

func msg(user, state string, maxGen int) wire.Message {
	return wire.Message{
		IsOn:       true,
		MaxGen:     maxGen,
		UserID:     user,
		BadgeOffer: 1,
		GroupIDs:   []string{user},
		GridState: wire.GridState{
			Contents: make([]*wire.Content, 9),
			Rows:     []string{user + "-r1", user + "-r2", user + "-r3"},
			Cols:     []string{user + "-c1", user + "-c2", user + "-c3"},
		},
		WSState: state,
	}
}

func TestUnmatchedIsEchoedSolo(t *testing.T) {
	m := NewMatcher()
	out := m.Apply(msg("a", wire.Hosting, 1))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"a"}, out[0].GroupIDs)
	assert.Equal(t, wire.Hosting, out[0].WSState)

	out = m.Apply(msg("b", wire.Finding, 3))
	require.Len(t, out, 1)
	assert.Equal(t, wire.Finding, out[0].WSState)
	assert.Equal(t, []string{"b"}, out[0].GroupIDs)

	hosts, seekers, battles := m.Counts()
	assert.Equal(t, [3]int{1, 1, 0}, [3]int{hosts, seekers, battles})
}

func TestSeekerMatchesHostAndHostWins(t *testing.T) {
	m := NewMatcher()
	m.Apply(msg("host", wire.Hosting, 3))
	out := m.Apply(msg("seeker", wire.Finding, 2))
	require.Len(t, out, 1)
	assert.Equal(t, wire.Found, out[0].WSState)
	assert.Equal(t, []string{"seeker", "host"}, out[0].GroupIDs)
	assert.Equal(t, "host-r1", out[0].GridState.Rows[0], "host state is shared")

	hosts, seekers, battles := m.Counts()
	assert.Equal(t, [3]int{0, 0, 1}, [3]int{hosts, seekers, battles})
}

func TestHostMatchesWaitingSeeker(t *testing.T) {
	m := NewMatcher()
	m.Apply(msg("s1", wire.Finding, 5))
	m.Apply(msg("s2", wire.Finding, 2))
	out := m.Apply(msg("host", wire.Hosting, 3))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"s2", "host"}, out[0].GroupIDs, "s1 needs a higher ceiling")
	assert.Equal(t, "host-r1", out[0].GridState.Rows[0])
}

func TestCeilingTooLowStaysUnmatched(t *testing.T) {
	m := NewMatcher()
	m.Apply(msg("host", wire.Hosting, 1))
	out := m.Apply(msg("seeker", wire.Finding, 2))
	require.Len(t, out, 1)
	assert.Equal(t, wire.Finding, out[0].WSState)
}

func TestFoundUpdatesBattle(t *testing.T) {
	m := NewMatcher()
	m.Apply(msg("host", wire.Hosting, 1))
	m.Apply(msg("seeker", wire.Finding, 1))

	update := msg("seeker", wire.Found, 1)
	update.GroupIDs = []string{"seeker", "host"}
	update.GridState.Contents[4] = &wire.Content{Name: "Slowpoke", ID: 79}
	update.GridAction = &wire.Action{Content: wire.Content{Name: "Slowpoke", ID: 79}, Position: 4}
	out := m.Apply(update)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"seeker", "host"}, out[0].GroupIDs)
	assert.Equal(t, "Slowpoke", out[0].GridState.Contents[4].Name)
	assert.NotNil(t, out[0].GridAction)

	// A stray found message outside any battle becomes a host.
	out = m.Apply(msg("lonely", wire.Found, 1))
	require.Len(t, out, 1)
	assert.Equal(t, wire.Hosting, out[0].WSState)
	assert.Equal(t, []string{"lonely"}, out[0].GroupIDs)
}

func TestLeavingDissolvesBattle(t *testing.T) {
	m := NewMatcher()
	m.Apply(msg("host", wire.Hosting, 1))
	m.Apply(msg("seeker", wire.Finding, 1))

	out := m.Apply(msg("host", wire.Leaving, 1))
	require.Len(t, out, 2)
	for _, o := range out {
		assert.Equal(t, wire.Hosting, o.WSState)
		assert.Equal(t, []string{o.UserID}, o.GroupIDs)
	}
	assert.ElementsMatch(t, []string{"seeker", "host"}, []string{out[0].UserID, out[1].UserID})

	hosts, _, battles := m.Counts()
	assert.Equal(t, 2, hosts)
	assert.Zero(t, battles)
}

func TestCancelInBattleFreesPartner(t *testing.T) {
	m := NewMatcher()
	m.Apply(msg("host", wire.Hosting, 1))
	m.Apply(msg("seeker", wire.Finding, 1))

	out := m.Apply(msg("seeker", wire.Finding, 1))
	require.Len(t, out, 2)
	assert.Equal(t, "host", out[0].UserID)
	assert.Equal(t, []string{"host"}, out[0].GroupIDs)
	assert.Equal(t, wire.Finding, out[1].WSState, "does not re-pair with the partner it just left")
}

func TestForget(t *testing.T) {
	m := NewMatcher()
	m.Apply(msg("host", wire.Hosting, 1))
	m.Apply(msg("seeker", wire.Finding, 1))

	out := m.Forget("seeker")
	require.Len(t, out, 1)
	assert.Equal(t, "host", out[0].UserID)
	assert.Equal(t, wire.Hosting, out[0].WSState)
	assert.Equal(t, []string{"host"}, out[0].GroupIDs)

	assert.Empty(t, m.Forget("host"))
	hosts, seekers, battles := m.Counts()
	assert.Equal(t, [3]int{0, 0, 0}, [3]int{hosts, seekers, battles})
}
