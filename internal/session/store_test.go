package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tickantoe/internal/conditions"
	"github.com/robalobadob/tickantoe/internal/kv"
	"github.com/robalobadob/tickantoe/internal/phase"
)

type recorder struct {
	snaps   []Snapshot
	actions []*Action
}

func (r *recorder) Publish(s Snapshot, a *Action) {
	r.snaps = append(r.snaps, s)
	r.actions = append(r.actions, a)
}

var grid = conditions.Grid{
	Rows: [3]string{"kanto", "water", "grass"},
	Cols: [3]string{"poison", "psychic", "monotype"},
}

func seed(t *testing.T, s *Store) Snapshot {
	t.Helper()
	snap, err := s.Update(context.Background(), nil, func(sn *Snapshot) {
		sn.Online = Online{MaxGen: 2, BadgeOffer: 12}
		sn.Grid = grid
		sn.Tries = 2
		sn.Failures = []int{1}
		sn.Contents[4] = &Entity{Generation: 1, Name: "Tentacool", Key: 72, ID: 72}
	})
	require.NoError(t, err)
	return snap
}

func TestLoadEmpty(t *testing.T) {
	backend := kv.NewMemoryStore()
	s := New(backend, 0)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	id := s.Snapshot().Identity
	assert.NotEmpty(t, id.UserID)
	assert.Equal(t, []string{id.UserID}, id.Group)

	stored, err := backend.Get(context.Background(), KeyIdentity)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, stored)
}

func TestRoundTripAcrossStores(t *testing.T) {
	ctx := context.Background()
	backend, err := kv.OpenSQLite(filepath.Join(t.TempDir(), "profile.db"))
	require.NoError(t, err)
	defer backend.Close()

	first := New(backend, 0)
	_, err = first.Load(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)
	_, err = first.Update(ctx, nil, func(sn *Snapshot) { sn.Phase = phase.Matched; sn.Online.IsOn = true })
	require.NoError(t, err)
	saved := seed(t, first)

	second := New(backend, 0)
	loaded, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Identity.UserID, loaded.Identity.UserID)
	assert.Equal(t, phase.Disconnected, loaded.Phase)
	assert.False(t, loaded.Online.IsOn)
	assert.Equal(t, 12, loaded.Online.BadgeOffer)
	assert.Equal(t, grid, loaded.Grid)
	assert.Equal(t, 2, loaded.Tries)
	assert.Equal(t, []int{1}, loaded.Failures)
	require.NotNil(t, loaded.Contents[4])
	assert.Equal(t, "Tentacool", loaded.Contents[4].Name)
	assert.Nil(t, loaded.Contents[0])
}

func TestIncompatibleSnapshotIsAbsent(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		KeyContents: `[null,null]`,
		KeyRows:     `["a","b"]`,
		KeyTries:    `eleven`,
		KeyOnline:   `{"max_gen":`,
	}
	for key, bad := range cases {
		t.Run(key, func(t *testing.T) {
			backend := kv.NewMemoryStore()
			seed(t, New(backend, 0))
			require.NoError(t, backend.Set(ctx, key, bad))

			_, err := New(backend, 0).Load(ctx)
			assert.ErrorIs(t, err, ErrNoSnapshot)
		})
	}
}

func TestUpdatePublishesWithAction(t *testing.T) {
	s := New(kv.NewMemoryStore(), 0)
	rec := &recorder{}
	s.SetPublisher(rec)

	act := &Action{Content: Entity{Name: "Slowpoke", ID: 79}, Position: 1}
	_, err := s.Update(context.Background(), act, func(sn *Snapshot) {
		sn.Contents[1] = &act.Content
	})
	require.NoError(t, err)
	require.Len(t, rec.snaps, 1)
	assert.Same(t, act, rec.actions[0])
	assert.Equal(t, "Slowpoke", rec.snaps[0].Contents[1].Name)
}

func TestUpdateIfAbortsWithoutSideEffects(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s := New(backend, 0)
	before := seed(t, s)
	rec := &recorder{}
	s.SetPublisher(rec)

	errStop := errors.New("stop")
	got, err := s.UpdateIf(ctx, nil, func(sn *Snapshot) error {
		sn.Online.BadgeOffer = 99
		return errStop
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 12, got.Online.BadgeOffer)
	assert.Equal(t, before, s.Snapshot())
	assert.Empty(t, rec.snaps)

	stored, err := backend.Get(ctx, KeyOnline)
	require.NoError(t, err)
	assert.NotContains(t, stored, "99")

	got, err = s.UpdateIf(ctx, nil, func(sn *Snapshot) error {
		sn.Online.BadgeOffer = 13
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 13, got.Online.BadgeOffer)
	assert.Len(t, rec.snaps, 1)
}

func TestOnCeilingFiresOnChange(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemoryStore(), 0)
	var seen []int
	s.OnCeiling(func(maxGen int) { seen = append(seen, maxGen) })

	seed(t, s)
	_, err := s.Update(ctx, nil, func(sn *Snapshot) { sn.Tries = 3 })
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, func(sn Snapshot) (Snapshot, bool) {
		sn.Online.MaxGen = 4
		return sn, true
	})
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, func(sn Snapshot) (Snapshot, bool) { return sn, true })
	require.NoError(t, err)

	assert.Equal(t, []int{2, 4}, seen)
}

func TestReconcilePublishesOnlyChanges(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemoryStore(), 0)
	seed(t, s)
	rec := &recorder{}
	s.SetPublisher(rec)

	ok, err := s.Reconcile(ctx, func(sn Snapshot) (Snapshot, bool) { return sn, false })
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Reconcile(ctx, func(sn Snapshot) (Snapshot, bool) { return sn, true })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rec.snaps)

	ok, err = s.Reconcile(ctx, func(sn Snapshot) (Snapshot, bool) {
		sn.Online.BadgeOffer = 9
		return sn, true
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, rec.snaps, 1)
	assert.Nil(t, rec.actions[0])
	assert.Equal(t, 9, s.Snapshot().Online.BadgeOffer)
}

func TestSnapshotIsolation(t *testing.T) {
	s := New(kv.NewMemoryStore(), 0)
	seed(t, s)
	snap := s.Snapshot()
	snap.Failures[0] = 99
	snap.Contents[4].Name = "Changed"
	fresh := s.Snapshot()
	assert.Equal(t, []int{1}, fresh.Failures)
	assert.Equal(t, "Tentacool", fresh.Contents[4].Name)
}

func TestHistoryPersistsAndForgetKeepsIt(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s := New(backend, 0)
	seed(t, s)
	require.NoError(t, s.RecordGrid(ctx, grid))
	assert.Len(t, s.History(), 9)

	require.NoError(t, s.Forget(ctx))
	_, err := backend.Get(ctx, KeyOnline)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	next := New(backend, 0)
	_, err = next.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	assert.Len(t, next.History(), 9)
	assert.True(t, next.History().Banned(conditions.Pair{"water", "psychic"}))
}

func TestHistoryLimit(t *testing.T) {
	s := New(kv.NewMemoryStore(), 4)
	require.NoError(t, s.RecordGrid(context.Background(), grid))
	h := s.History()
	require.Len(t, h, 4)
	assert.Equal(t, conditions.Pair{"grass", "monotype"}, h[3])
}

func TestFailed(t *testing.T) {
	assert.False(t, Snapshot{Tries: 9}.Failed())
	assert.False(t, Snapshot{Tries: 8, Failures: []int{2}}.Failed())
	assert.True(t, Snapshot{Tries: 9, Failures: []int{2}}.Failed())
}
