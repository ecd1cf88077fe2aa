// internal/session/store.go
//
// Session store: the single owner of a session's snapshot.
// Responsibilities:
//   - Loading a persisted snapshot (absent or incompatible data means "start fresh").
//   - Funnelling every mutation through Update (local actions) or Reconcile
//     (inbound messages), persisting the result and forwarding it to the Publisher.
//   - Maintaining the exclusion history of condition pairs.
//
// Every field lives under its own key so a partial write never corrupts the others.
// The phase is not persisted: a loaded session always starts disconnected.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tickantoe/internal/conditions"
	"github.com/robalobadob/tickantoe/internal/kv"
	"github.com/robalobadob/tickantoe/internal/phase"
)

// ErrNoSnapshot is returned by Load when nothing usable was persisted.
var ErrNoSnapshot = errors.New("session: no saved snapshot")

const prefix = "tkt-saved-"

// Stable storage keys.
const (
	KeyOnline     = prefix + "online"
	KeyFailures   = prefix + "failures"
	KeyTries      = prefix + "tries"
	KeyContents   = prefix + "pokemon"
	KeyRows       = prefix + "rows"
	KeyCols       = prefix + "cols"
	KeyConditions = prefix + "conditions"
	KeyIdentity   = prefix + "identity"
)

// memoryKeys are the snapshot fields; identity and history outlive a reset.
var memoryKeys = []string{KeyOnline, KeyFailures, KeyTries, KeyContents, KeyRows, KeyCols}

// Store owns the snapshot and the exclusion history.
type Store struct {
	mu      sync.Mutex
	kv      kv.Store
	pub     Publisher
	limit   int
	snap    Snapshot
	history conditions.History
	ceiling func(maxGen int)
}

// New wires a store to its backend. historyLimit bounds the exclusion history
// (0 means unbounded).
func New(backend kv.Store, historyLimit int) *Store {
	return &Store{kv: backend, limit: historyLimit}
}

// SetPublisher installs the transmission hook. Nil disables forwarding.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pub = p
}

// OnCeiling installs a hook called, under the store lock, whenever a stored
// mutation changes Online.MaxGen. It must not call back into the store.
func (s *Store) OnCeiling(fn func(maxGen int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ceiling = fn
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Identity loads the persisted user id, creating one on first use.
func (s *Store) Identity(ctx context.Context) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity(ctx)
}

func (s *Store) identity(ctx context.Context) (Identity, error) {
	if s.snap.Identity.UserID != "" {
		return s.snap.Identity, nil
	}
	id, err := s.kv.Get(ctx, KeyIdentity)
	if errors.Is(err, kv.ErrNotFound) {
		id = uuid.NewString()
		if err := s.kv.Set(ctx, KeyIdentity, id); err != nil {
			return Identity{}, fmt.Errorf("save identity: %w", err)
		}
	} else if err != nil {
		return Identity{}, fmt.Errorf("load identity: %w", err)
	}
	s.snap.Identity = Identity{UserID: id}.Solo()
	return s.snap.Identity, nil
}

// Load restores the persisted snapshot and history. The identity is always
// established, even when ErrNoSnapshot is returned.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.identity(ctx); err != nil {
		return Snapshot{}, err
	}
	if err := s.loadHistory(ctx); err != nil {
		return Snapshot{}, err
	}

	raw := make(map[string]string, len(memoryKeys))
	for _, k := range memoryKeys {
		v, err := s.kv.Get(ctx, k)
		if errors.Is(err, kv.ErrNotFound) {
			return Snapshot{}, ErrNoSnapshot
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("load %s: %w", k, err)
		}
		raw[k] = v
	}

	next := Snapshot{Identity: s.snap.Identity.Solo(), Phase: phase.Disconnected}
	if err := decode(raw, &next); err != nil {
		log.Info().Err(err).Msg("discarding incompatible snapshot")
		return Snapshot{}, ErrNoSnapshot
	}
	next.Online.IsOn = false
	s.snap = next
	return s.snap.Clone(), nil
}

func decode(raw map[string]string, snap *Snapshot) error {
	if err := json.Unmarshal([]byte(raw[KeyOnline]), &snap.Online); err != nil {
		return fmt.Errorf("online: %w", err)
	}
	if err := json.Unmarshal([]byte(raw[KeyFailures]), &snap.Failures); err != nil {
		return fmt.Errorf("failures: %w", err)
	}
	tries, err := strconv.Atoi(raw[KeyTries])
	if err != nil || tries < 0 || tries > MaxTries {
		return fmt.Errorf("tries: bad value %q", raw[KeyTries])
	}
	snap.Tries = tries

	var contents []*Entity
	if err := json.Unmarshal([]byte(raw[KeyContents]), &contents); err != nil {
		return fmt.Errorf("contents: %w", err)
	}
	if len(contents) != Size {
		return fmt.Errorf("contents: %d slots", len(contents))
	}
	copy(snap.Contents[:], contents)

	var rows, cols []string
	if err := json.Unmarshal([]byte(raw[KeyRows]), &rows); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	if err := json.Unmarshal([]byte(raw[KeyCols]), &cols); err != nil {
		return fmt.Errorf("cols: %w", err)
	}
	if len(rows) != 3 || len(cols) != 3 {
		return fmt.Errorf("grid: %d rows, %d cols", len(rows), len(cols))
	}
	for i := 0; i < 3; i++ {
		if rows[i] == "" || cols[i] == "" {
			return errors.New("grid: empty condition")
		}
		snap.Grid.Rows[i], snap.Grid.Cols[i] = rows[i], cols[i]
	}
	if snap.Failures == nil {
		snap.Failures = []int{}
	}
	return nil
}

// Update applies a local action: fn mutates a copy of the snapshot, the result
// is persisted and then forwarded with the optional delta.
func (s *Store) Update(ctx context.Context, action *Action, fn func(*Snapshot)) (Snapshot, error) {
	return s.UpdateIf(ctx, action, func(next *Snapshot) error {
		fn(next)
		return nil
	})
}

// UpdateIf is Update with a guard: when fn returns an error nothing is stored,
// persisted or forwarded, and the error is returned with the unchanged
// snapshot. Checks made inside fn see the same state the mutation applies to.
func (s *Store) UpdateIf(ctx context.Context, action *Action, fn func(*Snapshot) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Clone()
	if err := fn(&next); err != nil {
		return s.snap.Clone(), err
	}
	s.commit(next)
	err := s.persist(ctx)
	s.publish(action)
	return s.snap.Clone(), err
}

// Reconcile applies an inbound message. fn returns the reconciled snapshot and
// whether the message was accepted. The snapshot is persisted and forwarded only
// when it actually changed, so echoed relay traffic settles instead of looping.
func (s *Store) Reconcile(ctx context.Context, fn func(Snapshot) (Snapshot, bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := fn(s.snap.Clone())
	if !ok {
		return false, nil
	}
	if reflect.DeepEqual(next, s.snap) {
		return true, nil
	}
	s.commit(next)
	err := s.persist(ctx)
	s.publish(nil)
	return true, err
}

func (s *Store) commit(next Snapshot) {
	prev := s.snap.Online.MaxGen
	s.snap = next
	if s.ceiling != nil && next.Online.MaxGen != prev && next.Online.MaxGen > 0 {
		s.ceiling(next.Online.MaxGen)
	}
}

func (s *Store) publish(action *Action) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(s.snap.Clone(), action)
}

func (s *Store) persist(ctx context.Context) error {
	online, err := json.Marshal(s.snap.Online)
	if err != nil {
		return err
	}
	failures := s.snap.Failures
	if failures == nil {
		failures = []int{}
	}
	fail, err := json.Marshal(failures)
	if err != nil {
		return err
	}
	contents, err := json.Marshal(s.snap.Contents)
	if err != nil {
		return err
	}
	rows, err := json.Marshal(s.snap.Grid.Rows)
	if err != nil {
		return err
	}
	cols, err := json.Marshal(s.snap.Grid.Cols)
	if err != nil {
		return err
	}

	values := map[string]string{
		KeyOnline:   string(online),
		KeyFailures: string(fail),
		KeyTries:    strconv.Itoa(s.snap.Tries),
		KeyContents: string(contents),
		KeyRows:     string(rows),
		KeyCols:     string(cols),
	}
	for _, k := range memoryKeys {
		if err := s.kv.Set(ctx, k, values[k]); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("persist snapshot")
			return fmt.Errorf("persist %s: %w", k, err)
		}
	}
	return nil
}

// Forget removes the persisted snapshot fields. Identity and history survive.
func (s *Store) Forget(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range memoryKeys {
		if err := s.kv.Remove(ctx, k); err != nil {
			return fmt.Errorf("forget %s: %w", k, err)
		}
	}
	return nil
}

// History returns a copy of the exclusion history.
func (s *Store) History() conditions.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(conditions.History(nil), s.history...)
}

// RecordGrid adds the 9 pairs of g to the exclusion history and persists it.
func (s *Store) RecordGrid(ctx context.Context, g conditions.Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = s.history.With(g, s.limit)
	b, err := json.Marshal(s.history)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyConditions, string(b)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (s *Store) loadHistory(ctx context.Context) error {
	v, err := s.kv.Get(ctx, KeyConditions)
	if errors.Is(err, kv.ErrNotFound) {
		s.history = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	var h conditions.History
	if err := json.Unmarshal([]byte(v), &h); err != nil {
		log.Info().Err(err).Msg("discarding unreadable condition history")
		s.history = nil
		return nil
	}
	s.history = h
	return nil
}
