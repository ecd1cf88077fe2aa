// internal/game/game.go
//
// Game facade for a single player session.
// Responsibilities:
//   - Startup: resume the saved snapshot, or build a fresh one (ceiling from the
//     link fragment or server metadata, generated grid, wager).
//   - Reset: a new grid, optionally under a new ceiling with the wager rescaled.
//   - Guesses: attempt counting, failure history, placement with a delta for
//     the peer.
//   - Wager offers, which are locked once a contest is in progress.
//
// All mutations go through the session store, which persists them and forwards
// them to the online state machine.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tickantoe/internal/badges"
	"github.com/robalobadob/tickantoe/internal/conditions"
	"github.com/robalobadob/tickantoe/internal/dex"
	"github.com/robalobadob/tickantoe/internal/phase"
	"github.com/robalobadob/tickantoe/internal/session"
)

// Options wires a Game.
type Options struct {
	Store    *session.Store
	API      API
	Link     session.Link
	Presence Presence   // nil when playing offline only
	Rand     *rand.Rand // nil seeds a fresh PCG
}

// Game serializes player actions over one session store.
type Game struct {
	mu       sync.Mutex
	store    *session.Store
	api      API
	link     session.Link
	presence Presence
	rng      *rand.Rand
	gen      *conditions.Generator
	genYears []dex.GenYear
	loaded   bool // identity and history have been read from the store
}

// New constructs a Game. It keeps the link fragment in step with the ceiling,
// including ceilings adopted from a matched host.
func New(opts Options) *Game {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	link := opts.Link
	if link == nil {
		link = &session.MemoryLink{}
	}
	g := &Game{
		store:    opts.Store,
		api:      opts.API,
		link:     link,
		presence: opts.Presence,
		rng:      rng,
		gen:      conditions.NewGenerator(opts.API, rng),
	}
	opts.Store.OnCeiling(g.writeFragment)
	return g
}

// Initialize loads the saved session, or starts a fresh one when there is none
// or when details asks for specific values.
func (g *Game) Initialize(ctx context.Context, details Details) (session.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialize(ctx, details)
}

func (g *Game) initialize(ctx context.Context, details Details) (session.Snapshot, error) {
	meta, err := g.api.FetchGenerationMetadata(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("fetch generation metadata")
	}
	g.genYears = meta.GenYears

	if !g.loaded || details.empty() {
		_, err := g.store.Load(ctx)
		if err != nil && !errors.Is(err, session.ErrNoSnapshot) {
			return session.Snapshot{}, err
		}
		g.loaded = true
		if err == nil && details.empty() {
			return g.resume(ctx)
		}
	}

	maxGen := details.MaxGen
	if maxGen <= 0 {
		maxGen = g.fragmentMaxGen()
	}
	if maxGen <= 0 {
		maxGen = meta.Defaults.MaxGen
	}

	// A failed relation fetch still yields a placeholder grid.
	grid, _ := g.gen.Generate(ctx, maxGen, g.store.History())
	if err := g.store.RecordGrid(ctx, grid); err != nil {
		return session.Snapshot{}, err
	}

	offer := details.BadgeOffer
	if offer <= 0 {
		offer = g.store.Snapshot().Online.BadgeOffer
	}
	if offer <= 0 {
		offer = badges.Random(g.rng, maxGen)
	}
	offer = badges.Rescale(offer, maxGen)

	if err := g.store.Forget(ctx); err != nil {
		return session.Snapshot{}, err
	}
	snap, err := g.store.Update(ctx, nil, func(s *session.Snapshot) {
		s.Online.MaxGen = maxGen
		s.Online.BadgeOffer = offer
		s.Grid = grid
		s.Contents = [session.Size]*session.Entity{}
		s.Tries = 0
		s.Failures = []int{}
	})
	g.writeFragment(maxGen)
	log.Info().
		Int("maxGen", maxGen).
		Int("badge", offer).
		Strs("rows", grid.Rows[:]).
		Strs("cols", grid.Cols[:]).
		Msg("new grid")
	return snap, err
}

// resume re-verifies the saved wager against its ceiling.
func (g *Game) resume(ctx context.Context) (session.Snapshot, error) {
	snap, err := g.store.Update(ctx, nil, func(s *session.Snapshot) {
		s.Online.BadgeOffer = badges.Rescale(s.Online.BadgeOffer, s.Online.MaxGen)
	})
	g.writeFragment(snap.Online.MaxGen)
	log.Info().Int("maxGen", snap.Online.MaxGen).Int("tries", snap.Tries).Msg("resumed session")
	return snap, err
}

// Reset starts a fresh grid. maxGen > 0 also moves the session to that
// ceiling, rescaling the current wager into it.
func (g *Game) Reset(ctx context.Context, maxGen int) (session.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.store.Snapshot()
	if maxGen <= 0 {
		maxGen = cur.Online.MaxGen
	}
	if maxGen <= 0 {
		maxGen = g.fragmentMaxGen()
	}
	if maxGen <= 0 {
		maxGen = 1
	}
	return g.initialize(ctx, Details{MaxGen: maxGen, BadgeOffer: cur.Online.BadgeOffer})
}

// TestGuess checks entity against the conditions at position. A failed check
// (including an unreachable API) is recorded against the current try.
func (g *Game) TestGuess(ctx context.Context, position int, entity session.Entity) (bool, error) {
	if position < 0 || position >= session.Size {
		return false, ErrBadPosition
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	snap, err := g.store.Update(ctx, nil, func(s *session.Snapshot) {
		if s.Tries < session.MaxTries {
			s.Tries++
		}
	})
	if err != nil {
		return false, err
	}

	row, col := position/3, position%3
	conds := [2]string{snap.Grid.Rows[row], snap.Grid.Cols[col]}
	passed, err := g.api.ValidateGuess(ctx, entity.ID, conds)
	if err != nil {
		log.Warn().Err(err).Int("id", entity.ID).Msg("validate guess")
		passed = false
	}

	if !passed {
		_, err := g.store.Update(ctx, nil, func(s *session.Snapshot) {
			s.Failures = append(s.Failures, s.Tries)
		})
		return false, err
	}
	placed := entity
	_, err = g.store.Update(ctx, &session.Action{Content: entity, Position: position}, func(s *session.Snapshot) {
		s.Contents[position] = &placed
	})
	return true, err
}

// OfferNewBadge moves the wager by diff within the current ceiling. While
// seeking the session first steps back to available.
func (g *Game) OfferNewBadge(ctx context.Context, diff int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.store.Snapshot().Phase == phase.Seeking && g.presence != nil {
		if err := g.presence.Cancel(ctx); err != nil {
			return 0, fmt.Errorf("cancel seek: %w", err)
		}
	}
	snap, err := g.store.UpdateIf(ctx, nil, func(s *session.Snapshot) error {
		if s.Phase == phase.Matched || s.Phase == phase.Departing {
			return ErrWagerLocked
		}
		s.Online.BadgeOffer = badges.Rescale(s.Online.BadgeOffer+diff, s.Online.MaxGen)
		return nil
	})
	if errors.Is(err, ErrWagerLocked) {
		return 0, err
	}
	g.writeFragment(snap.Online.MaxGen)
	return snap.Online.BadgeOffer, err
}

// Failed reports whether the attempt budget is spent with at least one miss.
func (g *Game) Failed() bool { return g.store.Snapshot().Failed() }

// GenYears returns the generation years from the last metadata fetch.
func (g *Game) GenYears() []dex.GenYear {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]dex.GenYear(nil), g.genYears...)
}

func (g *Game) fragmentMaxGen() int {
	frag, err := g.link.ReadFragment()
	if err != nil {
		log.Warn().Err(err).Msg("read link fragment")
		return 0
	}
	return session.ParseFragment(frag)
}

func (g *Game) writeFragment(maxGen int) {
	if maxGen <= 0 {
		return
	}
	if err := g.link.WriteFragment(session.FormatFragment(maxGen)); err != nil {
		log.Warn().Err(err).Msg("write link fragment")
	}
}
