// internal/game/types.go
//
// Type definitions for the game facade.
// Defines:
//   - API: the condition API calls the facade depends on.
//   - Presence: the online state machine hook used when the wager changes.
//   - Details: overrides for a fresh initialization.

package game

import (
	"context"
	"errors"

	"github.com/robalobadob/tickantoe/internal/conditions"
	"github.com/robalobadob/tickantoe/internal/dex"
)

var (
	// ErrWagerLocked is returned when the wager changes during a contest.
	ErrWagerLocked = errors.New("game: wager is locked while matched")

	// ErrBadPosition is returned for a grid position outside 0..8.
	ErrBadPosition = errors.New("game: position out of range")
)

// API is the subset of the condition API the game needs.
type API interface {
	conditions.Source
	FetchGenerationMetadata(ctx context.Context) (dex.Metadata, error)
	ValidateGuess(ctx context.Context, id int, conds [2]string) (bool, error)
}

// Presence lets the game step back from seeking before changing the wager.
type Presence interface {
	Cancel(ctx context.Context) error
}

// Details overrides values for a fresh initialization. The zero value means
// "resume the saved session if there is one".
type Details struct {
	MaxGen     int // generation ceiling (0 = link fragment, then server default)
	BadgeOffer int // wager to carry into the new ceiling (0 = keep or draw)
}

func (d Details) empty() bool { return d.MaxGen == 0 && d.BadgeOffer == 0 }
