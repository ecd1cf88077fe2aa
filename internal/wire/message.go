// internal/wire/message.go
//
// Relay message format shared by the client state machine and the relay.
// A message carries the sender's whole state; clients filter by group_ids.
//
//	{
//	  "is_on": true, "max_gen": 2, "user_id": "…", "badge_offer": 12,
//	  "group_ids": ["…", "…"],
//	  "grid_state": {"contents": [null, …], "cols": […], "rows": […]},
//	  "grid_action": {"content": {…}, "position": 4},
//	  "ws_state": "found"
//	}
package wire

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
)

// Relay phase names.
const (
	Found   = "found"
	Hosting = "hosting"
	Finding = "finding"
	Leaving = "leaving"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// Content is a placed entity as sent on the wire.
type Content struct {
	Generation int    `json:"generation"`
	Name       string `json:"name"`
	Key        int    `json:"key"`
	ID         int    `json:"id"`
}

// Action is the advisory single-slot delta.
type Action struct {
	Content  Content `json:"content"`
	Position int     `json:"position" validate:"gte=0,lte=8"`
}

// GridState is the authoritative grid.
type GridState struct {
	Contents []*Content `json:"contents" validate:"len=9"`
	Cols     []string   `json:"cols" validate:"len=3,dive,required"`
	Rows     []string   `json:"rows" validate:"len=3,dive,required"`
}

// Message is one relay frame.
type Message struct {
	IsOn       bool      `json:"is_on"`
	MaxGen     int       `json:"max_gen" validate:"gte=1"`
	UserID     string    `json:"user_id" validate:"required"`
	BadgeOffer int       `json:"badge_offer" validate:"gte=1"`
	GroupIDs   []string  `json:"group_ids" validate:"min=1,dive,required"`
	GridState  GridState `json:"grid_state"`
	GridAction *Action   `json:"grid_action"`
	WSState    string    `json:"ws_state" validate:"oneof=found hosting finding leaving"`
}

// Decode parses and validates a frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}
	return m, nil
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := m
	out.GroupIDs = slices.Clone(m.GroupIDs)
	out.GridState.Cols = slices.Clone(m.GridState.Cols)
	out.GridState.Rows = slices.Clone(m.GridState.Rows)
	out.GridState.Contents = make([]*Content, len(m.GridState.Contents))
	for i, c := range m.GridState.Contents {
		if c != nil {
			cc := *c
			out.GridState.Contents[i] = &cc
		}
	}
	if m.GridAction != nil {
		a := *m.GridAction
		out.GridAction = &a
	}
	return out
}
