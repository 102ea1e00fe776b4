// Package events defines the gameplay event envelope carried over the
// message bus and its JSON codec.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Kind identifies a gameplay event.
type Kind string

const (
	KindJoin        Kind = "join"
	KindQuit        Kind = "quit"
	KindMobKilled   Kind = "mob_killed"
	KindItemEaten   Kind = "item_eaten"
	KindBlockBroken Kind = "block_broken"
	KindDeath       Kind = "death"
	KindItemCrafted Kind = "item_crafted"
	KindItemUsed    Kind = "item_used"
	KindChestOpened Kind = "chest_opened"
	KindMessageSent Kind = "message_sent"
	KindMoved       Kind = "moved"
	KindRenamed     Kind = "renamed"
)

var kinds = map[Kind]struct{}{
	KindJoin:        {},
	KindQuit:        {},
	KindMobKilled:   {},
	KindItemEaten:   {},
	KindBlockBroken: {},
	KindDeath:       {},
	KindItemCrafted: {},
	KindItemUsed:    {},
	KindChestOpened: {},
	KindMessageSent: {},
	KindMoved:       {},
	KindRenamed:     {},
}

// Valid reports whether the kind is a known gameplay event.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

var (
	ErrUnknownKind   = errors.New("events: unknown event kind")
	ErrMissingPlayer = errors.New("events: event has no player id")
)

// Event is one gameplay occurrence attributed to a player. Amount carries
// the traveled distance for moved events and is ignored elsewhere; join and
// renamed events carry the player's display name.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	PlayerID   uuid.UUID `json:"player_id"`
	PlayerName string    `json:"player_name,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Marshal serializes the event for publishing.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Parse decodes and validates an event payload. Any event that fails to
// parse is unrecoverable by the consumer and should be skipped.
func Parse(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if e.PlayerID == uuid.Nil {
		return Event{}, ErrMissingPlayer
	}
	return e, nil
}
