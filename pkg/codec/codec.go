// Package codec serializes player stats to and from their JSON form. It is
// pure encoding: all I/O belongs to the storage backends.
package codec

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/annel0/StatsPlugin/pkg/stats"
)

// ErrMalformedRecord marks a structurally invalid persisted record.
var ErrMalformedRecord = errors.New("malformed stats record")

// record mirrors the historical on-disk field names, so files written by
// earlier releases decode without translation.
type record struct {
	UUID             string  `json:"uuid"`
	PlayerName       string  `json:"player_name"`
	PlayTime         int     `json:"playTime"`
	MobsKilled       int     `json:"mobsKilled"`
	ItemsEaten       int     `json:"itemsEaten"`
	DistanceTraveled float64 `json:"distanceTraveled"`
	BlocksBroken     int     `json:"blocksBroken"`
	Deaths           int     `json:"deaths"`
	ItemsCrafted     int     `json:"itemsCrafted"`
	ItemsUsed        int     `json:"itemsUsed"`
	ChestsOpened     int     `json:"chestsOpened"`
	MessagesSent     int     `json:"messagesSent"`
}

// Encode renders the stats as indented JSON. Every field is always present,
// including the uuid in string form.
func Encode(s stats.PlayerStats) ([]byte, error) {
	rec := record{
		UUID:             s.ID.String(),
		PlayerName:       s.Name,
		PlayTime:         s.PlayTime,
		MobsKilled:       s.MobsKilled,
		ItemsEaten:       s.ItemsEaten,
		DistanceTraveled: s.DistanceTraveled,
		BlocksBroken:     s.BlocksBroken,
		Deaths:           s.Deaths,
		ItemsCrafted:     s.ItemsCrafted,
		ItemsUsed:        s.ItemsUsed,
		ChestsOpened:     s.ChestsOpened,
		MessagesSent:     s.MessagesSent,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode stats for %s: %w", s.ID, err)
	}
	return data, nil
}

// Decode parses a persisted record. Every field is optional: missing numeric
// fields resolve to zero and a missing uuid resolves to fallbackID. A record
// that is not valid JSON, or carries an unparseable uuid, fails with
// ErrMalformedRecord.
func Decode(data []byte, fallbackID uuid.UUID) (stats.PlayerStats, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return stats.PlayerStats{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	id := fallbackID
	if rec.UUID != "" {
		parsed, err := uuid.Parse(rec.UUID)
		if err != nil {
			return stats.PlayerStats{}, fmt.Errorf("%w: invalid uuid %q", ErrMalformedRecord, rec.UUID)
		}
		id = parsed
	}

	return stats.PlayerStats{
		ID:               id,
		Name:             rec.PlayerName,
		PlayTime:         rec.PlayTime,
		MobsKilled:       rec.MobsKilled,
		ItemsEaten:       rec.ItemsEaten,
		DistanceTraveled: rec.DistanceTraveled,
		BlocksBroken:     rec.BlocksBroken,
		Deaths:           rec.Deaths,
		ItemsCrafted:     rec.ItemsCrafted,
		ItemsUsed:        rec.ItemsUsed,
		ChestsOpened:     rec.ChestsOpened,
		MessagesSent:     rec.MessagesSent,
	}, nil
}
