package stats

import (
	"github.com/google/uuid"
)

// PlayerStats holds the accumulated counters for one player.
// PlayTime is stored in whole minutes. DistanceTraveled is in blocks.
type PlayerStats struct {
	ID               uuid.UUID
	Name             string
	PlayTime         int
	MobsKilled       int
	ItemsEaten       int
	DistanceTraveled float64
	BlocksBroken     int
	Deaths           int
	ItemsCrafted     int
	ItemsUsed        int
	ChestsOpened     int
	MessagesSent     int
}

// New returns an empty record for the given player.
func New(id uuid.UUID, name string) PlayerStats {
	return PlayerStats{ID: id, Name: name}
}

// Merge adds every counter of other into s. The merge is commutative and
// associative per counter; ID and Name are never touched, so mutations racing
// an asynchronous load resolve to the sum of both sides.
func (s *PlayerStats) Merge(other PlayerStats) {
	s.PlayTime += other.PlayTime
	s.MobsKilled += other.MobsKilled
	s.ItemsEaten += other.ItemsEaten
	s.DistanceTraveled += other.DistanceTraveled
	s.BlocksBroken += other.BlocksBroken
	s.Deaths += other.Deaths
	s.ItemsCrafted += other.ItemsCrafted
	s.ItemsUsed += other.ItemsUsed
	s.ChestsOpened += other.ChestsOpened
	s.MessagesSent += other.MessagesSent
}

// Value returns the player's value for the given metric as a float64 so
// integer counters and the distance accumulator sort through one code path.
func (s PlayerStats) Value(m Metric) float64 {
	switch m {
	case MetricPlayTime:
		return float64(s.PlayTime)
	case MetricMobsKilled:
		return float64(s.MobsKilled)
	case MetricItemsEaten:
		return float64(s.ItemsEaten)
	case MetricDistanceTraveled:
		return s.DistanceTraveled
	case MetricBlocksBroken:
		return float64(s.BlocksBroken)
	case MetricDeaths:
		return float64(s.Deaths)
	case MetricItemsCrafted:
		return float64(s.ItemsCrafted)
	case MetricItemsUsed:
		return float64(s.ItemsUsed)
	case MetricChestsOpened:
		return float64(s.ChestsOpened)
	case MetricMessagesSent:
		return float64(s.MessagesSent)
	}
	return 0
}
