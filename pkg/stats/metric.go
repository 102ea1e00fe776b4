package stats

import "fmt"

// Metric identifies a single rankable counter. Each metric maps to exactly
// one column/field; a top-N query filters and sorts by that one metric only.
type Metric string

const (
	MetricPlayTime         Metric = "play_time"
	MetricMobsKilled       Metric = "mobs_killed"
	MetricItemsEaten       Metric = "items_eaten"
	MetricDistanceTraveled Metric = "distance_traveled"
	MetricBlocksBroken     Metric = "blocks_broken"
	MetricDeaths           Metric = "deaths"
	MetricItemsCrafted     Metric = "items_crafted"
	MetricItemsUsed        Metric = "items_used"
	MetricChestsOpened     Metric = "chests_opened"
	MetricMessagesSent     Metric = "messages_sent"
)

var metricColumns = map[Metric]string{
	MetricPlayTime:         "play_time",
	MetricMobsKilled:       "mobs_killed",
	MetricItemsEaten:       "items_eaten",
	MetricDistanceTraveled: "distance_traveled",
	MetricBlocksBroken:     "blocks_broken",
	MetricDeaths:           "deaths",
	MetricItemsCrafted:     "items_crafted",
	MetricItemsUsed:        "items_used",
	MetricChestsOpened:     "chests_opened",
	MetricMessagesSent:     "messages_sent",
}

// ParseMetric converts a metric name into a Metric, rejecting unknown names
// before any storage query runs.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	_, ok := metricColumns[m]
	return ok
}

// Column returns the database column backing the metric. The returned name
// comes from a fixed table, so it is safe to interpolate into SQL.
func (m Metric) Column() string {
	return metricColumns[m]
}

func (m Metric) String() string {
	return string(m)
}
