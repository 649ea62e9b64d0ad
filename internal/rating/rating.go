// Package rating implements the pure Elo-style rating update (C2) and the
// rank-band labelling used by StatsView. The expected-score formula mirrors
// the standard logistic form used across the pack's rating implementations
// (see the Glicko-2 expected-score helper in the poker-bench example this
// repo was not allowed to depend on directly, since that package lives
// outside go.mod's reach); this is the integer-rating, fixed-K variant the
// spec calls for instead of a full Glicko-2 period update.
package rating

import (
	"math"

	"github.com/rpsarena/match-engine/internal/rules"
)

// Scale is the logistic rating scale: a 400-point gap gives the stronger
// player a 10:1 expected-score edge, the conventional Elo constant.
const Scale = 400.0

// Config carries the tunables spec §6 requires to be configurable.
type Config struct {
	K    float64 // K-factor; default 24
	Min  int     // rating floor; default 100
	Seed int     // starting rating for new players; default 1200
}

// DefaultConfig matches the defaults named in spec §6.
func DefaultConfig() Config {
	return Config{K: 24, Min: 100, Seed: 1200}
}

// expectedScore returns player a's expected score against player b, in [0,1].
func expectedScore(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/Scale))
}

// Deltas holds the signed rating change for each player. For decisive
// outcomes Delta1+Delta2 == 0; for draws both are 0 (the spec's "floor
// rating, zero-sum" contract — draws never move rating here, matching the
// fixed-K single-game variant; a period-batched implementation could score
// draws as 0.5 each and produce a non-zero delta, but this spec's bestOf
// games resolve one decisive round at a time, so draws inside a match never
// reach the rating updater in the first place — see Stats Accumulator).
type Deltas struct {
	Delta1 int
	Delta2 int
}

// Update computes the rating deltas for a completed, decisive match between
// player 1 (rating r1) and player 2 (rating r2). outcome must be P1Win or
// P2Win; any other outcome yields zero deltas. The Stats Accumulator never
// passes Draw: round-level draws never change the score, and the one
// match-level draw (a TimedOut match) skips the rating update there.
func Update(cfg Config, r1, r2 int, outcome rules.Outcome) Deltas {
	e1 := expectedScore(r1, r2)
	e2 := 1.0 - e1

	var s1, s2 float64
	switch outcome {
	case rules.P1Win:
		s1, s2 = 1, 0
	case rules.P2Win:
		s1, s2 = 0, 1
	default:
		return Deltas{}
	}

	d1 := int(math.Round(cfg.K * (s1 - e1)))
	d2 := int(math.Round(cfg.K * (s2 - e2)))

	// Zero-sum correction: rounding both deltas independently can drift by
	// one point when the expected scores aren't exact halves. Pull the
	// correction from the winner's side so a floored loser never dips
	// further than the raw computation implied.
	if d1+d2 != 0 {
		if s1 > s2 {
			d1 -= d1 + d2
		} else {
			d2 -= d1 + d2
		}
	}

	return floorDeltas(cfg, r1, r2, Deltas{Delta1: d1, Delta2: d2})
}

func floorDeltas(cfg Config, r1, r2 int, d Deltas) Deltas {
	if r1+d.Delta1 < cfg.Min {
		d.Delta1 = cfg.Min - r1
	}
	if r2+d.Delta2 < cfg.Min {
		d.Delta2 = cfg.Min - r2
	}
	return d
}

// Band is a human-readable rank label over a rating range.
type Band struct {
	Name string
	Min  int
}

// bands partitions the space above the configured floor into five tiers.
// This is a supplemented detail: spec §6 names "rank label (from rating
// bands)" but leaves the bands themselves unspecified.
func bands(cfg Config) []Band {
	base := cfg.Min
	return []Band{
		{Name: "Diamond", Min: base + 800},
		{Name: "Platinum", Min: base + 500},
		{Name: "Gold", Min: base + 250},
		{Name: "Silver", Min: base + 100},
		{Name: "Bronze", Min: base},
	}
}

// RankLabel returns the highest band whose threshold the rating meets.
func RankLabel(cfg Config, r int) string {
	for _, b := range bands(cfg) {
		if r >= b.Min {
			return b.Name
		}
	}
	return "Bronze"
}
