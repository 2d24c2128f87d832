/**
 * @description
 * Generic time-series resolution helpers shared by every quote domain.
 * One implementation of daily resampling, latest-per-group snapshot resolution and
 * period-over-period delta math, parameterized over key/timestamp extractors instead
 * of per-domain copies.
 *
 * Tie-break rule: when two observations share a calendar date (resampling) or a group
 * key (snapshots), the greater timestamp wins; identical timestamps fall back to the
 * greater storage id, so results are deterministic for a fixed dataset.
 */

package timeseries

import (
	"math"
	"sort"
	"time"
)

// Round5 rounds v to 5 decimal places. All delta/percent outputs use this precision.
func Round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

// Delta computes absolute and percentage change of current against baseline.
// A nil baseline yields (nil, nil): "no prior observation" is not a zero change.
// A zero baseline still yields an absolute delta but no percentage (division guard).
func Delta(current float64, baseline *float64) (delta *float64, deltaPercent *float64) {
	if baseline == nil {
		return nil, nil
	}
	d := Round5(current - *baseline)
	delta = &d
	if *baseline == 0 {
		return delta, nil
	}
	p := Round5((current - *baseline) / *baseline * 100)
	deltaPercent = &p
	return delta, deltaPercent
}

// DateOf truncates a timestamp to its calendar date (local representation, midnight).
func DateOf(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}

// ChartWindow returns the [from, to) range covering the last `days` calendar days
// including today. The upper bound is tomorrow's midnight so observations made later
// today are never truncated away.
func ChartWindow(today time.Time, days int) (from, to time.Time) {
	d := DateOf(today)
	return d.AddDate(0, 0, -(days - 1)), d.AddDate(0, 0, 1)
}

func wins[T any](candidate, incumbent T, ts func(T) time.Time, id func(T) uint64) bool {
	ct, it := ts(candidate), ts(incumbent)
	if ct.After(it) {
		return true
	}
	if ct.Equal(it) {
		return id(candidate) > id(incumbent)
	}
	return false
}

// ResampleDaily reduces an observation stream to one element per calendar date,
// keeping the latest observation of each date. Output is sorted ascending by date.
func ResampleDaily[T any](obs []T, ts func(T) time.Time, id func(T) uint64) []T {
	daily := make(map[time.Time]T, len(obs))
	for _, o := range obs {
		day := DateOf(ts(o))
		cur, ok := daily[day]
		if !ok || wins(o, cur, ts, id) {
			daily[day] = o
		}
	}

	days := make([]time.Time, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]T, 0, len(days))
	for _, day := range days {
		out = append(out, daily[day])
	}
	return out
}

// LatestPerGroup picks, for each group key, the latest observation in obs.
// Used for the per-day snapshot tables where the grouping key varies by domain.
func LatestPerGroup[T any, K comparable](obs []T, key func(T) K, ts func(T) time.Time, id func(T) uint64) map[K]T {
	latest := make(map[K]T, len(obs))
	for _, o := range obs {
		k := key(o)
		cur, ok := latest[k]
		if !ok || wins(o, cur, ts, id) {
			latest[k] = o
		}
	}
	return latest
}
