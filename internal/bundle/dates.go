package bundle

import (
	"time"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// Delta returns the duration of periods bars at frequency f.
func Delta(periods int, f domain.DataFrequency) time.Duration {
	if f == domain.FrequencyMinute {
		return time.Duration(periods) * time.Minute
	}
	return time.Duration(periods) * 24 * time.Hour
}

// PeriodsBetween returns the number of whole minutes or days between start
// and end. Partial periods are truncated toward zero.
func PeriodsBetween(start, end time.Time, f domain.DataFrequency) int {
	return int(end.Sub(start) / Delta(1, f))
}

// StartFromBarCount returns the instant barCount periods before end. A
// barCount of one or less yields end itself.
func StartFromBarCount(end time.Time, barCount int, f domain.DataFrequency) time.Time {
	if barCount <= 1 {
		return end
	}
	return end.Add(-Delta(barCount, f))
}

// PeriodsRange lists every period boundary from start to end inclusive.
func PeriodsRange(start, end time.Time, f domain.DataFrequency) []time.Time {
	if end.Before(start) {
		return nil
	}
	step := Delta(1, f)
	out := make([]time.Time, 0, PeriodsBetween(start, end, f)+1)
	for t := start; !t.After(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}

// MonthBounds returns the first instant of t's month and 23:59:00 on its last
// day, both in UTC. The end stops at 23:59:00 on purpose: monthly bundle
// boundaries have always been cut there.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastDay := start.AddDate(0, 1, -1).Day()
	end := time.Date(t.Year(), t.Month(), lastDay, 23, 59, 0, 0, time.UTC)
	return start, end
}

// YearBounds returns midnight UTC on January 1st and December 31st of t's
// year.
func YearBounds(t time.Time) (time.Time, time.Time) {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(t.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
}

// ResolveWindow clamps the requested [start, end) window to the trading
// availability of assets at frequency f. A nil start or end means "as far as
// the data goes". Starts before the earliest first trade are moved forward
// rather than rejected.
//
// It returns *domain.NoDataAvailableError when no asset has data at f or
// when the clamped window is empty.
func ResolveWindow(start, end *time.Time, assets []domain.TradingPair, f domain.DataFrequency) (time.Time, time.Time, error) {
	var (
		earliestTrade time.Time
		lastEntry     *time.Time
	)
	for i, asset := range assets {
		if i == 0 || asset.StartDate.Before(earliestTrade) {
			earliestTrade = asset.StartDate
		}
		if e := asset.LastEntry(f); e != nil && (lastEntry == nil || e.After(*lastEntry)) {
			lastEntry = e
		}
	}

	if lastEntry == nil {
		return time.Time{}, time.Time{}, noData(assets, f)
	}

	resolvedStart := earliestTrade
	if start != nil && !start.Before(earliestTrade) {
		resolvedStart = *start
	}

	resolvedEnd := *lastEntry
	if end != nil && !end.After(*lastEntry) {
		resolvedEnd = *end
	}

	if !resolvedStart.Before(resolvedEnd) {
		return time.Time{}, time.Time{}, noData(assets, f)
	}
	return resolvedStart, resolvedEnd, nil
}

func noData(assets []domain.TradingPair, f domain.DataFrequency) error {
	err := &domain.NoDataAvailableError{Frequency: f}
	for _, a := range assets {
		if err.Exchange == "" {
			err.Exchange = a.Exchange
		}
		err.Symbols = append(err.Symbols, a.Symbol)
	}
	return err
}
