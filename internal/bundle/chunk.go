package bundle

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// Chunk is one downloadable slice of history: a month of minute bars or a
// year of daily bars for a single symbol.
type Chunk struct {
	Exchange  string
	Frequency domain.DataFrequency
	Symbol    string
	Period    string // "2006-01" for minute chunks, "2006" for daily ones
	Start     time.Time
	End       time.Time
}

// Name returns the chunk's directory name,
// e.g. "bittrex-daily-neo_btc-2017".
func (c Chunk) Name() string {
	return fmt.Sprintf("%s-%s-%s-%s", c.Exchange, c.Frequency, c.Symbol, c.Period)
}

// ArchiveName returns the file name the distribution service serves.
func (c Chunk) ArchiveName() string {
	return c.Name() + ".tar.gz"
}

// Chunks splits the half-open window [start, end) into the chunks covering
// it.
func Chunks(exchange, symbol string, f domain.DataFrequency, start, end time.Time) []Chunk {
	var out []Chunk
	for cursor := start; cursor.Before(end); {
		var c Chunk
		if f == domain.FrequencyMinute {
			c.Start, c.End = MonthBounds(cursor)
			c.Period = c.Start.Format("2006-01")
		} else {
			c.Start, c.End = YearBounds(cursor)
			c.Period = c.Start.Format("2006")
		}
		c.Exchange, c.Frequency, c.Symbol = exchange, f, symbol
		out = append(out, c)

		if f == domain.FrequencyMinute {
			cursor = c.Start.AddDate(0, 1, 0)
		} else {
			cursor = c.Start.AddDate(1, 0, 0)
		}
	}
	return out
}
