package bundle

import (
	"context"
	"math"
	"time"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// RangeInBundle reports whether reader already holds close prices for asset
// at both start and end. A nil reader, a read error or a NaN value all count
// as missing data.
func RangeInBundle(ctx context.Context, asset domain.TradingPair, start, end time.Time, reader domain.BundleReader) bool {
	if reader == nil {
		return false
	}
	for _, ts := range []time.Time{start, end} {
		v, err := reader.GetValue(ctx, asset.SID, ts, "close")
		if err != nil || math.IsNaN(v) {
			return false
		}
	}
	return true
}
