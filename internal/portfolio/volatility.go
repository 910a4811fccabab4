package portfolio

import (
	"fmt"
	"math"
	"sort"

	"helios/internal/domain"
)

// AverageTrueRange computes the mean true range over the last window bars.
// True range of a bar is the largest of high−low, |high−previous close|, and
// |low−previous close|, so window+1 bars are required.
func AverageTrueRange(bars []domain.Bar, window int) (float64, error) {
	if window < 1 {
		return 0, fmt.Errorf("window must be at least 1, got %d", window)
	}
	if len(bars) < window+1 {
		return 0, fmt.Errorf("need %d bars, have %d", window+1, len(bars))
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// True ranges of the last window bars.
	start := len(sorted) - window
	var sum float64
	for i := start; i < len(sorted); i++ {
		prevClose := sorted[i-1].Close
		tr := sorted[i].High - sorted[i].Low
		tr = math.Max(tr, math.Abs(sorted[i].High-prevClose))
		tr = math.Max(tr, math.Abs(sorted[i].Low-prevClose))
		sum += tr
	}
	return sum / float64(window), nil
}
