package fingerprint

import (
	"fmt"

	"github.com/himanishpuri/soundmark/pkg/models"
)

// DefaultFanOut is how many following peaks each anchor is paired with.
const DefaultFanOut = 15

// Generate pairs every peak with up to fanOut peaks that follow it in the
// sequence and emits one fingerprint per pair. The returned times hold the
// anchor column of each fingerprint, index-aligned with the fingerprints.
//
// For P peaks and fan-out F the output length is sum over i of min(F, P-1-i).
// Deltas are non-negative because peaks are column-major ordered.
func Generate(peaks Peaks, fanOut int) ([]models.Fingerprint, []int, error) {
	if fanOut <= 0 {
		return nil, nil, fmt.Errorf("%w: fan-out must be positive, got %d", models.ErrInvalidInput, fanOut)
	}

	n := peaks.Len()
	if n < 2 {
		return []models.Fingerprint{}, []int{}, nil
	}

	total := PairCount(n, fanOut)
	prints := make([]models.Fingerprint, 0, total)
	times := make([]int, 0, total)

	for i := 0; i < n; i++ {
		anchor := peaks.list[i]
		last := i + fanOut
		if last > n-1 {
			last = n - 1
		}
		for j := i + 1; j <= last; j++ {
			partner := peaks.list[j]
			prints = append(prints, models.Fingerprint{
				AnchorFreq:  anchor.Freq,
				PartnerFreq: partner.Freq,
				Delta:       partner.Time - anchor.Time,
			})
			times = append(times, anchor.Time)
		}
	}

	return prints, times, nil
}

// PairCount is the number of fingerprints Generate produces for n peaks.
func PairCount(n, fanOut int) int {
	if n < 2 || fanOut <= 0 {
		return 0
	}
	total := 0
	for i := 0; i < n; i++ {
		k := n - 1 - i
		if k > fanOut {
			k = fanOut
		}
		total += k
	}
	return total
}
