package fingerprint

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/himanishpuri/soundmark/pkg/models"
)

const (
	// DefaultPercentile excludes the quietest three quarters of the spectrogram.
	DefaultPercentile = 75.0
	// DefaultCutoff is the radius of the diamond-shaped neighborhood.
	DefaultCutoff = 20

	// magnitudeFloor keeps log() finite for silent bins.
	magnitudeFloor = 1e-20
)

// Peak is a (frequency bin, time column) coordinate into a spectrogram.
type Peak struct {
	Freq int // row
	Time int // column
}

// Less orders peaks column-major: by time, then by frequency.
func (p Peak) Less(o Peak) bool {
	if p.Time != o.Time {
		return p.Time < o.Time
	}
	return p.Freq < o.Freq
}

// Peaks is a peak sequence in strictly increasing column-major order. The
// fingerprint generator relies on this ordering to treat later peaks as
// forward in time, so values are only produced by DetectPeaks or NewPeaks.
type Peaks struct {
	list []Peak
}

// NewPeaks validates that ps is strictly column-major ordered.
func NewPeaks(ps []Peak) (Peaks, error) {
	for i := 1; i < len(ps); i++ {
		if !ps[i-1].Less(ps[i]) {
			return Peaks{}, fmt.Errorf("%w: peak %d (%d,%d) is not after (%d,%d)",
				models.ErrInvalidInput, i, ps[i].Freq, ps[i].Time, ps[i-1].Freq, ps[i-1].Time)
		}
	}
	out := make([]Peak, len(ps))
	copy(out, ps)
	return Peaks{list: out}, nil
}

// Len returns the number of peaks.
func (p Peaks) Len() int { return len(p.list) }

// At returns the i-th peak.
func (p Peaks) At(i int) Peak { return p.list[i] }

// Slice returns a copy of the peaks.
func (p Peaks) Slice() []Peak {
	out := make([]Peak, len(p.list))
	copy(out, p.list)
	return out
}

// PeakOptions tunes peak detection.
type PeakOptions struct {
	// Percentile of log magnitudes at or below which cells cannot be peaks.
	Percentile float64
	// Cutoff is the neighborhood radius: a cross-shaped structuring element
	// dilated Cutoff times, i.e. every offset with |dr|+|dc| <= Cutoff.
	Cutoff int
}

// DefaultPeakOptions returns percentile 75 and cutoff 20.
func DefaultPeakOptions() PeakOptions {
	return PeakOptions{Percentile: DefaultPercentile, Cutoff: DefaultCutoff}
}

// Validate checks the option ranges.
func (o PeakOptions) Validate() error {
	if math.IsNaN(o.Percentile) || o.Percentile < 0 || o.Percentile >= 100 {
		return fmt.Errorf("%w: percentile must be in [0, 100), got %v", models.ErrInvalidInput, o.Percentile)
	}
	if o.Cutoff < 0 {
		return fmt.Errorf("%w: cutoff must be non-negative, got %d", models.ErrInvalidInput, o.Cutoff)
	}
	return nil
}

// Offset is a relative (row, col) displacement inside a neighborhood.
type Offset struct {
	DR, DC int
}

// Neighborhood lists the offsets of the diamond of the given radius in
// row-major order, centered on (0,0). The center itself is included.
func Neighborhood(cutoff int) []Offset {
	if cutoff < 0 {
		return nil
	}
	offsets := make([]Offset, 0, 2*cutoff*(cutoff+1)+1)
	for dr := -cutoff; dr <= cutoff; dr++ {
		span := cutoff - absInt(dr)
		for dc := -span; dc <= span; dc++ {
			offsets = append(offsets, Offset{DR: dr, DC: dc})
		}
	}
	return offsets
}

// DetectPeaks finds local maxima of the log-magnitude spectrogram. A cell is
// a peak when its log magnitude is above the percentile threshold and no
// in-bounds neighbor is strictly greater. Neighbors outside the matrix are
// skipped, not mirrored. Peaks come back in column-major order.
func DetectPeaks(ctx context.Context, spec *Spectrogram, opts PeakOptions) (Peaks, error) {
	if spec == nil {
		return Peaks{}, fmt.Errorf("%w: nil spectrogram", models.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return Peaks{}, err
	}

	rows, cols := spec.Rows(), spec.Cols()
	raw := spec.Dense().RawMatrix()

	// Dense row-major log buffer, one allocation for the whole scan.
	logS := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		src := raw.Data[r*raw.Stride : r*raw.Stride+cols]
		dst := logS[r*cols : (r+1)*cols]
		for c, v := range src {
			if v < magnitudeFloor {
				v = magnitudeFloor
			}
			dst[c] = math.Log(v)
		}
	}

	ampMin := percentileValue(logS, opts.Percentile)

	// Drop the center offset once instead of testing it per cell.
	hood := Neighborhood(opts.Cutoff)
	offsets := hood[:0]
	for _, o := range hood {
		if o.DR != 0 || o.DC != 0 {
			offsets = append(offsets, o)
		}
	}

	var peaks []Peak
	for c := 0; c < cols; c++ {
		if err := ctx.Err(); err != nil {
			return Peaks{}, err
		}
		for r := 0; r < rows; r++ {
			v := logS[r*cols+c]
			if v <= ampMin {
				continue
			}
			isPeak := true
			for _, o := range offsets {
				nr, nc := r+o.DR, c+o.DC
				if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
					continue
				}
				if logS[nr*cols+nc] > v {
					isPeak = false
					break
				}
			}
			if isPeak {
				peaks = append(peaks, Peak{Freq: r, Time: c})
			}
		}
	}

	return Peaks{list: peaks}, nil
}

// percentileValue returns the element of rank round(n * p/100) in the sorted
// values, the same order statistic a partial sort would select.
func percentileValue(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.RoundToEven(float64(len(sorted)) * 0.01 * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
