package fingerprint

import (
	"fmt"
	"math/cmplx"

	"github.com/himanishpuri/soundmark/pkg/models"
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"
)

// Spectrogram is a dense magnitude matrix: rows are frequency bins in
// ascending order, columns are non-overlapping windows in chronological order.
type Spectrogram struct {
	m          *mat.Dense
	windowSize int
}

// BuildSpectrogram cuts samples into non-overlapping windows of windowSize
// samples (a trailing partial window is discarded) and computes the one-sided
// amplitude spectrum of each. Amplitudes are normalized by the window length
// and every bin except DC and, for even window lengths, Nyquist is doubled.
func BuildSpectrogram(samples []float64, windowSize int) (*Spectrogram, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", models.ErrInvalidInput, windowSize)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: samples cannot be empty", models.ErrInvalidInput)
	}
	if len(samples) < windowSize {
		return nil, fmt.Errorf("%w: %d samples is shorter than one window of %d", models.ErrInvalidInput, len(samples), windowSize)
	}

	cols := len(samples) / windowSize
	rows := windowSize/2 + 1
	m := mat.NewDense(rows, cols, nil)
	raw := m.RawMatrix()

	norm := 1.0 / float64(windowSize)
	nyquist := -1
	if windowSize%2 == 0 {
		nyquist = windowSize / 2
	}

	for c := 0; c < cols; c++ {
		coeffs := fft.FFTReal(samples[c*windowSize : (c+1)*windowSize])
		for r := 0; r < rows; r++ {
			a := cmplx.Abs(coeffs[r]) * norm
			if r != 0 && r != nyquist {
				a *= 2
			}
			raw.Data[r*raw.Stride+c] = a
		}
	}

	return &Spectrogram{m: m, windowSize: windowSize}, nil
}

// Rows is the number of frequency bins (windowSize/2 + 1).
func (s *Spectrogram) Rows() int {
	r, _ := s.m.Dims()
	return r
}

// Cols is the number of time windows.
func (s *Spectrogram) Cols() int {
	_, c := s.m.Dims()
	return c
}

// WindowSize is the number of samples per column.
func (s *Spectrogram) WindowSize() int { return s.windowSize }

// At returns the magnitude at frequency bin row and window col.
func (s *Spectrogram) At(row, col int) float64 {
	return s.m.At(row, col)
}

// Dense exposes the underlying matrix. Callers must not modify it.
func (s *Spectrogram) Dense() *mat.Dense { return s.m }

// FreqOf converts a row index to Hz.
func (s *Spectrogram) FreqOf(row, sampleRate int) float64 {
	return float64(row) * float64(sampleRate) / float64(s.windowSize)
}

// TimeOf converts a column index to seconds from the start of the clip.
func (s *Spectrogram) TimeOf(col, sampleRate int) float64 {
	return float64(col*s.windowSize) / float64(sampleRate)
}

// Column copies one time window's magnitudes.
func (s *Spectrogram) Column(col int) []float64 {
	return mat.Col(nil, col, s.m)
}
