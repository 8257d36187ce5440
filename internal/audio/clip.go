package audio

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/himanishpuri/soundmark/pkg/models"
)

// DefaultSampleRate is the rate every source converts to.
const DefaultSampleRate = 44100

// Clip is mono audio normalized to [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
}

// NewClip validates the sample rate and wraps samples without copying.
func NewClip(samples []float64, sampleRate int) (Clip, error) {
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: sample rate must be positive, got %d", models.ErrInvalidInput, sampleRate)
	}
	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}

// Len is the number of samples.
func (c Clip) Len() int { return len(c.Samples) }

// Duration of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Times returns the timestamp in seconds of every sample.
func (c Clip) Times() []float64 {
	out := make([]float64, len(c.Samples))
	for i := range out {
		out[i] = float64(i) / float64(c.SampleRate)
	}
	return out
}

func (c Clip) samplesFor(d time.Duration) int {
	return int(d.Seconds() * float64(c.SampleRate))
}

// Excerpt returns the samples in [start, start+length). The result shares
// storage with c.
func (c Clip) Excerpt(start, length time.Duration) (Clip, error) {
	if start < 0 || length <= 0 {
		return Clip{}, fmt.Errorf("%w: excerpt start %v length %v", models.ErrInvalidInput, start, length)
	}
	from := c.samplesFor(start)
	to := from + c.samplesFor(length)
	if to > len(c.Samples) {
		return Clip{}, fmt.Errorf("%w: excerpt ends at %v but clip is %v long", models.ErrInvalidInput, start+length, c.Duration())
	}
	return Clip{Samples: c.Samples[from:to], SampleRate: c.SampleRate}, nil
}

// Truncate drops everything after limit. A non-positive limit keeps the clip.
func (c Clip) Truncate(limit time.Duration) Clip {
	if limit <= 0 {
		return c
	}
	if n := c.samplesFor(limit); n < len(c.Samples) {
		c.Samples = c.Samples[:n]
	}
	return c
}

// RandomExcerpt picks a uniformly random excerpt of the given length.
func (c Clip) RandomExcerpt(length time.Duration, rng *rand.Rand) (Clip, time.Duration, error) {
	n := c.samplesFor(length)
	if n <= 0 || n > len(c.Samples) {
		return Clip{}, 0, fmt.Errorf("%w: cannot cut %v from a %v clip", models.ErrInvalidInput, length, c.Duration())
	}
	from := rng.Intn(len(c.Samples) - n + 1)
	start := time.Duration(float64(from) / float64(c.SampleRate) * float64(time.Second))
	return Clip{Samples: c.Samples[from : from+n], SampleRate: c.SampleRate}, start, nil
}
