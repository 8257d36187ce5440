package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/himanishpuri/soundmark/pkg/models"
)

const recordBufferSize = 4096

// Recorder captures a fixed-length clip from the default input device.
type Recorder struct {
	Duration   time.Duration
	SampleRate int
}

// Load records for r.Duration. It fails immediately when the binary was
// built without the portaudio tag.
func (r Recorder) Load(ctx context.Context) (Clip, error) {
	if r.Duration <= 0 {
		return Clip{}, fmt.Errorf("%w: recording duration must be positive, got %v", models.ErrInvalidInput, r.Duration)
	}
	rate := r.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	samples, err := captureMicrophone(ctx, int(r.Duration.Seconds()*float64(rate)), rate)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: samples, SampleRate: rate}, nil
}
