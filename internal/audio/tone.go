package audio

import (
	"math"
	"math/rand"
	"time"
)

// Tone synthesizes a sine wave.
func Tone(freq float64, d time.Duration, sampleRate int, amplitude float64) Clip {
	n := int(d.Seconds() * float64(sampleRate))
	samples := make([]float64, n)
	step := 2 * math.Pi * freq / float64(sampleRate)
	for i := range samples {
		samples[i] = amplitude * math.Sin(step*float64(i))
	}
	return Clip{Samples: samples, SampleRate: sampleRate}
}

// Noise is seeded uniform noise in [-amplitude, amplitude].
func Noise(d time.Duration, sampleRate int, amplitude float64, seed int64) Clip {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float64, int(d.Seconds()*float64(sampleRate)))
	for i := range samples {
		samples[i] = amplitude * (2*rng.Float64() - 1)
	}
	return Clip{Samples: samples, SampleRate: sampleRate}
}

// Mix sums clips sample by sample. The result is as long as the longest clip
// and uses the first clip's rate.
func Mix(clips ...Clip) Clip {
	if len(clips) == 0 {
		return Clip{}
	}
	n := 0
	for _, c := range clips {
		if len(c.Samples) > n {
			n = len(c.Samples)
		}
	}
	out := make([]float64, n)
	for _, c := range clips {
		for i, v := range c.Samples {
			out[i] += v
		}
	}
	return Clip{Samples: out, SampleRate: clips[0].SampleRate}
}

// Concat appends clips recorded at the same rate.
func Concat(clips ...Clip) Clip {
	if len(clips) == 0 {
		return Clip{}
	}
	var out []float64
	for _, c := range clips {
		out = append(out, c.Samples...)
	}
	return Clip{Samples: out, SampleRate: clips[0].SampleRate}
}
