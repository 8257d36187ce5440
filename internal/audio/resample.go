package audio

// Resample converts samples between rates with linear interpolation.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / ratio)
	out := make([]float64, n)

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		switch {
		case idx+1 < len(samples):
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		case idx < len(samples):
			out[i] = samples[idx]
		default:
			out[i] = samples[len(samples)-1]
		}
	}
	return out
}

// Resample returns the clip at rate.
func (c Clip) Resample(rate int) Clip {
	if rate <= 0 || rate == c.SampleRate {
		return c
	}
	return Clip{Samples: Resample(c.Samples, c.SampleRate, rate), SampleRate: rate}
}
