package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/himanishpuri/soundmark/pkg/models"
)

const pcmFormat = 1

// DecodeWAV reads an integer PCM WAV stream of any bit depth and channel
// count and returns it as a normalized mono clip at the file's own rate.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: invalid WAV file", models.ErrInvalidInput)
	}
	if decoder.WavAudioFormat != pcmFormat {
		return Clip{}, fmt.Errorf("%w: unsupported WAV audio format %d, only PCM supported", models.ErrInvalidInput, decoder.WavAudioFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("could not read PCM buffer: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		return Clip{}, errors.New("WAV file declares zero channels")
	}
	depth := int(decoder.BitDepth)
	if depth <= 0 || depth > 32 {
		return Clip{}, fmt.Errorf("%w: unsupported bit depth %d", models.ErrInvalidInput, depth)
	}

	return Clip{
		Samples:    downmix(buf.Data, channels, depth),
		SampleRate: int(decoder.SampleRate),
	}, nil
}

// downmix averages interleaved channels and scales to [-1, 1]. 8-bit WAV data
// is unsigned and is re-centered first.
func downmix(data []int, channels, depth int) []float64 {
	scale := 1.0 / float64(int64(1)<<uint(depth-1))
	bias := 0
	if depth == 8 {
		bias = 128
	}

	frames := len(data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += data[i*channels+ch] - bias
		}
		out[i] = float64(sum) / float64(channels) * scale
	}
	return out
}

// EncodeWAV writes the clip as 16-bit mono PCM.
func EncodeWAV(w io.WriteSeeker, c Clip) error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", models.ErrInvalidInput, c.SampleRate)
	}

	data := make([]int, len(c.Samples))
	for i, v := range c.Samples {
		s := math.Round(v * math.MaxInt16)
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		data[i] = int(s)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	encoder := wav.NewEncoder(w, c.SampleRate, 16, 1, pcmFormat)
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("data writing error: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return nil
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("could not open file: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WriteWAVFile encodes c into a new file at path.
func WriteWAVFile(path string, c Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output file creation error: %w", err)
	}
	if err := EncodeWAV(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
