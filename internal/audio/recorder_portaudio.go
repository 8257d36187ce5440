//go:build portaudio

package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// MicrophoneAvailable reports whether capture support was compiled in.
const MicrophoneAvailable = true

func captureMicrophone(ctx context.Context, total, rate int) ([]float64, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	buffer := make([]float32, recordBufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), len(buffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	defer stream.Stop()

	samples := make([]float64, 0, total)
	for len(samples) < total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("failed to read audio stream: %w", err)
		}
		n := total - len(samples)
		if n > len(buffer) {
			n = len(buffer)
		}
		for _, v := range buffer[:n] {
			samples = append(samples, float64(v))
		}
	}
	return samples, nil
}
