//go:build !portaudio

package audio

import (
	"context"
	"errors"
)

// MicrophoneAvailable reports whether capture support was compiled in.
const MicrophoneAvailable = false

var errNoMicrophone = errors.New("microphone capture not available: rebuild with -tags portaudio")

func captureMicrophone(ctx context.Context, total, rate int) ([]float64, error) {
	return nil, errNoMicrophone
}
