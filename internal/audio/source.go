package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/soundmark/pkg/utils"
)

// Source produces a clip to enroll or identify.
type Source interface {
	Load(ctx context.Context) (Clip, error)
}

// FileSource reads any audio file. WAV files are decoded directly and
// resampled; other formats go through ffmpeg.
type FileSource struct {
	Path        string
	TempDir     string
	SampleRate  int
	MaxDuration time.Duration // zero reads the whole file
}

func (s FileSource) rate() int {
	if s.SampleRate > 0 {
		return s.SampleRate
	}
	return DefaultSampleRate
}

func (s FileSource) Load(ctx context.Context) (Clip, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return Clip{}, fmt.Errorf("audio file: %w", err)
	}

	if strings.EqualFold(strings.TrimPrefix(filepath.Ext(s.Path), "."), "wav") {
		clip, err := ReadWAVFile(s.Path)
		if err == nil {
			return clip.Resample(s.rate()).Truncate(s.MaxDuration), nil
		}
		// Compressed or float WAV: let ffmpeg handle it.
	}

	tmpDir := s.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	wavPath, err := ConvertToMonoWAV(ctx, s.Path, tmpDir, ConvertWAVConfig{SampleRate: s.rate()})
	if err != nil {
		return Clip{}, fmt.Errorf("failed to convert audio: %w", err)
	}
	defer utils.DeleteFile(wavPath)

	clip, err := ReadWAVFile(wavPath)
	if err != nil {
		return Clip{}, err
	}
	return clip.Truncate(s.MaxDuration), nil
}

// WAVSource decodes WAV bytes held in memory, such as an upload.
type WAVSource struct {
	Data       []byte
	SampleRate int
}

func (s WAVSource) Load(ctx context.Context) (Clip, error) {
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	clip, err := DecodeWAV(bytes.NewReader(s.Data))
	if err != nil {
		return Clip{}, err
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return clip.Resample(rate), nil
}

// ClipSource wraps an already decoded clip.
type ClipSource Clip

func (s ClipSource) Load(ctx context.Context) (Clip, error) {
	return Clip(s), ctx.Err()
}
