package audio

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/himanishpuri/soundmark/pkg/utils"
)

type ConvertWAVConfig struct {
	SampleRate int           // defaults to DefaultSampleRate
	Timeout    time.Duration // applied when ctx has no deadline, defaults to one minute
}

// ConvertToMonoWAV transcodes any ffmpeg-readable file to 16-bit mono PCM WAV
// in outputDir and returns the new file's path. Output names are unique so
// concurrent conversions of same-named inputs do not collide.
func ConvertToMonoWAV(ctx context.Context, inputPath, outputDir string, cfg ConvertWAVConfig) (string, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := utils.TempName(outputDir, inputPath, ".wav")
	tmpPath := outputPath + ".tmp.wav"
	defer utils.DeleteFile(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
