// Package render draws spectrogram images of clips for visual inspection.
package render

import (
	"fmt"
	"image"
	"image/draw"
	"path/filepath"

	"github.com/eligwz/spectrogram"
	"github.com/himanishpuri/soundmark/internal/audio"
	"github.com/himanishpuri/soundmark/pkg/models"
	"github.com/himanishpuri/soundmark/pkg/utils"
)

type Options struct {
	Width  int
	Height int // also the number of frequency bins
	Log10  bool
}

func DefaultOptions() Options {
	return Options{Width: 2048, Height: 512}
}

func validate(c audio.Clip, opts Options) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("%w: image size must be positive, got %dx%d", models.ErrInvalidInput, opts.Width, opts.Height)
	}
	if c.Len() == 0 || c.SampleRate <= 0 {
		return fmt.Errorf("%w: empty clip", models.ErrInvalidInput)
	}
	return nil
}

// SavePNG renders c on a black background and writes it to path.
func SavePNG(c audio.Clip, path string, opts Options) error {
	if err := validate(c, opts); err != nil {
		return err
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, opts.Width, opts.Height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude.
	spectrogram.Drawfft(
		img,
		c.Samples,
		uint32(c.SampleRate),
		uint32(opts.Height),
		false,
		false,
		true,
		opts.Log10,
	)

	if dir := filepath.Dir(path); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := spectrogram.SavePng(img, path); err != nil {
		return fmt.Errorf("saving PNG: %w", err)
	}
	return nil
}
