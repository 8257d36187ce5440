package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

type Metadata struct {
	Filename    string
	Title       string
	Artist      string
	Album       string
	DurationSec float64
	SampleRate  int
	Channels    int
	BitDepth    int
	Format      string
}

// ProbeMetadata runs ffprobe on path.
func ProbeMetadata(ctx context.Context, path string) (*Metadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbe(filepath.Base(path), out)
}

// ParseProbe extracts metadata from ffprobe JSON output. Tag names are
// matched case-insensitively since containers disagree on casing.
func ParseProbe(filename string, out []byte) (*Metadata, error) {
	if !gjson.ValidBytes(out) {
		return nil, errors.New("ffprobe output is not valid JSON")
	}
	stream := gjson.GetBytes(out, `streams.#(codec_type=="audio")`)
	if !stream.Exists() {
		return nil, errors.New("no audio stream found")
	}

	meta := &Metadata{
		Filename:    filename,
		DurationSec: gjson.GetBytes(out, "format.duration").Float(),
		Format:      gjson.GetBytes(out, "format.format_name").String(),
		SampleRate:  int(stream.Get("sample_rate").Int()),
		Channels:    int(stream.Get("channels").Int()),
		BitDepth:    int(stream.Get("bits_per_sample").Int()),
	}

	gjson.GetBytes(out, "format.tags").ForEach(func(key, value gjson.Result) bool {
		switch strings.ToLower(key.String()) {
		case "title":
			meta.Title = value.String()
		case "artist":
			meta.Artist = value.String()
		case "album":
			meta.Album = value.String()
		}
		return true
	})

	return meta, nil
}

// TitleArtist returns tag values, falling back to the file name for the title
// and "Unknown Artist" for the artist.
func (m *Metadata) TitleArtist() (string, string) {
	title, artist := strings.TrimSpace(m.Title), strings.TrimSpace(m.Artist)
	if title == "" {
		title = strings.TrimSuffix(m.Filename, filepath.Ext(m.Filename))
	}
	if artist == "" {
		artist = "Unknown Artist"
	}
	return title, artist
}
