package utils

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID returns a random v4 UUID.
func GenerateUUID() string {
	return uuid.NewString()
}

// TempName builds a unique file name in dir from the base name of src,
// e.g. "/tmp/song-<uuid>.wav" for src "music/song.mp3" and ext ".wav".
func TempName(dir, src, ext string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, base+"-"+GenerateUUID()+ext)
}
