package soundmark

import (
	"context"

	"github.com/himanishpuri/soundmark/internal/audio"
	"github.com/himanishpuri/soundmark/pkg/models"
)

// Service is the fingerprinting facade. With auto-save enabled, mutating calls
// that fail only to persist return models.ErrPersist alongside a valid id; the
// change stays applied in memory.
type Service interface {
	AddSong(ctx context.Context, clip audio.Clip, title, artist string) (models.SongID, error)
	AddSongFile(ctx context.Context, path, title, artist string) (models.SongID, error)
	AddSongs(ctx context.Context, tracks []Track, progress func(Track, error)) ([]AddResult, error)
	Identify(ctx context.Context, clip audio.Clip) (*models.MatchResult, error)
	IdentifyFile(ctx context.Context, path string) (*models.MatchResult, error)
	IdentifyFingerprints(ctx context.Context, prints []models.Fingerprint, times []int) (*models.MatchResult, error)
	Rank(ctx context.Context, clip audio.Clip, limit int) ([]models.MatchResult, error)
	DeleteSong(ctx context.Context, title, artist string) (models.SongID, error)
	GetSong(id models.SongID) (*models.Song, error)
	ListSongs() []models.Song
	Lookup(fp models.Fingerprint) ([]models.Record, bool)
	Fingerprints(ctx context.Context, clip audio.Clip) ([]models.Fingerprint, []int, error)
	Save(ctx context.Context) error
	Load(ctx context.Context) error
	Stats() Stats
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
