package soundmark

import (
	"context"
	"fmt"
	"sync"

	"github.com/himanishpuri/soundmark/internal/audio"
	"github.com/himanishpuri/soundmark/internal/database"
	"github.com/himanishpuri/soundmark/internal/fingerprint"
	"github.com/himanishpuri/soundmark/internal/matcher"
	"github.com/himanishpuri/soundmark/internal/storage"
	"github.com/himanishpuri/soundmark/pkg/logger"
	"github.com/himanishpuri/soundmark/pkg/models"
)

// soundmarkService is the default implementation of the Service interface.
type soundmarkService struct {
	db      *database.DB
	matcher *matcher.Matcher
	store   storage.Store
	log     Logger
	config  *Config

	saveMu sync.Mutex
}

// NewService builds a service and loads any snapshot the configured store
// already holds.
func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	var store storage.Store
	if !cfg.InMemory {
		store = cfg.Store
		if store == nil {
			var err error
			store, err = storage.Open(cfg.StoreKind, cfg.DBPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreKind, err)
			}
		}
	}

	s := &soundmarkService{
		db:      database.New(),
		matcher: matcher.New(cfg.TieBreak),
		store:   store,
		log:     cfg.Logger,
		config:  cfg,
	}

	if err := s.Load(context.Background()); err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return s, nil
}

// Fingerprints runs the pipeline on clip: spectrogram, peaks, pairs.
func (s *soundmarkService) Fingerprints(ctx context.Context, clip audio.Clip) ([]models.Fingerprint, []int, error) {
	if clip.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: clip has no samples", models.ErrInvalidInput)
	}
	if clip.SampleRate <= 0 {
		return nil, nil, fmt.Errorf("%w: sample rate must be positive, got %d", models.ErrInvalidInput, clip.SampleRate)
	}
	clip = clip.Resample(s.config.SampleRate)

	spec, err := fingerprint.BuildSpectrogram(clip.Samples, s.config.WindowSize)
	if err != nil {
		return nil, nil, fmt.Errorf("spectrogram generation failed: %w", err)
	}

	peaks, err := fingerprint.DetectPeaks(ctx, spec, s.config.Peaks)
	if err != nil {
		return nil, nil, fmt.Errorf("peak detection failed: %w", err)
	}

	prints, times, err := fingerprint.Generate(peaks, s.config.FanOut)
	if err != nil {
		return nil, nil, fmt.Errorf("fingerprint generation failed: %w", err)
	}
	s.log.Debugf("%d windows, %d peaks, %d fingerprints", spec.Cols(), peaks.Len(), len(prints))
	return prints, times, nil
}

// AddSong fingerprints clip and enrolls it.
func (s *soundmarkService) AddSong(ctx context.Context, clip audio.Clip, title, artist string) (models.SongID, error) {
	s.log.Infof("Processing song: %s by %s", title, artist)

	prints, times, err := s.Fingerprints(ctx, clip)
	if err != nil {
		return 0, err
	}
	if len(prints) == 0 {
		s.log.Warnf("%s by %s produced no fingerprints and will never match", title, artist)
	}

	id, err := s.db.AddSong(models.SongInfo{Title: title, Artist: artist}, prints, times)
	if err != nil {
		return 0, fmt.Errorf("failed to add song: %w", err)
	}
	s.log.Infof("Added %s (%d fingerprints)", id, len(prints))

	if err := s.autoSave(ctx); err != nil {
		return id, err
	}
	return id, nil
}

func (s *soundmarkService) loadFile(ctx context.Context, path string) (audio.Clip, error) {
	return audio.FileSource{
		Path:       path,
		TempDir:    s.config.TempDir,
		SampleRate: s.config.SampleRate,
	}.Load(ctx)
}

// resolveTitle fills a missing title or artist from file tags.
func (s *soundmarkService) resolveTitle(ctx context.Context, path, title, artist string) (string, string) {
	if title != "" && artist != "" {
		return title, artist
	}
	meta, err := audio.ProbeMetadata(ctx, path)
	if err != nil {
		s.log.Debugf("Could not read tags from %s: %v", path, err)
		meta = &audio.Metadata{Filename: path}
	}
	t, a := meta.TitleArtist()
	if title == "" {
		title = t
	}
	if artist == "" {
		artist = a
	}
	return title, artist
}

func (s *soundmarkService) AddSongFile(ctx context.Context, path, title, artist string) (models.SongID, error) {
	clip, err := s.loadFile(ctx, path)
	if err != nil {
		return 0, err
	}
	title, artist = s.resolveTitle(ctx, path, title, artist)
	return s.AddSong(ctx, clip, title, artist)
}

type prepared struct {
	track  Track
	prints []models.Fingerprint
	times  []int
	err    error
}

// AddSongs fingerprints tracks concurrently and enrolls them in input order,
// so ids do not depend on scheduling. A failed track does not stop the rest;
// its error is reported in the corresponding AddResult.
func (s *soundmarkService) AddSongs(ctx context.Context, tracks []Track, progress func(Track, error)) ([]AddResult, error) {
	work := make([]prepared, len(tracks))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := prepared{track: tracks[i]}
				clip, err := s.loadFile(ctx, p.track.Path)
				if err == nil {
					p.track.Title, p.track.Artist = s.resolveTitle(ctx, p.track.Path, p.track.Title, p.track.Artist)
					p.prints, p.times, err = s.Fingerprints(ctx, clip)
				}
				p.err = err
				work[i] = p
				if progress != nil {
					progress(p.track, err)
				}
			}
		}()
	}

feed:
	for i := range tracks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]AddResult, len(work))
	added := 0
	for i, p := range work {
		results[i] = AddResult{Track: p.track, Err: p.err}
		if p.err != nil {
			s.log.Warnf("Skipping %s: %v", p.track.Path, p.err)
			continue
		}
		id, err := s.db.AddSong(models.SongInfo{Title: p.track.Title, Artist: p.track.Artist}, p.prints, p.times)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].SongID = id
		results[i].Fingerprints = len(p.prints)
		added++
	}
	s.log.Infof("Enrolled %d of %d tracks", added, len(tracks))

	if added > 0 {
		if err := s.autoSave(ctx); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (s *soundmarkService) toResult(r matcher.Result, info models.SongInfo) models.MatchResult {
	res := models.MatchResult{
		Found:     true,
		SongID:    r.SongID,
		Title:     info.Title,
		Artist:    info.Artist,
		Votes:     r.Votes,
		Hits:      r.Hits,
		Offset:    r.Offset,
		OffsetSec: float64(r.Offset*s.config.WindowSize) / float64(s.config.SampleRate),
	}
	if r.Queried > 0 {
		res.Confidence = float64(r.Votes) / float64(r.Queried) * 100
	}
	return res
}

// Identify returns the best match for clip. A clip with no database hits
// yields Found == false rather than an error.
func (s *soundmarkService) Identify(ctx context.Context, clip audio.Clip) (*models.MatchResult, error) {
	prints, times, err := s.Fingerprints(ctx, clip)
	if err != nil {
		return nil, err
	}
	return s.IdentifyFingerprints(ctx, prints, times)
}

// IdentifyFingerprints matches fingerprints computed elsewhere, e.g. by a
// client running the same pipeline.
func (s *soundmarkService) IdentifyFingerprints(ctx context.Context, prints []models.Fingerprint, times []int) (*models.MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		res  matcher.Result
		ok   bool
		info models.SongInfo
		err  error
	)
	// Match and the metadata read share one read lock so a concurrent delete
	// cannot renumber the winner in between.
	s.db.Read(func(v database.View) {
		res, ok, err = s.matcher.MatchView(v, prints, times)
		if err == nil && ok {
			info, _ = v.SongInfo(res.SongID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("matching failed: %w", err)
	}
	if !ok {
		s.log.Infof("No match among %d query fingerprints", len(prints))
		return &models.MatchResult{Found: false}, nil
	}

	out := s.toResult(res, info)
	s.log.Infof("Matched %s (%s by %s) with %d votes", out.SongID, out.Title, out.Artist, out.Votes)
	return &out, nil
}

func (s *soundmarkService) IdentifyFile(ctx context.Context, path string) (*models.MatchResult, error) {
	s.log.Infof("Matching audio: %s", path)
	clip, err := s.loadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Identify(ctx, clip)
}

// Rank returns up to limit songs ordered by their best offset's votes.
func (s *soundmarkService) Rank(ctx context.Context, clip audio.Clip, limit int) ([]models.MatchResult, error) {
	prints, times, err := s.Fingerprints(ctx, clip)
	if err != nil {
		return nil, err
	}

	var out []models.MatchResult
	s.db.Read(func(v database.View) {
		var ranked []matcher.Candidate
		ranked, err = s.matcher.RankView(v, prints, times, limit)
		if err != nil {
			return
		}
		out = make([]models.MatchResult, len(ranked))
		for i, c := range ranked {
			info, _ := v.SongInfo(c.SongID)
			out[i] = s.toResult(matcher.Result{Candidate: c, Queried: len(prints)}, info)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("ranking failed: %w", err)
	}
	return out, nil
}

func (s *soundmarkService) DeleteSong(ctx context.Context, title, artist string) (models.SongID, error) {
	id, err := s.db.DeleteSong(title, artist)
	if err != nil {
		return 0, err
	}
	s.log.Infof("Deleted %s (%s by %s)", id, title, artist)
	if err := s.autoSave(ctx); err != nil {
		return id, err
	}
	return id, nil
}

func (s *soundmarkService) GetSong(id models.SongID) (*models.Song, error) {
	info, err := s.db.SongInfo(id)
	if err != nil {
		return nil, err
	}
	return &models.Song{ID: id, Title: info.Title, Artist: info.Artist}, nil
}

func (s *soundmarkService) ListSongs() []models.Song {
	return s.db.Songs()
}

func (s *soundmarkService) Lookup(fp models.Fingerprint) ([]models.Record, bool) {
	return s.db.Lookup(fp)
}

func (s *soundmarkService) Stats() Stats {
	var st Stats
	s.db.Read(func(v database.View) {
		st = Stats{Songs: v.Len(), Fingerprints: v.FingerprintCount(), Records: v.RecordCount()}
	})
	return st
}

// Save writes a snapshot to the configured store.
func (s *soundmarkService) Save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := s.db.Snapshot()
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("failed to save database: %w", err)
	}
	s.log.Debugf("Saved %d songs, %d fingerprints", len(snap.Songs), len(snap.Prints))
	return nil
}

// Load replaces the in-memory database with the stored snapshot.
func (s *soundmarkService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	if err := s.db.Replace(snap); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	s.log.Debugf("Loaded %d songs, %d fingerprints", len(snap.Songs), len(snap.Prints))
	return nil
}

// autoSave persists a mutation that has already been applied. It runs
// detached from ctx's cancellation so a dropped caller cannot interrupt it.
func (s *soundmarkService) autoSave(ctx context.Context) error {
	if !s.config.AutoSave {
		return nil
	}
	if err := s.Save(context.WithoutCancel(ctx)); err != nil {
		s.log.Errorf("Auto-save failed: %v", err)
		return fmt.Errorf("%w: %w", models.ErrPersist, err)
	}
	return nil
}

func (s *soundmarkService) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
