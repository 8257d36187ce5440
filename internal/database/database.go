// Package database holds the in-memory fingerprint index: song metadata with
// dense identifiers plus, for every fingerprint, the ordered list of songs and
// anchor times it occurred at.
package database

import (
	"fmt"
	"sync"

	"github.com/himanishpuri/soundmark/pkg/models"
)

// DB is safe for concurrent use. Readers share the lock, AddSong and
// DeleteSong take it exclusively.
type DB struct {
	mu     sync.RWMutex
	songs  []models.SongInfo
	prints map[models.Fingerprint][]models.Record
}

// New returns an empty database.
func New() *DB {
	return &DB{prints: make(map[models.Fingerprint][]models.Record)}
}

// AddSong enrolls a song and returns its id, which equals the number of songs
// present before the call. Occurrences are appended in input order.
func (db *DB) AddSong(info models.SongInfo, prints []models.Fingerprint, times []int) (models.SongID, error) {
	if len(prints) != len(times) {
		return 0, fmt.Errorf("%w: %d fingerprints but %d times", models.ErrInvalidInput, len(prints), len(times))
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	id := models.SongID(len(db.songs))
	db.songs = append(db.songs, info)
	for i, fp := range prints {
		db.prints[fp] = append(db.prints[fp], models.Record{SongID: id, Time: times[i]})
	}
	return id, nil
}

// DeleteSong removes the first song (lowest id) whose title and artist both
// match, along with every occurrence referencing it. Songs with a larger id
// shift down by one so ids stay contiguous, and fingerprints left without
// occurrences are dropped. The database is unchanged when no song matches.
func (db *DB) DeleteSong(title, artist string) (models.SongID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	target := -1
	for i, s := range db.songs {
		if s.Title == title && s.Artist == artist {
			target = i
			break
		}
	}
	if target < 0 {
		return 0, fmt.Errorf("%w: song %q by %q", models.ErrNotFound, title, artist)
	}
	deleted := models.SongID(target)

	// Build the replacement index first and swap it in at the end.
	next := make(map[models.Fingerprint][]models.Record, len(db.prints))
	for fp, recs := range db.prints {
		var kept []models.Record
		for _, r := range recs {
			switch {
			case r.SongID == deleted:
				continue
			case r.SongID > deleted:
				r.SongID--
			}
			kept = append(kept, r)
		}
		if len(kept) > 0 {
			next[fp] = kept
		}
	}

	songs := make([]models.SongInfo, 0, len(db.songs)-1)
	songs = append(songs, db.songs[:target]...)
	songs = append(songs, db.songs[target+1:]...)

	db.songs = songs
	db.prints = next
	return deleted, nil
}

// Lookup returns a copy of the occurrence list for fp.
func (db *DB) Lookup(fp models.Fingerprint) ([]models.Record, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	recs, ok := db.prints[fp]
	if !ok {
		return nil, false
	}
	out := make([]models.Record, len(recs))
	copy(out, recs)
	return out, true
}

// SongInfo returns the metadata stored for id.
func (db *DB) SongInfo(id models.SongID) (models.SongInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if id < 0 || int(id) >= len(db.songs) {
		return models.SongInfo{}, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	return db.songs[id], nil
}

// FindSong returns the lowest id whose title and artist match.
func (db *DB) FindSong(title, artist string) (models.SongID, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for i, s := range db.songs {
		if s.Title == title && s.Artist == artist {
			return models.SongID(i), true
		}
	}
	return 0, false
}

// Songs lists every song in id order.
func (db *DB) Songs() []models.Song {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]models.Song, len(db.songs))
	for i, s := range db.songs {
		out[i] = models.Song{ID: models.SongID(i), Title: s.Title, Artist: s.Artist}
	}
	return out
}

// Len is the number of songs.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.songs)
}

// FingerprintCount is the number of distinct fingerprints.
func (db *DB) FingerprintCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.prints)
}

// RecordCount is the number of stored occurrences.
func (db *DB) RecordCount() int {
	var n int
	db.Read(func(v View) { n = v.RecordCount() })
	return n
}

// View is a read-only handle valid only inside Read. Slices it returns alias
// database storage and must not be modified or retained.
type View struct {
	db *DB
}

// Lookup returns the occurrence list for fp without copying.
func (v View) Lookup(fp models.Fingerprint) []models.Record {
	return v.db.prints[fp]
}

// SongInfo returns the metadata for id.
func (v View) SongInfo(id models.SongID) (models.SongInfo, bool) {
	if id < 0 || int(id) >= len(v.db.songs) {
		return models.SongInfo{}, false
	}
	return v.db.songs[id], true
}

// Len is the number of songs.
func (v View) Len() int { return len(v.db.songs) }

// FingerprintCount is the number of distinct fingerprints.
func (v View) FingerprintCount() int { return len(v.db.prints) }

// RecordCount is the number of stored occurrences.
func (v View) RecordCount() int {
	n := 0
	for _, recs := range v.db.prints {
		n += len(recs)
	}
	return n
}

// Read runs fn under a single read lock so that several lookups observe the
// same state. fn must not call back into db.
func (db *DB) Read(fn func(View)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn(View{db: db})
}

// Snapshot returns a deep copy of the database.
func (db *DB) Snapshot() *models.Snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	snap := &models.Snapshot{
		Songs:  make([]models.SongInfo, len(db.songs)),
		Prints: make(map[models.Fingerprint][]models.Record, len(db.prints)),
	}
	copy(snap.Songs, db.songs)
	for fp, recs := range db.prints {
		cp := make([]models.Record, len(recs))
		copy(cp, recs)
		snap.Prints[fp] = cp
	}
	return snap
}

// FromSnapshot builds a database from snap after validating it.
func FromSnapshot(snap *models.Snapshot) (*DB, error) {
	db := New()
	if err := db.Replace(snap); err != nil {
		return nil, err
	}
	return db, nil
}

// Replace swaps the contents for a validated deep copy of snap.
func (db *DB) Replace(snap *models.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}

	songs := make([]models.SongInfo, len(snap.Songs))
	copy(songs, snap.Songs)
	prints := make(map[models.Fingerprint][]models.Record, len(snap.Prints))
	for fp, recs := range snap.Prints {
		cp := make([]models.Record, len(recs))
		copy(cp, recs)
		prints[fp] = cp
	}

	db.mu.Lock()
	db.songs = songs
	db.prints = prints
	db.mu.Unlock()
	return nil
}

// Validate checks that every occurrence references an existing song and that
// no fingerprint maps to an empty list.
func Validate(snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", models.ErrCorruptSnapshot)
	}
	n := models.SongID(len(snap.Songs))
	for fp, recs := range snap.Prints {
		if len(recs) == 0 {
			return fmt.Errorf("%w: fingerprint %v has no occurrences", models.ErrCorruptSnapshot, fp)
		}
		for _, r := range recs {
			if r.SongID < 0 || r.SongID >= n {
				return fmt.Errorf("%w: fingerprint %v references %s but only %d songs exist",
					models.ErrCorruptSnapshot, fp, r.SongID, n)
			}
		}
	}
	return nil
}
