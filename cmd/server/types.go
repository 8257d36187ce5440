package main

import (
	"fmt"
	"strings"

	"github.com/himanishpuri/soundmark/pkg/models"
)

// Fingerprint batch limits for POST /api/match/fingerprints
const (
	// MaxFingerprintsSoftLimit is roughly what a minute of audio produces at
	// the default settings
	MaxFingerprintsSoftLimit = 10000

	// MaxFingerprintsHardLimit is the absolute maximum allowed
	MaxFingerprintsHardLimit = 50000
)

// FingerprintDTO is one fingerprint plus the column of its anchor peak.
type FingerprintDTO struct {
	AnchorFreq  int `json:"anchor_freq"`
	PartnerFreq int `json:"partner_freq"`
	Delta       int `json:"delta"`
	Time        int `json:"time"`
}

func (f FingerprintDTO) fingerprint() models.Fingerprint {
	return models.Fingerprint{AnchorFreq: f.AnchorFreq, PartnerFreq: f.PartnerFreq, Delta: f.Delta}
}

// MatchFingerprintsRequest is the request body for POST /api/match/fingerprints
type MatchFingerprintsRequest struct {
	Fingerprints []FingerprintDTO `json:"fingerprints"`
}

// Validate checks if the request is valid
func (r *MatchFingerprintsRequest) Validate() error {
	if len(r.Fingerprints) == 0 {
		return fmt.Errorf("fingerprints cannot be empty")
	}
	if len(r.Fingerprints) > MaxFingerprintsHardLimit {
		return fmt.Errorf("too many fingerprints: %d (maximum: %d)", len(r.Fingerprints), MaxFingerprintsHardLimit)
	}
	for i, f := range r.Fingerprints {
		if !isValidFingerprint(f) {
			return fmt.Errorf("invalid fingerprint at index %d: %+v", i, f)
		}
	}
	return nil
}

// Split returns the fingerprints and times in request order.
func (r *MatchFingerprintsRequest) Split() ([]models.Fingerprint, []int) {
	prints := make([]models.Fingerprint, len(r.Fingerprints))
	times := make([]int, len(r.Fingerprints))
	for i, f := range r.Fingerprints {
		prints[i] = f.fingerprint()
		times[i] = f.Time
	}
	return prints, times
}

// isValidFingerprint rejects values the pipeline can never emit: negative
// bins or columns, and partners that precede their anchor.
func isValidFingerprint(f FingerprintDTO) bool {
	return f.AnchorFreq >= 0 && f.PartnerFreq >= 0 && f.Delta >= 0 && f.Time >= 0
}

// MatchResultDTO represents a single match result
type MatchResultDTO struct {
	SongID     string  `json:"song_id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Votes      int     `json:"votes"`
	Hits       int     `json:"hits,omitempty"`
	Offset     int     `json:"offset"`
	OffsetSec  float64 `json:"offset_sec"`
	Confidence float64 `json:"confidence"`
}

func toMatchDTO(m models.MatchResult) MatchResultDTO {
	return MatchResultDTO{
		SongID:     m.SongID.String(),
		Title:      m.Title,
		Artist:     m.Artist,
		Votes:      m.Votes,
		Hits:       m.Hits,
		Offset:     m.Offset,
		OffsetSec:  m.OffsetSec,
		Confidence: m.Confidence,
	}
}

// MatchResponse is the response for the match endpoints
type MatchResponse struct {
	Matches []MatchResultDTO `json:"matches"`
	Count   int              `json:"count"`
}

// DeleteSongRequest is the request body for DELETE /api/songs
type DeleteSongRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Validate checks if the request is valid
func (r *DeleteSongRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Artist) == "" {
		return fmt.Errorf("title and artist are required")
	}
	return nil
}

// AddSongResponse is the response for successful song addition
type AddSongResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Warning string `json:"warning,omitempty"`
}

// SongDTO represents a song in API responses
type SongDTO struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

func toSongDTO(s models.Song) SongDTO {
	return SongDTO{ID: s.ID.String(), Title: s.Title, Artist: s.Artist}
}

// ListSongsResponse is the response for GET /api/songs
type ListSongsResponse struct {
	Songs []SongDTO `json:"songs"`
	Count int       `json:"count"`
}

// DeleteSongResponse is the response for DELETE /api/songs
type DeleteSongResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Warning string `json:"warning,omitempty"`
}

// LookupResponse is the response for POST /api/fingerprints/lookup
type LookupResponse struct {
	Fingerprint models.Fingerprint `json:"fingerprint"`
	Records     []models.Record    `json:"records"`
	Count       int                `json:"count"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status           string `json:"status"`
	DatabasePath     string `json:"database_path"`
	Store            string `json:"store"`
	SongCount        int    `json:"song_count"`
	FingerprintCount int    `json:"fingerprint_count"`
	RecordCount      int    `json:"record_count"`
	SampleRate       int    `json:"sample_rate"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
