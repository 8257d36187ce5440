package models

import (
	"fmt"
	"strconv"
	"strings"
)

// SongID is a dense, zero-based song identifier. Identifiers always form the
// contiguous range [0, count) of the database that issued them.
type SongID int

// String renders the identifier as "Song<N>".
func (id SongID) String() string {
	return "Song" + strconv.Itoa(int(id))
}

// ParseSongID accepts either "Song<N>" or a bare number.
func ParseSongID(s string) (SongID, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(s), "Song"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid song id %q", ErrInvalidInput, s)
	}
	return SongID(n), nil
}

// SongInfo is the descriptive metadata stored for every song.
type SongInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Song pairs an identifier with its metadata.
type Song struct {
	ID     SongID `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// MatchResult is the outcome of identifying a clip.
type MatchResult struct {
	Found  bool    `json:"found"`
	SongID SongID  `json:"song_id"`
	Title  string  `json:"title,omitempty"`
	Artist string  `json:"artist,omitempty"`
	Votes  int     `json:"votes"`  // occurrences agreeing on the winning offset
	Hits   int     `json:"hits"`   // stored occurrences of any query fingerprint
	Offset int     `json:"offset"` // stored time minus query time, in spectrogram columns
	// OffsetSec is Offset converted to seconds using the window duration.
	OffsetSec  float64 `json:"offset_sec"`
	Confidence float64 `json:"confidence"` // percentage of query fingerprints that voted for the winner
}
