package soundmark

import "github.com/himanishpuri/soundmark/pkg/models"

// Track is one file to enroll with AddSongs. Empty Title or Artist are filled
// from file tags.
type Track struct {
	Path   string
	Title  string
	Artist string
}

// AddResult reports the outcome for one Track, in input order.
type AddResult struct {
	Track        Track
	SongID       models.SongID
	Fingerprints int
	Err          error
}

// Stats summarizes the database contents.
type Stats struct {
	Songs        int `json:"songs"`
	Fingerprints int `json:"fingerprints"`
	Records      int `json:"records"`
}
