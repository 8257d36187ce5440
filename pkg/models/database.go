package models

// Fingerprint is the (anchor frequency bin, partner frequency bin, column delta)
// triple derived from a pair of spectrogram peaks. Identical triples from
// different songs or times are expected.
type Fingerprint struct {
	AnchorFreq  int `json:"anchor_freq"`
	PartnerFreq int `json:"partner_freq"`
	Delta       int `json:"delta"`
}

// Record is one stored occurrence of a fingerprint.
type Record struct {
	SongID SongID `json:"song_id"`
	Time   int    `json:"time"` // anchor column in the enrolled song
}

// Snapshot is the persistable form of the fingerprint database: song
// metadata indexed by SongID plus every fingerprint's ordered occurrence list.
type Snapshot struct {
	Songs  []SongInfo
	Prints map[Fingerprint][]Record
}

// NewSnapshot returns an empty, non-nil snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Songs:  []SongInfo{},
		Prints: make(map[Fingerprint][]Record),
	}
}

// RecordCount is the total number of occurrences across all fingerprints.
func (s *Snapshot) RecordCount() int {
	n := 0
	for _, recs := range s.Prints {
		n += len(recs)
	}
	return n
}

// Equal reports whether both snapshots hold the same songs in the same order
// and the same fingerprints with identical occurrence lists.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Songs) != len(o.Songs) || len(s.Prints) != len(o.Prints) {
		return false
	}
	for i := range s.Songs {
		if s.Songs[i] != o.Songs[i] {
			return false
		}
	}
	for fp, recs := range s.Prints {
		other, ok := o.Prints[fp]
		if !ok || len(other) != len(recs) {
			return false
		}
		for i := range recs {
			if recs[i] != other[i] {
				return false
			}
		}
	}
	return true
}
