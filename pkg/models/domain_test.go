package models

import (
	"errors"
	"testing"
)

func TestSongIDString(t *testing.T) {
	tests := []struct {
		id       SongID
		expected string
	}{
		{0, "Song0"},
		{7, "Song7"},
		{123, "Song123"},
	}

	for _, tt := range tests {
		if got := tt.id.String(); got != tt.expected {
			t.Errorf("SongID(%d).String() = %q, expected %q", int(tt.id), got, tt.expected)
		}
	}
}

func TestParseSongID(t *testing.T) {
	tests := []struct {
		in      string
		want    SongID
		wantErr bool
	}{
		{"Song0", 0, false},
		{"Song12", 12, false},
		{"4", 4, false},
		{" Song3 ", 3, false},
		{"Song-1", 0, true},
		{"track", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSongID(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ParseSongID(%q) error = %v, expected ErrInvalidInput", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSongID(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSongID(%q) = %d, expected %d", tt.in, got, tt.want)
		}
	}
}

func TestSnapshotEqual(t *testing.T) {
	fp := Fingerprint{AnchorFreq: 1, PartnerFreq: 2, Delta: 3}
	a := NewSnapshot()
	a.Songs = append(a.Songs, SongInfo{Title: "A4", Artist: "Test"})
	a.Prints[fp] = []Record{{SongID: 0, Time: 0}, {SongID: 0, Time: 1}}

	b := NewSnapshot()
	b.Songs = append(b.Songs, SongInfo{Title: "A4", Artist: "Test"})
	b.Prints[fp] = []Record{{SongID: 0, Time: 0}, {SongID: 0, Time: 1}}

	if !a.Equal(b) {
		t.Fatal("Expected identical snapshots to be equal")
	}

	// Order within an occurrence list matters.
	b.Prints[fp] = []Record{{SongID: 0, Time: 1}, {SongID: 0, Time: 0}}
	if a.Equal(b) {
		t.Error("Expected snapshots with reordered records to differ")
	}

	if a.RecordCount() != 2 {
		t.Errorf("Expected 2 records, got %d", a.RecordCount())
	}
}
