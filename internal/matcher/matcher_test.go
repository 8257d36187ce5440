package matcher

import (
	"errors"
	"testing"

	"github.com/himanishpuri/soundmark/internal/database"
	"github.com/himanishpuri/soundmark/pkg/models"
)

var (
	fpA = models.Fingerprint{AnchorFreq: 1, PartnerFreq: 2, Delta: 3}
	fpB = models.Fingerprint{AnchorFreq: 4, PartnerFreq: 5, Delta: 6}
	fpC = models.Fingerprint{AnchorFreq: 7, PartnerFreq: 8, Delta: 9}
	fpD = models.Fingerprint{AnchorFreq: 10, PartnerFreq: 11, Delta: 12}
)

func setupDB(t *testing.T, songs ...[]models.Fingerprint) *database.DB {
	t.Helper()
	db := database.New()
	for i, prints := range songs {
		times := make([]int, len(prints))
		for j := range times {
			times[j] = j + 10
		}
		if _, err := db.AddSong(models.SongInfo{Title: string(rune('A' + i)), Artist: "test"}, prints, times); err != nil {
			t.Fatalf("AddSong failed: %v", err)
		}
	}
	return db
}

// TestMatchAlignedClip tests that a clip cut from a stored song votes for that
// song at a consistent offset.
func TestMatchAlignedClip(t *testing.T) {
	db := setupDB(t,
		[]models.Fingerprint{fpD, fpD, fpD},
		[]models.Fingerprint{fpA, fpB, fpC},
	)

	// Song 1 stores fpA@10, fpB@11, fpC@12. The clip starts 10 columns later.
	res, ok, err := New(FirstSeen).Match(db, []models.Fingerprint{fpA, fpB, fpC}, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected a match")
	}
	if res.SongID != 1 || res.Offset != 10 || res.Votes != 3 {
		t.Errorf("Expected Song1 offset 10 with 3 votes, got %+v", res)
	}
	if res.Hits != 3 || res.Queried != 3 {
		t.Errorf("Expected 3 hits of 3 queried, got %d of %d", res.Hits, res.Queried)
	}
}

func TestMatchEveryOccurrenceVotes(t *testing.T) {
	// Song 0 has fpA at 10, 11, 12. Song 1 has fpA once.
	db := setupDB(t,
		[]models.Fingerprint{fpA, fpA, fpA},
		[]models.Fingerprint{fpA},
	)

	res, ok, err := New(FirstSeen).Match(db, []models.Fingerprint{fpA, fpA}, []int{0, 1})
	if err != nil || !ok {
		t.Fatalf("Match failed: ok=%v err=%v", ok, err)
	}
	// Offsets for song 0: {10,11,12} and {9,10,11}; 10 and 11 get two votes,
	// 10 was seen first.
	if res.SongID != 0 || res.Offset != 10 || res.Votes != 2 {
		t.Errorf("Expected Song0 offset 10 with 2 votes, got %+v", res)
	}
	if res.Hits != 8 {
		t.Errorf("Expected 8 hits, got %d", res.Hits)
	}
}

func TestMatchNoHits(t *testing.T) {
	db := setupDB(t, []models.Fingerprint{fpA})

	res, ok, err := New(FirstSeen).Match(db, []models.Fingerprint{fpB}, []int{0})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if ok {
		t.Errorf("Expected no match, got %+v", res)
	}

	_, ok, err = New(FirstSeen).Match(database.New(), nil, nil)
	if err != nil || ok {
		t.Errorf("Expected (false, nil) on empty input, got (%v, %v)", ok, err)
	}
}

func TestMatchMismatchedLengths(t *testing.T) {
	db := setupDB(t, []models.Fingerprint{fpA})
	_, _, err := New(FirstSeen).Match(db, []models.Fingerprint{fpA}, []int{0, 1})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestMatchTieBreak(t *testing.T) {
	// Song 0 stores fpB@10, song 1 stores fpA@10. The query sees fpA first,
	// so song 1 gets the first vote; both end with one vote.
	db := setupDB(t,
		[]models.Fingerprint{fpB},
		[]models.Fingerprint{fpA},
	)
	prints := []models.Fingerprint{fpA, fpB}
	times := []int{0, 0}

	tests := []struct {
		tb   TieBreak
		want models.SongID
	}{
		{FirstSeen, 1},
		{LowestSongID, 0},
	}

	for _, tt := range tests {
		t.Run(tt.tb.String(), func(t *testing.T) {
			res, ok, err := New(tt.tb).Match(db, prints, times)
			if err != nil || !ok {
				t.Fatalf("Match failed: ok=%v err=%v", ok, err)
			}
			if res.SongID != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, res.SongID)
			}
		})
	}
}

func TestRank(t *testing.T) {
	db := setupDB(t,
		[]models.Fingerprint{fpA},
		[]models.Fingerprint{fpA, fpB, fpC},
		[]models.Fingerprint{fpD},
	)

	ranked, err := New(FirstSeen).Rank(db, []models.Fingerprint{fpA, fpB, fpC}, []int{0, 1, 2}, 0)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 candidates, got %v", ranked)
	}
	if ranked[0].SongID != 1 || ranked[0].Votes != 3 {
		t.Errorf("Expected Song1 with 3 votes first, got %+v", ranked[0])
	}
	if ranked[1].SongID != 0 || ranked[1].Votes != 1 {
		t.Errorf("Expected Song0 with 1 vote second, got %+v", ranked[1])
	}

	top, err := New(FirstSeen).Rank(db, []models.Fingerprint{fpA, fpB, fpC}, []int{0, 1, 2}, 1)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(top) != 1 || top[0].SongID != 1 {
		t.Errorf("Expected only Song1, got %v", top)
	}
}

func TestParseTieBreak(t *testing.T) {
	for _, tb := range []TieBreak{FirstSeen, LowestSongID} {
		got, err := ParseTieBreak(tb.String())
		if err != nil || got != tb {
			t.Errorf("ParseTieBreak(%q) = %v, %v", tb.String(), got, err)
		}
	}
	if _, err := ParseTieBreak("random"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
