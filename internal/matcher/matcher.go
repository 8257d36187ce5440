// Package matcher identifies a query clip by voting on time offsets: every
// stored occurrence of a query fingerprint casts one vote for
// (song, stored time - query time), and the pair with the most votes wins.
package matcher

import (
	"fmt"
	"sort"

	"github.com/himanishpuri/soundmark/internal/database"
	"github.com/himanishpuri/soundmark/pkg/models"
)

// TieBreak selects the winner among (song, offset) pairs with equal votes.
type TieBreak int

const (
	// FirstSeen prefers the pair that received its first vote earliest.
	FirstSeen TieBreak = iota
	// LowestSongID prefers the smaller song id, then the smaller offset.
	LowestSongID
)

func (tb TieBreak) String() string {
	switch tb {
	case FirstSeen:
		return "first-seen"
	case LowestSongID:
		return "lowest-id"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(tb))
	}
}

// ParseTieBreak accepts the names returned by String.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "first-seen":
		return FirstSeen, nil
	case "lowest-id":
		return LowestSongID, nil
	}
	return FirstSeen, fmt.Errorf("%w: unknown tie-break %q", models.ErrInvalidInput, s)
}

// Candidate is one (song, offset) pair and its vote count.
type Candidate struct {
	SongID models.SongID
	Offset int // stored anchor time minus query anchor time, in columns
	Votes  int
}

// Result is the best candidate plus the query-wide tallies.
type Result struct {
	Candidate
	Hits    int // stored occurrences that matched a query fingerprint
	Queried int // number of query fingerprints
}

// Matcher is stateless apart from its tie-break policy.
type Matcher struct {
	tieBreak TieBreak
}

// New returns a matcher using the given tie-break policy.
func New(tb TieBreak) *Matcher {
	return &Matcher{tieBreak: tb}
}

// TieBreak reports the configured policy.
func (m *Matcher) TieBreak() TieBreak { return m.tieBreak }

type key struct {
	song   models.SongID
	offset int
}

// tally accumulates votes and remembers first-vote order.
type tally struct {
	votes map[key]int
	order []key
	hits  int
}

func count(v database.View, prints []models.Fingerprint, times []int) (*tally, error) {
	if len(prints) != len(times) {
		return nil, fmt.Errorf("%w: %d fingerprints but %d times", models.ErrInvalidInput, len(prints), len(times))
	}

	t := &tally{votes: make(map[key]int)}
	for i, fp := range prints {
		for _, r := range v.Lookup(fp) {
			k := key{song: r.SongID, offset: r.Time - times[i]}
			if _, seen := t.votes[k]; !seen {
				t.order = append(t.order, k)
			}
			t.votes[k]++
			t.hits++
		}
	}
	return t, nil
}

// better reports whether a beats b under the tie-break policy. ia and ib are
// the keys' first-seen positions in the same tally.
func (m *Matcher) better(a, b key, va, vb, ia, ib int) bool {
	if va != vb {
		return va > vb
	}
	if m.tieBreak == LowestSongID {
		if a.song != b.song {
			return a.song < b.song
		}
		return a.offset < b.offset
	}
	return ia < ib
}

// Match returns the (song, offset) pair with the most votes. ok is false when
// no query fingerprint occurs in the database.
func (m *Matcher) Match(db *database.DB, prints []models.Fingerprint, times []int) (res Result, ok bool, err error) {
	db.Read(func(v database.View) {
		res, ok, err = m.MatchView(v, prints, times)
	})
	return res, ok, err
}

// MatchView is Match against a view the caller already holds.
func (m *Matcher) MatchView(v database.View, prints []models.Fingerprint, times []int) (Result, bool, error) {
	t, err := count(v, prints, times)
	if err != nil {
		return Result{}, false, err
	}
	if len(t.order) == 0 {
		return Result{Queried: len(prints)}, false, nil
	}

	best, bestIdx := t.order[0], 0
	for i, k := range t.order[1:] {
		if m.better(k, best, t.votes[k], t.votes[best], i+1, bestIdx) {
			best, bestIdx = k, i+1
		}
	}

	return Result{
		Candidate: Candidate{SongID: best.song, Offset: best.offset, Votes: t.votes[best]},
		Hits:      t.hits,
		Queried:   len(prints),
	}, true, nil
}

// Rank returns each song's best offset, ordered by votes with the same
// tie-break as Match. limit <= 0 returns every song.
func (m *Matcher) Rank(db *database.DB, prints []models.Fingerprint, times []int, limit int) (out []Candidate, err error) {
	db.Read(func(v database.View) {
		out, err = m.RankView(v, prints, times, limit)
	})
	return out, err
}

// RankView is Rank against a view the caller already holds.
func (m *Matcher) RankView(v database.View, prints []models.Fingerprint, times []int, limit int) ([]Candidate, error) {
	t, err := count(v, prints, times)
	if err != nil {
		return nil, err
	}

	type entry struct {
		k   key
		idx int
	}
	perSong := make(map[models.SongID]entry)
	var songs []models.SongID
	for i, k := range t.order {
		cur, ok := perSong[k.song]
		if !ok {
			songs = append(songs, k.song)
			perSong[k.song] = entry{k: k, idx: i}
			continue
		}
		if m.better(k, cur.k, t.votes[k], t.votes[cur.k], i, cur.idx) {
			perSong[k.song] = entry{k: k, idx: i}
		}
	}

	sort.SliceStable(songs, func(i, j int) bool {
		a, b := perSong[songs[i]], perSong[songs[j]]
		return m.better(a.k, b.k, t.votes[a.k], t.votes[b.k], a.idx, b.idx)
	})
	if limit > 0 && len(songs) > limit {
		songs = songs[:limit]
	}

	out := make([]Candidate, len(songs))
	for i, id := range songs {
		k := perSong[id].k
		out[i] = Candidate{SongID: id, Offset: k.offset, Votes: t.votes[k]}
	}
	return out, nil
}
