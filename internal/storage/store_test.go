package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/himanishpuri/soundmark/pkg/models"
)

// sampleSnapshot returns two songs sharing one fingerprint, with a
// multi-occurrence list whose order must survive a round trip.
func sampleSnapshot() *models.Snapshot {
	snap := models.NewSnapshot()
	snap.Songs = append(snap.Songs,
		models.SongInfo{Title: "Sandstorm", Artist: "Darude"},
		models.SongInfo{Title: "A4", Artist: "Test"},
	)
	snap.Prints[models.Fingerprint{AnchorFreq: 440, PartnerFreq: 440, Delta: 1}] = []models.Record{
		{SongID: 1, Time: 3},
		{SongID: 0, Time: 0},
		{SongID: 1, Time: 0},
	}
	snap.Prints[models.Fingerprint{AnchorFreq: 12, PartnerFreq: 900, Delta: 0}] = []models.Record{
		{SongID: 0, Time: 7},
	}
	return snap
}

func roundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	want := sampleSnapshot()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !want.Equal(got) {
		t.Errorf("Loaded snapshot differs:\nwant %+v\ngot  %+v", want, got)
	}

	// A second save replaces the first.
	smaller := models.NewSnapshot()
	smaller.Songs = append(smaller.Songs, models.SongInfo{Title: "Only", Artist: "One"})
	if err := store.Save(ctx, smaller); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if !smaller.Equal(got) {
		t.Errorf("Expected replaced snapshot %+v, got %+v", smaller, got)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "db.snap"))
	t.Cleanup(func() { store.Close() })
	roundTrip(t, store)
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.snap"))
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(snap.Songs) != 0 || len(snap.Prints) != 0 {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "db.snap"))
	if err := store.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "db.snap" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only db.snap, got %v", names)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	roundTrip(t, store)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("openBadger failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	roundTrip(t, store)
}

func TestBadgerStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore failed: %v", err)
	}
	if err := store.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !sampleSnapshot().Equal(got) {
		t.Errorf("Reopened snapshot differs: %+v", got)
	}
}

// cancelAfter reports cancellation once Err has been called more than calls
// times.
type cancelAfter struct {
	context.Context
	calls int
}

func (c *cancelAfter) Err() error {
	if c.calls <= 0 {
		return context.Canceled
	}
	c.calls--
	return nil
}

// TestBadgerStoreCancelledSaveKeepsSnapshot checks that a save aborted by its
// context leaves the previously committed snapshot intact.
func TestBadgerStoreCancelledSaveKeepsSnapshot(t *testing.T) {
	store, err := openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("openBadger failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	big := models.NewSnapshot()
	for i := 0; i < 2*flushEvery; i++ {
		big.Songs = append(big.Songs, models.SongInfo{Title: "Song", Artist: "Band"})
		big.Prints[models.Fingerprint{AnchorFreq: i, PartnerFreq: i + 1, Delta: 1}] = []models.Record{{SongID: models.SongID(i), Time: 0}}
	}
	if err := store.Save(context.Background(), big); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Save(cancelled, sampleSnapshot()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	// Cancel partway through the batch rather than before it starts.
	partial := &cancelAfter{Context: context.Background(), calls: 1}
	if err := store.Save(partial, big); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled mid-batch, got %v", err)
	}

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !big.Equal(got) {
		t.Errorf("Expected the committed snapshot to survive, got %d songs and %d fingerprints", len(got.Songs), len(got.Prints))
	}

	// A later save still replaces it and old generations are gone.
	if err := store.Save(context.Background(), sampleSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	stale, err := store.staleGens(2)
	if err != nil {
		t.Fatalf("staleGens failed: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("Expected no stale generations, got %d", len(stale))
	}
	got, err = store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !sampleSnapshot().Equal(got) {
		t.Errorf("Expected the sample snapshot, got %+v", got)
	}
}

func TestPrintKeyRoundTrip(t *testing.T) {
	fp := models.Fingerprint{AnchorFreq: 22050, PartnerFreq: 0, Delta: 123}
	got, err := parsePrintKey(printKey(7, fp))
	if err != nil {
		t.Fatalf("parsePrintKey failed: %v", err)
	}
	if got != fp {
		t.Errorf("Expected %v, got %v", fp, got)
	}
	if _, err := parsePrintKey([]byte("f/short")); !errors.Is(err, models.ErrCorruptSnapshot) {
		t.Errorf("Expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	good := buf.Bytes()

	flipped := append([]byte(nil), good...)
	flipped[len(flipped)-1] ^= 0xff

	badVersion := append([]byte(nil), good...)
	badVersion[len(magic)] = 99

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", append([]byte("NOPE"), good[4:]...)},
		{"bad version", badVersion},
		{"flipped payload byte", flipped},
		{"truncated", good[:headerSize+3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(bytes.NewReader(tt.data)); !errors.Is(err, models.ErrCorruptSnapshot) {
				t.Errorf("Expected ErrCorruptSnapshot, got %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"", KindFile},
		{"file", KindFile},
		{"SQLite", KindSQLite},
		{" badger ", KindBadger},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %q, %v; expected %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseKind("mongo"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	tests := map[Kind]string{
		KindFile:   DefaultSnapshotFile,
		KindSQLite: DefaultDBFile,
		KindBadger: DefaultBadgerDir,
	}
	for kind, want := range tests {
		if got := DefaultPath(kind); got != want {
			t.Errorf("DefaultPath(%s) = %q, expected %q", kind, got, want)
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, kind := range []Kind{KindFile, KindSQLite, KindBadger} {
		store, err := Open(kind, filepath.Join(dir, string(kind)))
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", kind, err)
		}
		roundTrip(t, store)
		store.Close()
	}
}
