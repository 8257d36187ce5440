package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/himanishpuri/soundmark/pkg/models"
)

const DefaultBadgerDir = "soundmark.badger"

// Key layout:
//
//	m/gen                                                 -> uint64 live generation
//	g/<gen uint64>/s/<position uint32>                    -> JSON SongInfo
//	g/<gen uint64>/f/<anchor int64><partner int64><delta int64> -> varint (song, time) pairs
//
// A save writes a fresh generation and switches m/gen only after the batch is
// flushed, so an interrupted save leaves the previous snapshot readable.
var (
	genKey      = []byte("m/gen")
	genRoot     = []byte("g/")
	songPrefix  = []byte("s/")
	printPrefix = []byte("f/")
)

const flushEvery = 1000

// BadgerStore persists snapshots in a Badger directory.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		dir = DefaultBadgerDir
	}
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func genPrefix(gen uint64) []byte {
	key := make([]byte, len(genRoot)+9)
	copy(key, genRoot)
	binary.BigEndian.PutUint64(key[len(genRoot):], gen)
	key[len(key)-1] = '/'
	return key
}

func withPrefix(gen uint64, prefix []byte, extra int) []byte {
	base := genPrefix(gen)
	key := make([]byte, len(base)+len(prefix), len(base)+len(prefix)+extra)
	copy(key, base)
	copy(key[len(base):], prefix)
	return key
}

func songKey(gen uint64, id int) []byte {
	return binary.BigEndian.AppendUint32(withPrefix(gen, songPrefix, 4), uint32(id))
}

func printKey(gen uint64, fp models.Fingerprint) []byte {
	key := withPrefix(gen, printPrefix, 24)
	key = binary.BigEndian.AppendUint64(key, uint64(int64(fp.AnchorFreq)))
	key = binary.BigEndian.AppendUint64(key, uint64(int64(fp.PartnerFreq)))
	return binary.BigEndian.AppendUint64(key, uint64(int64(fp.Delta)))
}

func parsePrintKey(key []byte) (models.Fingerprint, error) {
	head := len(genRoot) + 9 + len(printPrefix)
	if len(key) != head+24 {
		return models.Fingerprint{}, fmt.Errorf("%w: bad fingerprint key length %d", models.ErrCorruptSnapshot, len(key))
	}
	b := key[head:]
	return models.Fingerprint{
		AnchorFreq:  int(int64(binary.BigEndian.Uint64(b))),
		PartnerFreq: int(int64(binary.BigEndian.Uint64(b[8:]))),
		Delta:       int(int64(binary.BigEndian.Uint64(b[16:]))),
	}, nil
}

// liveGen returns the committed generation; ok is false for an empty store.
func liveGen(txn *badger.Txn) (gen uint64, ok bool, err error) {
	item, err := txn.Get(genKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, false, err
	}
	if len(val) != 8 {
		return 0, false, fmt.Errorf("%w: bad generation value", models.ErrCorruptSnapshot)
	}
	return binary.BigEndian.Uint64(val), true, nil
}

// staleGens lists every stored generation other than keep.
func (s *BadgerStore) staleGens(keep uint64) ([][]byte, error) {
	var stale [][]byte
	seen := map[uint64]bool{keep: true}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = genRoot
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) < len(genRoot)+8 {
				continue
			}
			gen := binary.BigEndian.Uint64(key[len(genRoot):])
			if !seen[gen] {
				seen[gen] = true
				stale = append(stale, genPrefix(gen))
			}
		}
		return nil
	})
	return stale, err
}

func encodeRecords(recs []models.Record) []byte {
	buf := make([]byte, 0, len(recs)*4)
	for _, r := range recs {
		buf = binary.AppendVarint(buf, int64(r.SongID))
		buf = binary.AppendVarint(buf, int64(r.Time))
	}
	return buf
}

func decodeRecords(buf []byte) ([]models.Record, error) {
	var recs []models.Record
	for len(buf) > 0 {
		id, n := binary.Varint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated record", models.ErrCorruptSnapshot)
		}
		buf = buf[n:]
		t, n := binary.Varint(buf)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated record", models.ErrCorruptSnapshot)
		}
		buf = buf[n:]
		recs = append(recs, models.Record{SongID: models.SongID(id), Time: int(t)})
	}
	return recs, nil
}

// Save writes the snapshot as a new generation with a write batch and then
// switches the live generation in one transaction. Older generations are
// dropped afterwards. Until the switch commits, Load keeps returning the
// previous snapshot.
func (s *BadgerStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", models.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var cur uint64
	if err := s.db.View(func(txn *badger.Txn) error {
		gen, _, err := liveGen(txn)
		cur = gen
		return err
	}); err != nil {
		return fmt.Errorf("badger read generation: %w", err)
	}
	next := cur + 1

	// Leftovers of an earlier interrupted save under the same number.
	if err := s.db.DropPrefix(genPrefix(next)); err != nil {
		return fmt.Errorf("badger clear generation: %w", err)
	}

	if err := s.writeGen(ctx, next, snap); err != nil {
		if dropErr := s.db.DropPrefix(genPrefix(next)); dropErr != nil {
			return fmt.Errorf("%w (cleanup: %v)", err, dropErr)
		}
		return err
	}

	val := binary.BigEndian.AppendUint64(nil, next)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(genKey, val)
	}); err != nil {
		return fmt.Errorf("badger commit generation: %w", err)
	}

	stale, err := s.staleGens(next)
	if err != nil {
		return fmt.Errorf("badger list generations: %w", err)
	}
	if len(stale) > 0 {
		if err := s.db.DropPrefix(stale...); err != nil {
			return fmt.Errorf("badger drop old generations: %w", err)
		}
	}
	return nil
}

func (s *BadgerStore) writeGen(ctx context.Context, gen uint64, snap *models.Snapshot) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	count := 0
	set := func(key, val []byte) error {
		if err := wb.Set(key, val); err != nil {
			return err
		}
		count++
		if count%flushEvery == 0 {
			return ctx.Err()
		}
		return nil
	}

	for i, info := range snap.Songs {
		val, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("encoding song %d: %w", i, err)
		}
		if err := set(songKey(gen, i), val); err != nil {
			return err
		}
	}
	for fp, recs := range snap.Prints {
		if err := set(printKey(gen, fp), encodeRecords(recs)); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("badger flush: %w", err)
	}
	return nil
}

// Load returns an empty snapshot when no generation has been committed.
func (s *BadgerStore) Load(ctx context.Context) (*models.Snapshot, error) {
	snap := models.NewSnapshot()

	err := s.db.View(func(txn *badger.Txn) error {
		gen, ok, err := liveGen(txn)
		if err != nil || !ok {
			return err
		}
		songs := withPrefix(gen, songPrefix, 0)
		prints := withPrefix(gen, printPrefix, 0)

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(songs); it.ValidForPrefix(songs); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != len(songs)+4 {
				return fmt.Errorf("%w: bad song key length %d", models.ErrCorruptSnapshot, len(key))
			}
			pos := int(binary.BigEndian.Uint32(key[len(songs):]))
			if pos != len(snap.Songs) {
				return fmt.Errorf("%w: song position %d found at index %d", models.ErrCorruptSnapshot, pos, len(snap.Songs))
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var info models.SongInfo
			if err := json.Unmarshal(val, &info); err != nil {
				return fmt.Errorf("%w: song %d: %v", models.ErrCorruptSnapshot, pos, err)
			}
			snap.Songs = append(snap.Songs, info)
		}

		for it.Seek(prints); it.ValidForPrefix(prints); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			fp, err := parsePrintKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			recs, err := decodeRecords(val)
			if err != nil {
				return err
			}
			snap.Prints[fp] = recs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
