package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	xxhash "github.com/OneOfOne/xxhash"
	"github.com/himanishpuri/soundmark/pkg/models"
)

// Snapshot files are "SMRK", a format version byte, the xxhash64 of the
// payload and then the gob-encoded snapshot.
var magic = [4]byte{'S', 'M', 'R', 'K'}

const (
	formatVersion = 1
	headerSize    = len(magic) + 1 + 8
)

// Encode writes snap to w in the snapshot file format.
func Encode(w io.Writer, snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", models.ErrInvalidInput)
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	header := make([]byte, headerSize)
	copy(header, magic[:])
	header[len(magic)] = formatVersion
	binary.BigEndian.PutUint64(header[len(magic)+1:], xxhash.Checksum64(payload.Bytes()))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	if _, err := w.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("failed to write snapshot payload: %w", err)
	}
	return nil
}

// Decode reads a snapshot written by Encode. Structural validation of the
// result is left to the database.
func Decode(r io.Reader) (*models.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) < headerSize || !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: missing header", models.ErrCorruptSnapshot)
	}
	if v := data[len(magic)]; v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", models.ErrCorruptSnapshot, v)
	}

	payload := data[headerSize:]
	want := binary.BigEndian.Uint64(data[len(magic)+1 : headerSize])
	if got := xxhash.Checksum64(payload); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (%016x != %016x)", models.ErrCorruptSnapshot, got, want)
	}

	snap := models.NewSnapshot()
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(snap); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCorruptSnapshot, err)
	}
	if snap.Songs == nil {
		snap.Songs = []models.SongInfo{}
	}
	if snap.Prints == nil {
		snap.Prints = make(map[models.Fingerprint][]models.Record)
	}
	return snap, nil
}
