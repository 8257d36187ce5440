package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/soundmark/pkg/models"
	"github.com/himanishpuri/soundmark/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultDBFile = "soundmark.sqlite3"
	insertBatch   = 500
)

// songRow is one song, Position being its SongID.
type songRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Position  int    `gorm:"uniqueIndex:idx_song_position"`
	Title     string `gorm:"index:idx_song_meta,priority:1"`
	Artist    string `gorm:"index:idx_song_meta,priority:2"`
	CreatedAt time.Time
}

func (songRow) TableName() string { return "songs" }

// recordRow is one fingerprint occurrence. Position preserves list order.
type recordRow struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	AnchorFreq  int  `gorm:"index:idx_fingerprint,priority:1"`
	PartnerFreq int  `gorm:"index:idx_fingerprint,priority:2"`
	Delta       int  `gorm:"index:idx_fingerprint,priority:3"`
	Position    int
	SongID      int `gorm:"index:idx_record_song"`
	Time        int
}

func (recordRow) TableName() string { return "records" }

// SQLiteStore persists snapshots in two tables through GORM.
type SQLiteStore struct {
	DB *gorm.DB
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := utils.MakeDir(dir); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&songRow{}, &recordRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteStore{DB: db, db: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces both tables inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", models.ErrInvalidInput)
	}

	songs := make([]songRow, len(snap.Songs))
	for i, info := range snap.Songs {
		songs[i] = songRow{Position: i, Title: info.Title, Artist: info.Artist}
	}
	records := make([]recordRow, 0, snap.RecordCount())
	for fp, recs := range snap.Prints {
		for i, r := range recs {
			records = append(records, recordRow{
				AnchorFreq:  fp.AnchorFreq,
				PartnerFreq: fp.PartnerFreq,
				Delta:       fp.Delta,
				Position:    i,
				SongID:      int(r.SongID),
				Time:        r.Time,
			})
		}
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&recordRow{}).Error; err != nil {
			return fmt.Errorf("clearing records: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&songRow{}).Error; err != nil {
			return fmt.Errorf("clearing songs: %w", err)
		}
		if len(songs) > 0 {
			if err := tx.CreateInBatches(songs, insertBatch).Error; err != nil {
				return fmt.Errorf("inserting songs: %w", err)
			}
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, insertBatch).Error; err != nil {
				return fmt.Errorf("inserting records: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Load(ctx context.Context) (*models.Snapshot, error) {
	var songs []songRow
	if err := s.DB.WithContext(ctx).Order("position").Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("loading songs: %w", err)
	}

	snap := models.NewSnapshot()
	for i, row := range songs {
		if row.Position != i {
			return nil, fmt.Errorf("%w: song position %d found at index %d", models.ErrCorruptSnapshot, row.Position, i)
		}
		snap.Songs = append(snap.Songs, models.SongInfo{Title: row.Title, Artist: row.Artist})
	}

	rows, err := s.DB.WithContext(ctx).Model(&recordRow{}).
		Order("anchor_freq, partner_freq, delta, position").Rows()
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r recordRow
		if err := s.DB.ScanRows(rows, &r); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		fp := models.Fingerprint{AnchorFreq: r.AnchorFreq, PartnerFreq: r.PartnerFreq, Delta: r.Delta}
		snap.Prints[fp] = append(snap.Prints[fp], models.Record{SongID: models.SongID(r.SongID), Time: r.Time})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return snap, nil
}
