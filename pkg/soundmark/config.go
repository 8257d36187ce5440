package soundmark

import (
	"fmt"
	"os"
	"runtime"

	"github.com/himanishpuri/soundmark/internal/fingerprint"
	"github.com/himanishpuri/soundmark/internal/matcher"
	"github.com/himanishpuri/soundmark/internal/storage"
	"github.com/himanishpuri/soundmark/pkg/models"
)

type Config struct {
	DBPath     string
	StoreKind  storage.Kind
	Store      storage.Store
	InMemory   bool
	AutoSave   bool
	TempDir    string
	SampleRate int
	WindowSize int // samples per spectrogram column; zero means one second
	Peaks      fingerprint.PeakOptions
	FanOut     int
	TieBreak   matcher.TieBreak
	Workers    int
	Logger     Logger
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithStoreKind picks the persistence backend opened at DBPath.
func WithStoreKind(kind storage.Kind) Option {
	return func(c *Config) {
		c.StoreKind = kind
	}
}

// WithStore uses an already opened store. The service closes it on Close.
func WithStore(store storage.Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

// WithInMemory disables persistence; Save and Load become no-ops.
func WithInMemory() Option {
	return func(c *Config) {
		c.InMemory = true
	}
}

// WithAutoSave persists the database after every successful mutation.
func WithAutoSave(on bool) Option {
	return func(c *Config) {
		c.AutoSave = on
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithWindowSize(samples int) Option {
	return func(c *Config) {
		c.WindowSize = samples
	}
}

func WithPeakOptions(percentile float64, cutoff int) Option {
	return func(c *Config) {
		c.Peaks = fingerprint.PeakOptions{Percentile: percentile, Cutoff: cutoff}
	}
}

func WithFanOut(n int) Option {
	return func(c *Config) {
		c.FanOut = n
	}
}

func WithTieBreak(tb matcher.TieBreak) Option {
	return func(c *Config) {
		c.TieBreak = tb
	}
}

// WithWorkers bounds the goroutines AddSongs uses for fingerprinting.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:     storage.DefaultSnapshotFile,
		StoreKind:  storage.KindFile,
		TempDir:    os.TempDir(),
		SampleRate: 44100,
		Peaks:      fingerprint.DefaultPeakOptions(),
		FanOut:     fingerprint.DefaultFanOut,
		TieBreak:   matcher.FirstSeen,
		Workers:    runtime.NumCPU(),
	}
}

func (c *Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", models.ErrInvalidInput, c.SampleRate)
	}
	if c.WindowSize == 0 {
		c.WindowSize = c.SampleRate
	}
	if c.WindowSize < 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", models.ErrInvalidInput, c.WindowSize)
	}
	if c.FanOut <= 0 {
		return fmt.Errorf("%w: fan-out must be positive, got %d", models.ErrInvalidInput, c.FanOut)
	}
	if err := c.Peaks.Validate(); err != nil {
		return err
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return nil
}
