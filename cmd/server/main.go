package main

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/soundmark/internal/matcher"
	"github.com/himanishpuri/soundmark/internal/storage"
	"github.com/himanishpuri/soundmark/pkg/logger"
	"github.com/himanishpuri/soundmark/pkg/soundmark"
)

var (
	port           int
	dbPath         string
	storeKind      string
	tempDir        string
	sampleRate     int
	tieBreak       string
	allowedOrigins string
)

func registerFlags() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", os.Getenv("SOUNDMARK_DB_PATH"), "Path to the fingerprint database (default depends on --store)")
	flag.StringVar(&storeKind, "store", getEnvOrDefault("SOUNDMARK_STORE", string(storage.KindFile)), "Database backend: file, sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SOUNDMARK_TEMP_DIR", os.TempDir()), "Temporary directory")
	flag.IntVar(&sampleRate, "rate", 44100, "Audio sample rate")
	flag.StringVar(&tieBreak, "tie-break", "first-seen", "Winner among equal votes: first-seen or lowest-id")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("SOUNDMARK_ALLOWED_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()

	registerFlags()
	flag.Parse()

	log := logger.GetLogger()

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	kind, err := storage.ParseKind(storeKind)
	if err != nil {
		log.Fatalf("Invalid store: %v", err)
	}
	tb, err := matcher.ParseTieBreak(tieBreak)
	if err != nil {
		log.Fatalf("Invalid tie-break: %v", err)
	}
	if dbPath == "" {
		dbPath = storage.DefaultPath(kind)
	}

	service, err := soundmark.NewService(
		soundmark.WithDBPath(dbPath),
		soundmark.WithStoreKind(kind),
		soundmark.WithAutoSave(true),
		soundmark.WithTempDir(tempDir),
		soundmark.WithSampleRate(sampleRate),
		soundmark.WithTieBreak(tb),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		StoreKind:      string(kind),
		TempDir:        tempDir,
		SampleRate:     sampleRate,
		AllowedOrigins: origins,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Errorf("Server failed: %v", err)
	}
}
