package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/soundmark/internal/audio"
	"github.com/himanishpuri/soundmark/pkg/logger"
	"github.com/himanishpuri/soundmark/pkg/models"
	"github.com/himanishpuri/soundmark/pkg/soundmark"
	"github.com/himanishpuri/soundmark/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service soundmark.Service
	config  *ServerConfig
	log     soundmark.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	StoreKind      string
	TempDir        string
	SampleRate     int
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service soundmark.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNoMatch):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPersist):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "Soundmark API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":            "GET /health",
			"metrics":           "GET /api/health/metrics",
			"songs":             "GET /api/songs",
			"addSong":           "POST /api/songs",
			"deleteSong":        "DELETE /api/songs",
			"getSong":           "GET /api/songs/{id}",
			"matchFile":         "POST /api/match",
			"matchFingerprints": "POST /api/match/fingerprints",
			"lookup":            "POST /api/fingerprints/lookup",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	st := s.service.Stats()
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:           "healthy",
		DatabasePath:     s.config.DBPath,
		Store:            s.config.StoreKind,
		SongCount:        st.Songs,
		FingerprintCount: st.Fingerprints,
		RecordCount:      st.Records,
		SampleRate:       s.config.SampleRate,
	})
}

// handleListSongs handles GET /api/songs
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs := s.service.ListSongs()
	dtos := make([]SongDTO, len(songs))
	for i, song := range songs {
		dtos[i] = toSongDTO(song)
	}
	s.respondJSON(w, http.StatusOK, ListSongsResponse{
		Songs: dtos,
		Count: len(dtos),
	})
}

// handleGetSong handles GET /api/songs/{id}
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request, songID models.SongID) {
	song, err := s.service.GetSong(songID)
	if err != nil {
		s.log.Warnf("Song not found: %s", songID)
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song with ID %s not found", songID))
		return
	}
	s.respondJSON(w, http.StatusOK, toSongDTO(*song))
}

// handleDeleteSong handles DELETE /api/songs. The body names the song by
// title and artist; the first match is removed and later ids shift down.
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	var req DeleteSongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var warning string
	id, err := s.service.DeleteSong(r.Context(), req.Title, req.Artist)
	if errors.Is(err, models.ErrPersist) {
		s.log.Warnf("Deleted %s but could not persist: %v", id, err)
		warning, err = err.Error(), nil
	}
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.log.Errorf("Failed to delete song %q by %q: %v", req.Title, req.Artist, err)
		}
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.log.Infof("Deleted song: %s by %s (ID: %s)", req.Title, req.Artist, id)
	s.respondJSON(w, http.StatusOK, DeleteSongResponse{
		Message: "Song deleted successfully",
		ID:      id.String(),
		Warning: warning,
	})
}

// readUpload decodes the multipart "audio" field. PCM WAV uploads are decoded
// in memory; anything else goes through a temporary file and ffmpeg.
func (s *Server) readUpload(ctx context.Context, r *http.Request, maxBytes int64) (audio.Clip, string, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return audio.Clip{}, "", fmt.Errorf("%w: failed to parse form data: %v", models.ErrInvalidInput, err)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return audio.Clip{}, "", fmt.Errorf("%w: audio file is required", models.ErrInvalidInput)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(header.Filename), ".wav") {
		data, err := io.ReadAll(file)
		if err != nil {
			return audio.Clip{}, "", fmt.Errorf("failed to read upload: %w", err)
		}
		clip, err := audio.WAVSource{Data: data, SampleRate: s.config.SampleRate}.Load(ctx)
		if err != nil {
			return audio.Clip{}, "", err
		}
		return clip, header.Filename, nil
	}

	tempFile := utils.TempName(s.config.TempDir, "upload_"+header.Filename, filepath.Ext(header.Filename))
	out, err := os.Create(tempFile)
	if err != nil {
		return audio.Clip{}, "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer utils.DeleteFile(tempFile)

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return audio.Clip{}, "", fmt.Errorf("failed to save uploaded file: %w", err)
	}
	if err := out.Close(); err != nil {
		return audio.Clip{}, "", err
	}

	clip, err := audio.FileSource{Path: tempFile, TempDir: s.config.TempDir, SampleRate: s.config.SampleRate}.Load(ctx)
	if err != nil {
		return audio.Clip{}, "", err
	}
	return clip, header.Filename, nil
}

// handleAddSong handles POST /api/songs (multipart file upload)
func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	clip, name, err := s.readUpload(ctx, r, 100<<20)
	if err != nil {
		s.log.Errorf("Failed to read upload: %v", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	title := r.FormValue("title")
	artist := r.FormValue("artist")
	if title == "" || artist == "" {
		s.respondError(w, http.StatusBadRequest, "title and artist are required")
		return
	}

	s.log.Infof("Adding song from upload %s: %s by %s", name, title, artist)
	var warning string
	songID, err := s.service.AddSong(ctx, clip, title, artist)
	if errors.Is(err, models.ErrPersist) {
		s.log.Warnf("Added %s but could not persist: %v", songID, err)
		warning, err = err.Error(), nil
	}
	if err != nil {
		s.log.Errorf("Failed to add song: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to add song: %v", err))
		return
	}

	s.respondJSON(w, http.StatusCreated, AddSongResponse{
		Message: "Song added successfully",
		ID:      songID.String(),
		Title:   title,
		Artist:  artist,
		Warning: warning,
	})
}

// handleMatchFile handles POST /api/match (multipart file upload). The
// optional "top" query parameter returns a ranking instead of one winner.
func (s *Server) handleMatchFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	top := 1
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		top = n
	}

	clip, name, err := s.readUpload(ctx, r, 50<<20)
	if err != nil {
		s.log.Errorf("Failed to read upload: %v", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.log.Infof("Matching uploaded file: %s", name)

	var matches []models.MatchResult
	if top > 1 {
		matches, err = s.service.Rank(ctx, clip, top)
	} else {
		var res *models.MatchResult
		res, err = s.service.Identify(ctx, clip)
		if err == nil && res.Found {
			matches = []models.MatchResult{*res}
		}
	}
	if err != nil {
		s.log.Errorf("Failed to match song: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match song: %v", err))
		return
	}
	s.respondMatches(w, matches)
}

func (s *Server) respondMatches(w http.ResponseWriter, matches []models.MatchResult) {
	if len(matches) == 0 {
		s.respondError(w, statusFor(models.ErrNoMatch), models.ErrNoMatch.Error())
		return
	}
	dtos := make([]MatchResultDTO, len(matches))
	for i, m := range matches {
		dtos[i] = toMatchDTO(m)
	}
	s.log.Infof("Match complete: found %d matches", len(dtos))
	s.respondJSON(w, http.StatusOK, MatchResponse{
		Matches: dtos,
		Count:   len(dtos),
	})
}

// handleMatchFingerprints handles POST /api/match/fingerprints for clients
// that compute fingerprints themselves.
func (s *Server) handleMatchFingerprints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req MatchFingerprintsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Fingerprints) > MaxFingerprintsSoftLimit {
		s.log.Warnf("Large fingerprint batch received: %d", len(req.Fingerprints))
	}

	prints, times := req.Split()
	res, err := s.service.IdentifyFingerprints(ctx, prints, times)
	if err != nil {
		s.log.Errorf("Failed to match fingerprints: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match fingerprints: %v", err))
		return
	}
	if !res.Found {
		s.respondMatches(w, nil)
		return
	}
	s.respondMatches(w, []models.MatchResult{*res})
}

// handleLookup handles POST /api/fingerprints/lookup
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var fp models.Fingerprint
	if err := json.NewDecoder(r.Body).Decode(&fp); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	recs, ok := s.service.Lookup(fp)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("fingerprint %+v not found", fp))
		return
	}
	s.respondJSON(w, http.StatusOK, LookupResponse{Fingerprint: fp, Records: recs, Count: len(recs)})
}

// handleSongs routes requests to /api/songs
func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSongs(w, r)
	case http.MethodPost:
		s.handleAddSong(w, r)
	case http.MethodDelete:
		s.handleDeleteSong(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleSong routes requests to /api/songs/{id}
func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/songs/")
	if idStr == "" {
		s.respondError(w, http.StatusBadRequest, "Song ID required")
		return
	}

	id, err := models.ParseSongID(idStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid song ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSong(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMatch routes requests to /api/match
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFile(w, r)
}

// handleMatchFingerprintsRoute routes requests to /api/match/fingerprints
func (s *Server) handleMatchFingerprintsRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFingerprints(w, r)
}

// handleLookupRoute routes requests to /api/fingerprints/lookup
func (s *Server) handleLookupRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleLookup(w, r)
}
