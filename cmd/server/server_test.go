package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/himanishpuri/soundmark/internal/audio"
	"github.com/himanishpuri/soundmark/internal/storage"
	"github.com/himanishpuri/soundmark/pkg/logger"
	"github.com/himanishpuri/soundmark/pkg/models"
	"github.com/himanishpuri/soundmark/pkg/soundmark"
)

const testRate = 8000

func setupServer(t *testing.T, opts ...soundmark.Option) (http.Handler, soundmark.Service) {
	t.Helper()
	quiet := logger.New(logger.Config{Level: logger.FATAL, Output: io.Discard})
	base := []soundmark.Option{
		soundmark.WithInMemory(),
		soundmark.WithSampleRate(testRate),
		soundmark.WithPeakOptions(0, 20),
		soundmark.WithLogger(quiet),
	}
	svc, err := soundmark.NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	s := &Server{
		service: svc,
		config: &ServerConfig{
			TempDir:        t.TempDir(),
			SampleRate:     testRate,
			StoreKind:      "memory",
			AllowedOrigins: []string{"*"},
		},
		log: quiet,
	}
	return s.setupRoutes(), svc
}

// wavBytes encodes one second of seeded noise followed by one second of
// silence as a 16-bit WAV file.
func wavBytes(t *testing.T, seed int64) []byte {
	t.Helper()
	clip := audio.Concat(
		audio.Noise(time.Second, testRate, 0.5, seed),
		audio.Clip{Samples: make([]float64, testRate), SampleRate: testRate},
	)
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := audio.WriteWAVFile(path, clip); err != nil {
		t.Fatalf("WriteWAVFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func uploadRequest(t *testing.T, target, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Invalid JSON %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h, _ := setupServer(t)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["status"]; got != "healthy" {
		t.Errorf("Expected healthy, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestAddListMatchDelete(t *testing.T) {
	h, _ := setupServer(t)
	song := wavBytes(t, 1)

	rec := do(h, uploadRequest(t, "/api/songs", "song.wav", song, map[string]string{"title": "Noise", "artist": "Band"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body)
	}
	added := decode[AddSongResponse](t, rec)
	if added.ID != "Song0" {
		t.Errorf("Expected Song0, got %q", added.ID)
	}

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
	list := decode[ListSongsResponse](t, rec)
	if list.Count != 1 || list.Songs[0].Title != "Noise" {
		t.Errorf("Unexpected listing: %+v", list)
	}

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/songs/Song0", nil))
	if rec.Code != http.StatusOK || decode[SongDTO](t, rec).Artist != "Band" {
		t.Errorf("Expected Song0 by Band, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(h, uploadRequest(t, "/api/match", "query.wav", song, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	matches := decode[MatchResponse](t, rec)
	if matches.Count != 1 || matches.Matches[0].SongID != "Song0" || matches.Matches[0].Offset != 0 {
		t.Errorf("Expected Song0 at offset 0, got %+v", matches)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/songs", strings.NewReader(`{"title":"Noise","artist":"Band"}`))
	rec = do(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(h, uploadRequest(t, "/api/match", "query.wav", song, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	if msg := decode[ErrorResponse](t, rec).Message; msg != models.ErrNoMatch.Error() {
		t.Errorf("Expected %q, got %q", models.ErrNoMatch, msg)
	}
}

func TestMatchTop(t *testing.T) {
	h, _ := setupServer(t)
	for i, title := range []string{"A", "B"} {
		req := uploadRequest(t, "/api/songs", "s.wav", wavBytes(t, int64(10+i)), map[string]string{"title": title, "artist": "Band"})
		if rec := do(h, req); rec.Code != http.StatusCreated {
			t.Fatalf("Add %s failed: %d", title, rec.Code)
		}
	}

	rec := do(h, uploadRequest(t, "/api/match?top=2", "q.wav", wavBytes(t, 11), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	matches := decode[MatchResponse](t, rec)
	if matches.Count == 0 || matches.Matches[0].Title != "B" {
		t.Errorf("Expected B first, got %+v", matches)
	}

	rec = do(h, uploadRequest(t, "/api/match?top=zero", "q.wav", wavBytes(t, 11), nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad top, got %d", rec.Code)
	}
}

func TestMatchFingerprintsAndLookup(t *testing.T) {
	h, svc := setupServer(t)
	clip, err := audio.WAVSource{Data: wavBytes(t, 20), SampleRate: testRate}.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddSong(context.Background(), clip, "Pre", "Computed"); err != nil {
		t.Fatal(err)
	}
	prints, times, err := svc.Fingerprints(context.Background(), clip)
	if err != nil {
		t.Fatal(err)
	}

	var reqBody MatchFingerprintsRequest
	for i, fp := range prints {
		reqBody.Fingerprints = append(reqBody.Fingerprints, FingerprintDTO{
			AnchorFreq: fp.AnchorFreq, PartnerFreq: fp.PartnerFreq, Delta: fp.Delta, Time: times[i],
		})
	}
	body, _ := json.Marshal(reqBody)
	rec := do(h, httptest.NewRequest(http.MethodPost, "/api/match/fingerprints", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if m := decode[MatchResponse](t, rec); m.Matches[0].Title != "Pre" {
		t.Errorf("Expected Pre, got %+v", m)
	}

	body, _ = json.Marshal(prints[0])
	rec = do(h, httptest.NewRequest(http.MethodPost, "/api/fingerprints/lookup", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if lr := decode[LookupResponse](t, rec); lr.Count == 0 || lr.Records[0].SongID != 0 {
		t.Errorf("Unexpected lookup response: %+v", lr)
	}

	body, _ = json.Marshal(models.Fingerprint{AnchorFreq: -1})
	rec = do(h, httptest.NewRequest(http.MethodPost, "/api/fingerprints/lookup", bytes.NewReader(body)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	h, _ := setupServer(t)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"add without title", uploadRequest(t, "/api/songs", "s.wav", wavBytes(t, 1), map[string]string{"artist": "X"}), http.StatusBadRequest},
		{"add invalid wav", uploadRequest(t, "/api/songs", "s.wav", []byte("not audio"), map[string]string{"title": "T", "artist": "X"}), http.StatusBadRequest},
		{"match without file", httptest.NewRequest(http.MethodPost, "/api/match", nil), http.StatusBadRequest},
		{"match wrong method", httptest.NewRequest(http.MethodGet, "/api/match", nil), http.StatusMethodNotAllowed},
		{"delete missing artist", httptest.NewRequest(http.MethodDelete, "/api/songs", strings.NewReader(`{"title":"T"}`)), http.StatusBadRequest},
		{"delete unknown", httptest.NewRequest(http.MethodDelete, "/api/songs", strings.NewReader(`{"title":"T","artist":"X"}`)), http.StatusNotFound},
		{"bad song id", httptest.NewRequest(http.MethodGet, "/api/songs/abc", nil), http.StatusBadRequest},
		{"missing song", httptest.NewRequest(http.MethodGet, "/api/songs/7", nil), http.StatusNotFound},
		{"empty fingerprints", httptest.NewRequest(http.MethodPost, "/api/match/fingerprints", strings.NewReader(`{"fingerprints":[]}`)), http.StatusBadRequest},
		{"negative delta", httptest.NewRequest(http.MethodPost, "/api/match/fingerprints", strings.NewReader(`{"fingerprints":[{"delta":-1}]}`)), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(h, tt.req); rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	handler := corsMiddleware([]string{"https://a.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/songs", nil)
	req.Header.Set("Origin", "https://a.example")
	rec := do(handler, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected preflight 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://a.example" {
		t.Error("Expected origin to be echoed")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://b.example")
	rec = do(handler, req)
	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("Unexpected response for disallowed origin: %d %v", rec.Code, rec.Header())
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if ip := getClientIP(req); ip != "10.0.0.1" {
		t.Errorf("Expected 10.0.0.1, got %s", ip)
	}
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if ip := getClientIP(req); ip != "1.2.3.4" {
		t.Errorf("Expected 1.2.3.4, got %s", ip)
	}
}

// brokenStore loads an empty database and fails every save.
type brokenStore struct{}

func (brokenStore) Save(context.Context, *models.Snapshot) error { return errors.New("disk full") }
func (brokenStore) Load(context.Context) (*models.Snapshot, error) {
	return models.NewSnapshot(), nil
}
func (brokenStore) Close() error { return nil }

var _ storage.Store = brokenStore{}

// TestMutationsSurviveSaveFailure checks that a failed auto-save is reported
// as a warning on a successful response, so clients do not retry.
func TestMutationsSurviveSaveFailure(t *testing.T) {
	h, svc := setupServer(t,
		func(c *soundmark.Config) { c.InMemory = false },
		soundmark.WithStore(brokenStore{}),
		soundmark.WithAutoSave(true),
	)

	rec := do(h, uploadRequest(t, "/api/songs", "song.wav", wavBytes(t, 7), map[string]string{"title": "Noise", "artist": "Band"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body)
	}
	added := decode[AddSongResponse](t, rec)
	if added.ID != "Song0" || added.Warning == "" {
		t.Errorf("Expected Song0 with a warning, got %+v", added)
	}
	if n := len(svc.ListSongs()); n != 1 {
		t.Fatalf("Expected 1 song, got %d", n)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/songs", strings.NewReader(`{"title":"Noise","artist":"Band"}`))
	rec = do(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if deleted := decode[DeleteSongResponse](t, rec); deleted.Warning == "" {
		t.Errorf("Expected a warning, got %+v", deleted)
	}
	if n := len(svc.ListSongs()); n != 0 {
		t.Errorf("Expected the delete to stand, got %d songs", n)
	}
}
