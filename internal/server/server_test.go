package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/mzmml-go"
	"github.com/cbegin/mzmml-go/internal/qdc"
)

type fakePlayer struct {
	mu     sync.Mutex
	played []*mzmml.Song
	stops  int
}

func (f *fakePlayer) Play(song *mzmml.Song) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, song)
	return nil
}

func (f *fakePlayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakePlayer) CurrentHighlights() []mzmml.Highlight {
	return []mzmml.Highlight{{SourceOffset: 2, SourceLength: 1}}
}

func (f *fakePlayer) plays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestParseReportsDiagnostics(t *testing.T) {
	assert := assert.New(t)
	h := New(&fakePlayer{}).Handler()

	rec := post(t, h, "/parse", map[string]string{"mml": "A c d ]\nE e"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res parseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal([]string{"A", "E"}, res.Tracks)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(6, res.Diagnostics[0].Offset)
	assert.NotEmpty(res.Diagnostics[0].Message)
}

func TestCompileReturnsPrograms(t *testing.T) {
	assert := assert.New(t)
	h := New(&fakePlayer{}).Handler()

	rec := post(t, h, "/compile", map[string]string{"mml": "A t120 c4\nP L e4"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res compileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Channels, 2)
	assert.Equal("A", res.Channels[0].Name)
	assert.False(res.Channels[0].Loops)
	assert.True(res.Channels[1].Loops)
	assert.Contains(res.Channels[0].Disassembly, "TONE")
	assert.Equal(byte(0xFF), res.Channels[0].Program[len(res.Channels[0].Program)-1])
	assert.InDelta(500, res.DurationMs, 1e-9)
}

func TestCompileWithoutTracks(t *testing.T) {
	h := New(&fakePlayer{}).Handler()
	rec := post(t, h, "/compile", map[string]string{"mml": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestBadRequestBody(t *testing.T) {
	h := New(&fakePlayer{}).Handler()
	req := httptest.NewRequest(http.MethodPost, "/compile", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiskImage(t *testing.T) {
	assert := assert.New(t)
	h := New(&fakePlayer{}).Handler()

	rec := post(t, h, "/qdc", map[string]string{"mml": "cdefg", "name": "TUNE"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal("application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(rec.Header().Get("Content-Disposition"), "TUNE.qdc")
	assert.Equal(qdc.FileSize, rec.Body.Len())

	rec = post(t, h, "/qdc", map[string]any{"mml": "c", "image": []byte{1, 2, 3}})
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestPlayIsDebounced(t *testing.T) {
	player := &fakePlayer{}
	h := newServer(player, 20*time.Millisecond).Handler()

	for _, text := range []string{"c", "cd", "cde"} {
		rec := post(t, h, "/play", map[string]string{"mml": text})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	require.Eventually(t, func() bool { return player.plays() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	player.mu.Lock()
	defer player.mu.Unlock()
	require.Len(t, player.played, 1)
	assert.Len(t, player.played[0].Channels[0].Highlights, 3)
}

func TestStopCancelsPendingPlay(t *testing.T) {
	player := &fakePlayer{}
	h := newServer(player, 30*time.Millisecond).Handler()

	post(t, h, "/play", map[string]string{"mml": "c"})
	rec := post(t, h, "/stop", map[string]string{})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, player.plays())
	assert.Equal(t, 1, player.stops)
}

func TestHighlights(t *testing.T) {
	h := New(&fakePlayer{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/highlights", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"offset":2,"length":1}]`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	h := New(&fakePlayer{}).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/compile", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
