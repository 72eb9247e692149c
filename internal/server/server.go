// Package server exposes the compiler and the preview player over HTTP for
// editor front ends.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/cbegin/mzmml-go"
	"github.com/cbegin/mzmml-go/internal/bytecode"
	"github.com/cbegin/mzmml-go/internal/mml"
	"github.com/cbegin/mzmml-go/internal/qdc"
)

// Player is the part of *mzmml.Player the server drives.
type Player interface {
	Play(song *mzmml.Song) error
	Stop() error
	CurrentHighlights() []mzmml.Highlight
}

// playDelay coalesces the bursts of /play requests an editor sends while
// the user types.
const playDelay = 150 * time.Millisecond

type Server struct {
	// Logger receives one line per request error and per debounced play.
	Logger *log.Logger

	player Player
	router *mux.Router

	mu       sync.Mutex
	debounce func(func())
}

func New(player Player) *Server {
	return newServer(player, playDelay)
}

func newServer(player Player, delay time.Duration) *Server {
	s := &Server{
		player:   player,
		router:   mux.NewRouter().StrictSlash(true),
		debounce: debounce.New(delay),
	}
	s.router.HandleFunc("/parse", s.handleParse).Methods("POST")
	s.router.HandleFunc("/compile", s.handleCompile).Methods("POST")
	s.router.HandleFunc("/qdc", s.handleDiskImage).Methods("POST")
	s.router.HandleFunc("/play", s.handlePlay).Methods("POST")
	s.router.HandleFunc("/stop", s.handleStop).Methods("POST")
	s.router.HandleFunc("/highlights", s.handleHighlights).Methods("GET")
	return s
}

// Handler returns the router wrapped for cross-origin editor pages.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

type sourceRequest struct {
	MML   string `json:"mml"`
	Start *int   `json:"start,omitempty"`
	End   *int   `json:"end,omitempty"`
	Name  string `json:"name,omitempty"`
	Image []byte `json:"image,omitempty"`
}

func (r *sourceRequest) selection() *mzmml.Selection {
	if r.Start == nil {
		return nil
	}
	sel := &mzmml.Selection{Start: *r.Start, End: len(r.MML)}
	if r.End != nil {
		sel.End = *r.End
	}
	return sel
}

type diagnostic struct {
	Offset  int    `json:"offset"`
	Length  int    `json:"length"`
	Message string `json:"message"`
}

type channelResponse struct {
	Name        string  `json:"name"`
	Program     []byte  `json:"program"`
	Disassembly string  `json:"disassembly"`
	DurationMs  float64 `json:"durationMs"`
	Loops       bool    `json:"loops"`
}

type compileResponse struct {
	Channels    []channelResponse `json:"channels,omitempty"`
	DurationMs  float64           `json:"durationMs"`
	Diagnostics []diagnostic      `json:"diagnostics"`
}

func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (*sourceRequest, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return nil, false
	}
	var req sourceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("could not unmarshal request body: %w", err))
		return nil, false
	}
	return &req, true
}

func (s *Server) compile(w http.ResponseWriter, req *sourceRequest) (*mzmml.Song, bool) {
	song, err := mzmml.CompileSelection(req.MML, req.selection())
	if err != nil {
		s.fail(w, http.StatusUnprocessableEntity, err)
		return nil, false
	}
	return song, true
}

func diagnostics(song *mzmml.Song) []diagnostic {
	out := make([]diagnostic, 0, len(song.Diagnostics))
	for _, d := range song.Diagnostics {
		out = append(out, diagnostic{Offset: d.Offset, Length: d.Length, Message: d.Message})
	}
	return out
}

type parseResponse struct {
	Tracks      []string     `json:"tracks"`
	Diagnostics []diagnostic `json:"diagnostics"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	doc := mml.NewParser(mml.DefaultParserConfig()).Parse(req.MML)
	res := parseResponse{
		Tracks:      append([]string{}, doc.TrackNames()...),
		Diagnostics: make([]diagnostic, 0, len(doc.Diagnostics)),
	}
	for _, d := range doc.Diagnostics {
		res.Diagnostics = append(res.Diagnostics, diagnostic{Offset: d.Offset, Length: d.Length, Message: d.Message})
	}
	s.reply(w, http.StatusOK, res)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	song, ok := s.compile(w, req)
	if !ok {
		return
	}
	res := compileResponse{DurationMs: song.DurationMs(), Diagnostics: diagnostics(song)}
	for _, ch := range song.Channels {
		res.Channels = append(res.Channels, channelResponse{
			Name:        ch.Name,
			Program:     ch.Program,
			Disassembly: bytecode.Disassemble(ch.Program, ch.Name == "P"),
			DurationMs:  ch.Timeline.DurationMs,
			Loops:       ch.Timeline.Loops(),
		})
	}
	s.reply(w, http.StatusOK, res)
}

func (s *Server) handleDiskImage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	song, ok := s.compile(w, req)
	if !ok {
		return
	}
	name := req.Name
	if name == "" {
		name = "MZMML"
	}
	img, err := mzmml.Export(song, name, req.Image)
	var ce *qdc.CapacityError
	switch {
	case errors.As(err, &ce):
		s.fail(w, http.StatusRequestEntityTooLarge, err)
		return
	case err != nil:
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".qdc"))
	_, _ = w.Write(img)
}

// handlePlay compiles at once so diagnostics come back with the response,
// but starts playback only once requests stop arriving.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	song, ok := s.compile(w, req)
	if !ok {
		return
	}
	s.schedule(func() {
		if err := s.player.Play(song); err != nil {
			s.logf("play: %v", err)
		}
	})
	s.reply(w, http.StatusAccepted, compileResponse{DurationMs: song.DurationMs(), Diagnostics: diagnostics(song)})
}

// handleStop also drops a play that is still waiting out the delay.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.schedule(func() {})
	if err := s.player.Stop(); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type span struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

func (s *Server) handleHighlights(w http.ResponseWriter, r *http.Request) {
	hs := s.player.CurrentHighlights()
	out := make([]span, 0, len(hs))
	for _, h := range hs {
		out = append(out, span{Offset: h.SourceOffset, Length: h.SourceLength})
	}
	s.reply(w, http.StatusOK, out)
}

func (s *Server) schedule(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounce(f)
}

func (s *Server) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logf("encode response: %v", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.logf("%d: %v", status, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
