package mzmml

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	intaudio "github.com/cbegin/mzmml-go/internal/audio"
	intpsg "github.com/cbegin/mzmml-go/internal/psg"
	"github.com/cbegin/mzmml-go/internal/translate"
)

// PlaybackEvent is sent on the channel returned by Watch.
type PlaybackEvent struct {
	Kind    int // EventStarted or EventPlaybackEnded
	Session uuid.UUID
}

const (
	EventStarted int = iota
	EventPlaybackEnded
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	logger       *log.Logger
	loopPlayback bool
	sampleTap    func([]float32)
	metronome    bool
	tail         time.Duration
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{loopPlayback: true, tail: 100 * time.Millisecond}
}

func WithLogger(logger *log.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = logger
	}
}

// WithLoopPlayback(false) stops looping songs after one pass instead of
// running them until Stop.
func WithLoopPlayback(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loopPlayback = enabled
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

// WithMetronome mixes a click on every quarter note.
func WithMetronome(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.metronome = enabled
	}
}

// WithTailPadding sets how long a finite song keeps its session open after
// the last channel ends.
func WithTailPadding(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		if d >= 0 {
			cfg.tail = d
		}
	}
}

// Player previews songs through the software PSG. At most one session
// plays at a time.
type Player struct {
	mu         sync.Mutex
	sampleRate int
	cfg        playerConfig
	volume     float64
	muted      map[string]bool
	session    *session
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

type session struct {
	id    uuid.UUID
	song  *Song
	mixer *intpsg.Mixer
	audio *intaudio.Player
	timer *time.Timer
	done  chan struct{}
}

func (s *session) close() error {
	if s.timer != nil {
		s.timer.Stop()
	}
	err := s.audio.Stop()
	close(s.done)
	return err
}

// source hands the mixed buffer to the sample tap before the output sees it.
type source struct {
	mixer *intpsg.Mixer
	tap   func([]float32)
}

func (s *source) Process(dst []float32) {
	s.mixer.Process(dst)
	if s.tap != nil {
		s.tap(dst)
	}
}

func (s *source) Finished() bool {
	return s.mixer.Finished()
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Player{
		sampleRate: sampleRate,
		cfg:        cfg,
		volume:     1,
		muted:      map[string]bool{},
	}, nil
}

// PlayMML compiles text and plays it. The compiled song is returned even
// when playback fails so its diagnostics can be shown.
func (p *Player) PlayMML(text string) (*Song, error) {
	song, err := Compile(text)
	if err != nil {
		return nil, err
	}
	return song, p.Play(song)
}

// Play tears down the current session, then starts song in a new one.
func (p *Player) Play(song *Song) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev := p.session; prev != nil {
		p.session = nil
		p.end(prev)
	}

	mixer := song.mixer(p.sampleRate)
	mixer.SetMasterGain(p.volume)
	for name, muted := range p.muted {
		mixer.SetActive(name, !muted)
	}
	if p.cfg.metronome {
		mixer.SetMetronome(song.metronome(p.sampleRate))
	}
	backend, err := intaudio.NewPlayer(p.sampleRate, &source{mixer: mixer, tap: p.cfg.sampleTap})
	if err != nil {
		return err
	}

	s := &session{
		id:    uuid.New(),
		song:  song,
		mixer: mixer,
		audio: backend,
		done:  make(chan struct{}),
	}
	if !song.Loops() || !p.cfg.loopPlayback {
		d := time.Duration(song.DurationMs()*float64(time.Millisecond)) + p.cfg.tail
		s.timer = time.AfterFunc(d, func() { p.expire(s) })
	}
	p.session = s
	backend.Play()
	p.logf("session %s: playing %d channels, %.0f ms", s.id, len(song.Channels), song.DurationMs())
	p.sendEvent(PlaybackEvent{Kind: EventStarted, Session: s.id})
	return nil
}

// expire ends s when its timer fires, unless it was already replaced.
func (p *Player) expire(s *session) {
	p.mu.Lock()
	if p.session != s {
		p.mu.Unlock()
		return
	}
	p.session = nil
	p.mu.Unlock()
	p.end(s)
}

func (p *Player) end(s *session) error {
	err := s.close()
	if err != nil {
		p.logf("session %s: stop: %v", s.id, err)
	} else {
		p.logf("session %s: ended", s.id)
	}
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Session: s.id})
	return err
}

// Stop ends the current session. It is safe to call at any time, from any
// goroutine, any number of times.
func (p *Player) Stop() error {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return p.end(s)
}

// Playing reports whether a session is open.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

// Wait blocks until the current session ends. A looping song only ends on
// Stop or when another Play replaces it.
func (p *Player) Wait() {
	p.mu.Lock()
	var done chan struct{}
	if p.session != nil {
		done = p.session.done
	}
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events.
// The channel is buffered (cap 8); events are dropped when it is full.
// Only the most recent Watch() channel receives events; call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (p *Player) logf(format string, args ...any) {
	if p.cfg.logger != nil {
		p.cfg.logger.Printf(format, args...)
	}
}

// SetChannelActive mutes or unmutes a channel. The channel keeps running
// while muted, so unmuting resumes in time. The setting carries over to
// later sessions.
func (p *Player) SetChannelActive(name string, active bool) error {
	if _, ok := channelMap[name]; !ok {
		return errors.New(translate.From("unknown channel %q", name))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted[name] = !active
	if p.session != nil {
		p.session.mixer.SetActive(name, active)
	}
	return nil
}

func (p *Player) ChannelActive(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.muted[name]
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.session != nil {
		p.session.mixer.SetMasterGain(volume)
	}
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return 0
	}
	return int64(s.audio.Position().Seconds() * float64(p.sampleRate))
}

// CurrentHighlights returns the source spans sounding at the playback
// position, one per channel. It is polled and best-effort.
func (p *Player) CurrentHighlights() []Highlight {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	ms := float64(s.audio.Position()) / float64(time.Millisecond)
	return s.song.HighlightsAt(ms)
}
