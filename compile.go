// Package mzmml compiles MML text for the MZ-1500 sound hardware, previews it
// through a software PSG and exports it as a bootable Quick Disk image.
package mzmml

import (
	"errors"
	"fmt"
	"sort"

	intbc "github.com/cbegin/mzmml-go/internal/bytecode"
	intdrv "github.com/cbegin/mzmml-go/internal/driver"
	inthw "github.com/cbegin/mzmml-go/internal/hw"
	intmml "github.com/cbegin/mzmml-go/internal/mml"
	intpsg "github.com/cbegin/mzmml-go/internal/psg"
	inttl "github.com/cbegin/mzmml-go/internal/timeline"
	"github.com/cbegin/mzmml-go/internal/translate"
)

var ErrNoTracks = errors.New(translate.From("no playable tracks"))

type (
	Diagnostic = intmml.Diagnostic
	Highlight  = inttl.Highlight
	Selection  = inttl.Selection
)

type hardware struct {
	kind  intdrv.Kind
	port  byte
	index int
}

// channelMap places tracks on the two PSGs and the beeper.
var channelMap = map[string]hardware{
	"A": {intdrv.KindTone, inthw.PSG1Port, 0},
	"B": {intdrv.KindTone, inthw.PSG1Port, 1},
	"C": {intdrv.KindTone, inthw.PSG1Port, 2},
	"D": {intdrv.KindNoise, inthw.PSG1Port, inthw.NoiseSelect},
	"E": {intdrv.KindTone, inthw.PSG2Port, 0},
	"F": {intdrv.KindTone, inthw.PSG2Port, 1},
	"G": {intdrv.KindTone, inthw.PSG2Port, 2},
	"H": {intdrv.KindNoise, inthw.PSG2Port, inthw.NoiseSelect},
	"P": {intdrv.KindAux, 0, 0},
}

// Channel is one compiled track.
type Channel struct {
	Name    string
	Program []byte
	// Timeline is the expanded track the program was compiled from.
	Timeline   *inttl.Result
	Highlights []Highlight
}

func (c *Channel) hardware() hardware { return channelMap[c.Name] }

// Song is a compiled document, ready for preview or export.
type Song struct {
	Channels    []Channel
	Volume      map[int]*intmml.Envelope
	Pitch       []intbc.PitchTable
	Diagnostics []Diagnostic
}

// Compile parses, expands and compiles every track of text. Diagnostics do
// not fail compilation; they are returned on the Song.
func Compile(text string) (*Song, error) {
	return CompileSelection(text, nil)
}

// CompileSelection compiles only the events whose source lies in sel. State
// commands before the selection still apply.
func CompileSelection(text string, sel *Selection) (*Song, error) {
	doc := intmml.NewParser(intmml.DefaultParserConfig()).Parse(text)
	names := doc.TrackNames()
	if len(names) == 0 {
		return nil, ErrNoTracks
	}
	song := &Song{
		Volume:      doc.VolumeEnvelopes,
		Diagnostics: doc.Diagnostics,
	}
	expander := inttl.NewExpander(inttl.DefaultConfig())
	compiler := intbc.NewCompiler(doc.VolumeEnvelopes, doc.PitchEnvelopes)
	for _, name := range names {
		hw := channelMap[name]
		res := expander.Expand(doc.Tracks[name], sel)
		program, err := compiler.CompileTrack(res.Events, hw.index, hw.kind == intdrv.KindAux)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", name, err)
		}
		song.Channels = append(song.Channels, Channel{
			Name:       name,
			Program:    program,
			Timeline:   res,
			Highlights: inttl.Highlights(res.Events),
		})
	}
	song.Pitch = compiler.PitchTables()
	return song, nil
}

// DurationMs is the length of the longest channel's single pass.
func (s *Song) DurationMs() float64 {
	longest := 0.0
	for _, ch := range s.Channels {
		longest = max(longest, ch.Timeline.DurationMs)
	}
	return longest
}

// Loops reports whether any channel carries a loop point.
func (s *Song) Loops() bool {
	for _, ch := range s.Channels {
		if ch.Timeline.Loops() {
			return true
		}
	}
	return false
}

// Channel returns the named channel, or nil.
func (s *Song) Channel(name string) *Channel {
	for i := range s.Channels {
		if s.Channels[i].Name == name {
			return &s.Channels[i]
		}
	}
	return nil
}

// HighlightsAt lists the source spans sounding ms into playback, one per
// channel, with looping channels folded back into their loop section.
func (s *Song) HighlightsAt(ms float64) []Highlight {
	var out []Highlight
	for _, ch := range s.Channels {
		if h, ok := inttl.HighlightAt(ch.Highlights, ch.Timeline.Position(ms)); ok {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceOffset < out[j].SourceOffset })
	return out
}

// metronome clicks on the beats of the longest channel.
func (s *Song) metronome(sampleRate int) *intpsg.Metronome {
	var ref *inttl.Result
	for _, ch := range s.Channels {
		if ref == nil || ch.Timeline.DurationMs > ref.DurationMs {
			ref = ch.Timeline
		}
	}
	if ref == nil {
		return nil
	}
	return intpsg.NewMetronome(ref.Beats, sampleRate, ref.LoopStartMs, ref.DurationMs)
}

// mixer builds a fresh software PSG for every channel of the song.
func (s *Song) mixer(sampleRate int) *intpsg.Mixer {
	tables := &intpsg.Tables{Volume: s.Volume, Pitch: s.Pitch}
	m := intpsg.NewMixer()
	for _, ch := range s.Channels {
		vm := intpsg.NewVM(ch.Program, vmKind(ch.hardware().kind), tables, sampleRate, intpsg.DefaultParams())
		m.Add(ch.Name, vm)
	}
	return m
}

func vmKind(k intdrv.Kind) intpsg.Kind {
	switch k {
	case intdrv.KindNoise:
		return intpsg.KindNoise
	case intdrv.KindAux:
		return intpsg.KindAux
	default:
		return intpsg.KindTone
	}
}
