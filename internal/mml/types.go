package mml

type CommandKind int

const (
	CmdTempo CommandKind = iota + 1
	CmdFrameTempo
	CmdOctave
	CmdRelativeOctave
	CmdDefaultLength
	CmdVolume
	CmdQuantize
	CmdFrameQuantize
	CmdEnvelope
	CmdPitchEnvelope
	CmdNote
	CmdRest
	CmdTie
	CmdLoopBegin
	CmdLoopEnd
	CmdInfiniteLoop
	CmdNoiseWave
	CmdIntegrateNoise
	CmdDetune
	CmdTranspose
	CmdSweep
	CmdTuplet
	CmdVoice
)

var commandNames = map[CommandKind]string{
	CmdTempo:          "Tempo",
	CmdFrameTempo:     "FrameTempo",
	CmdOctave:         "Octave",
	CmdRelativeOctave: "RelativeOctave",
	CmdDefaultLength:  "DefaultLength",
	CmdVolume:         "Volume",
	CmdQuantize:       "Quantize",
	CmdFrameQuantize:  "FrameQuantize",
	CmdEnvelope:       "Envelope",
	CmdPitchEnvelope:  "PitchEnvelope",
	CmdNote:           "Note",
	CmdRest:           "Rest",
	CmdTie:            "Tie",
	CmdLoopBegin:      "LoopBegin",
	CmdLoopEnd:        "LoopEnd",
	CmdInfiniteLoop:   "InfiniteLoop",
	CmdNoiseWave:      "NoiseWave",
	CmdIntegrateNoise: "IntegrateNoise",
	CmdDetune:         "Detune",
	CmdTranspose:      "Transpose",
	CmdSweep:          "Sweep",
	CmdTuplet:         "Tuplet",
	CmdVoice:          "Voice",
}

func (k CommandKind) String() string {
	if s, ok := commandNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Command is one parsed MML command. Which fields are meaningful depends on
// Kind; Length 0 means "use the default length".
type Command struct {
	Kind     CommandKind
	Value    int
	Length   int
	Dots     int
	Note     byte
	Semitone int
	Inner    []Command
	Offset   int
	TextLen  int
}

// Envelope is a volume or pitch table. LoopIndex is -1 only for empty tables.
type Envelope struct {
	Values    []int
	LoopIndex int
	Release   []int
}

func (e *Envelope) HasRelease() bool {
	return e != nil && len(e.Release) > 0
}

type Diagnostic struct {
	Offset  int
	Length  int
	Message string
}

// Document is the result of parsing one MML text.
type Document struct {
	Tracks          map[string][]Command
	VolumeEnvelopes map[int]*Envelope
	PitchEnvelopes  map[int]*Envelope
	Diagnostics     []Diagnostic
}

// TrackOrder lists channel names in hardware order.
var TrackOrder = []string{"A", "B", "C", "D", "E", "F", "G", "H", "P"}

// TrackNames returns the names of non-empty tracks in hardware order.
func (d *Document) TrackNames() []string {
	names := make([]string, 0, len(d.Tracks))
	for _, name := range TrackOrder {
		if len(d.Tracks[name]) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// ParserConfig holds the values used when a command is written without its
// number, e.g. a bare "t" or "]".
type ParserConfig struct {
	DefaultTrack  string
	DefaultTempo  int
	DefaultOctave int
	DefaultVolume int
	DefaultQuant  int
	DefaultLoop   int
}

func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		DefaultTrack:  "A",
		DefaultTempo:  120,
		DefaultOctave: 4,
		DefaultVolume: 15,
		DefaultQuant:  8,
		DefaultLoop:   2,
	}
}
