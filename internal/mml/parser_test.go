package mml

import (
	"reflect"
	"strings"
	"testing"
)

func parse(t *testing.T, text string) *Document {
	t.Helper()
	return NewParser(DefaultParserConfig()).Parse(text)
}

func kinds(cmds []Command) []CommandKind {
	out := make([]CommandKind, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Kind)
	}
	return out
}

func TestParseDefaultTrackIsA(t *testing.T) {
	doc := parse(t, "t120 o4 l4 cde")
	if got := doc.TrackNames(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("tracks = %v, want [A]", got)
	}
	want := []CommandKind{CmdTempo, CmdOctave, CmdDefaultLength, CmdNote, CmdNote, CmdNote}
	if got := kinds(doc.Tracks["A"]); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if len(doc.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", doc.Diagnostics)
	}
}

func TestParseTrackPrefixAppliesToEveryListedTrack(t *testing.T) {
	doc := parse(t, "AB c d\nP e\nf")
	if got := doc.TrackNames(); !reflect.DeepEqual(got, []string{"A", "B", "P"}) {
		t.Fatalf("tracks = %v", got)
	}
	if len(doc.Tracks["A"]) != 2 || len(doc.Tracks["B"]) != 2 {
		t.Fatalf("A/B should hold 2 notes, got %d/%d", len(doc.Tracks["A"]), len(doc.Tracks["B"]))
	}
	// the active set carries over to the unprefixed line
	if len(doc.Tracks["P"]) != 2 || doc.Tracks["P"][1].Note != 'f' {
		t.Fatalf("P = %+v", doc.Tracks["P"])
	}
}

func TestParseNoteAccidentalsLengthsAndDots(t *testing.T) {
	doc := parse(t, "c+8. d#16 e-2.. r4")
	cmds := doc.Tracks["A"]
	if len(cmds) != 4 {
		t.Fatalf("got %d commands, want 4", len(cmds))
	}
	if c := cmds[0]; c.Note != 'c' || c.Semitone != 1 || c.Length != 8 || c.Dots != 1 {
		t.Fatalf("c+8. parsed as %+v", c)
	}
	if c := cmds[1]; c.Semitone != 1 || c.Length != 16 {
		t.Fatalf("d#16 parsed as %+v", c)
	}
	if c := cmds[2]; c.Semitone != -1 || c.Length != 2 || c.Dots != 2 {
		t.Fatalf("e-2.. parsed as %+v", c)
	}
	if c := cmds[3]; c.Kind != CmdRest || c.Length != 4 {
		t.Fatalf("r4 parsed as %+v", c)
	}
}

func TestParseSourceSpans(t *testing.T) {
	text := "A o4 c8 d"
	doc := parse(t, text)
	cmds := doc.Tracks["A"]
	if got := text[cmds[1].Offset : cmds[1].Offset+cmds[1].TextLen]; got != "c8" {
		t.Fatalf("span of second command = %q, want c8", got)
	}
	if cmds[0].Offset != 2 {
		t.Fatalf("o4 offset = %d, want 2", cmds[0].Offset)
	}
}

func TestParseLoopMarkerAndTypo(t *testing.T) {
	doc := parse(t, "c L d LL e l8")
	want := []CommandKind{CmdNote, CmdInfiniteLoop, CmdNote, CmdInfiniteLoop, CmdNote, CmdDefaultLength}
	if got := kinds(doc.Tracks["A"]); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestParseAtCommands(t *testing.T) {
	doc := parse(t, "@v2 @p255 @EP3 ep4 @q3 @wn0 @in1 @t4,15 @s-2 @3 D-10 K2")
	cmds := doc.Tracks["A"]
	want := []Command{
		{Kind: CmdEnvelope, Value: 2},
		{Kind: CmdPitchEnvelope, Value: 255},
		{Kind: CmdPitchEnvelope, Value: 3},
		{Kind: CmdPitchEnvelope, Value: 4},
		{Kind: CmdFrameQuantize, Value: 3},
		{Kind: CmdNoiseWave, Value: 0},
		{Kind: CmdIntegrateNoise, Value: 1},
		{Kind: CmdFrameTempo, Length: 4, Value: 15},
		{Kind: CmdSweep, Value: -2},
		{Kind: CmdVoice, Value: 3},
		{Kind: CmdDetune, Value: -10},
		{Kind: CmdTranspose, Value: 2},
	}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d: %+v", len(cmds), len(want), cmds)
	}
	for i := range want {
		if cmds[i].Kind != want[i].Kind || cmds[i].Value != want[i].Value || cmds[i].Length != want[i].Length {
			t.Fatalf("command %d = %+v, want %+v", i, cmds[i], want[i])
		}
	}
	if len(doc.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", doc.Diagnostics)
	}
}

func TestParseTuplet(t *testing.T) {
	doc := parse(t, "{cde}4 f")
	cmds := doc.Tracks["A"]
	if len(cmds) != 2 || cmds[0].Kind != CmdTuplet {
		t.Fatalf("got %+v", cmds)
	}
	if cmds[0].Length != 4 || len(cmds[0].Inner) != 3 {
		t.Fatalf("tuplet = %+v", cmds[0])
	}
	if cmds[0].Inner[1].Offset != 2 {
		t.Fatalf("inner offset = %d, want 2", cmds[0].Inner[1].Offset)
	}
}

func TestParseDiagnosticsNeverAbort(t *testing.T) {
	text := "c k d C @z {ef D e\n@wx g"
	doc := parse(t, text)
	if len(doc.Diagnostics) < 5 {
		t.Fatalf("expected at least 5 diagnostics, got %v", doc.Diagnostics)
	}
	for _, d := range doc.Diagnostics {
		if d.Offset < 0 || d.Offset+d.Length > len(text) || d.Length < 1 {
			t.Fatalf("diagnostic out of range: %+v", d)
		}
	}
	// parsing carried on past every error
	notes := 0
	for _, c := range doc.Tracks["A"] {
		if c.Kind == CmdNote {
			notes++
		}
	}
	if notes != 3 {
		t.Fatalf("notes = %d, want 3 (c, d, g)", notes)
	}
}

func TestParseUnknownCharactersAreSkipped(t *testing.T) {
	doc := parse(t, "c = d * e")
	if len(doc.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", doc.Diagnostics)
	}
	if len(doc.Tracks["A"]) != 3 {
		t.Fatalf("got %d commands, want 3", len(doc.Tracks["A"]))
	}
}

func TestParseUnbalancedLoops(t *testing.T) {
	doc := parse(t, "c ] [d")
	if len(doc.Diagnostics) != 2 {
		t.Fatalf("diagnostics = %v, want 2", doc.Diagnostics)
	}
}

func TestParseCommentsAreStripped(t *testing.T) {
	doc := parse(t, "c d ; e f\ng / a")
	if len(doc.Tracks["A"]) != 3 {
		t.Fatalf("got %d commands, want 3", len(doc.Tracks["A"]))
	}
}

func TestParseEnvelopeDefinitions(t *testing.T) {
	doc := parse(t, "@v1 = {15x3, 10, |, 8 > 4, 2}\n@EP2 = {0, -2, 2}\n@v3 = {-1}")
	env := doc.VolumeEnvelopes[1]
	if env == nil {
		t.Fatalf("envelope 1 missing")
	}
	if !reflect.DeepEqual(env.Values, []int{15, 15, 15, 10, 8}) || env.LoopIndex != 4 {
		t.Fatalf("envelope 1 = %+v", env)
	}
	if !reflect.DeepEqual(env.Release, []int{4, 2}) {
		t.Fatalf("release = %v", env.Release)
	}
	pitch := doc.PitchEnvelopes[2]
	if pitch == nil || !reflect.DeepEqual(pitch.Values, []int{0, -2, 2}) || pitch.LoopIndex != 2 {
		t.Fatalf("pitch envelope 2 = %+v", pitch)
	}
	// negative values are rejected in volume tables
	if len(doc.Diagnostics) != 1 || !strings.Contains(doc.Diagnostics[0].Message, "-") {
		t.Fatalf("diagnostics = %v", doc.Diagnostics)
	}
}
