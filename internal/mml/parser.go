package mml

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cbegin/mzmml-go/internal/translate"
)

var f = translate.From

var (
	volumeEnvelopeLine = regexp.MustCompile(`^@v(\d+)\s*=\s*\{(.*?)\}`)
	pitchEnvelopeLine  = regexp.MustCompile(`^(?:@EP|@ep|EP|ep|@p)(\d+)\s*=\s*\{(.*?)\}`)
	trackLine          = regexp.MustCompile(`^\s*([A-HP]+)\s+`)
)

type Parser struct{ cfg ParserConfig }

func NewParser(cfg ParserConfig) *Parser { return &Parser{cfg: cfg} }

// Parse never fails: malformed constructs are reported as diagnostics and
// parsing carries on with the next command.
func (p *Parser) Parse(input string) *Document {
	doc := &Document{
		Tracks:          make(map[string][]Command),
		VolumeEnvelopes: make(map[int]*Envelope),
		PitchEnvelopes:  make(map[int]*Envelope),
	}
	active := p.cfg.DefaultTrack
	lineStart := 0
	for lineStart <= len(input) {
		end := strings.IndexByte(input[lineStart:], '\n')
		if end < 0 {
			end = len(input)
		} else {
			end += lineStart
		}
		line := strings.TrimRight(input[lineStart:end], "\r")
		if cut := strings.IndexAny(line, ";/"); cut >= 0 {
			line = line[:cut]
		}
		if strings.TrimSpace(line) != "" {
			active = p.parseLine(doc, line, lineStart, active)
		}
		lineStart = end + 1
	}
	p.checkLoops(doc)
	return doc
}

func (p *Parser) parseLine(doc *Document, line string, lineOffset int, active string) string {
	lead := len(line) - len(strings.TrimLeft(line, " \t"))
	trimmed := strings.TrimSpace(line)
	if m := volumeEnvelopeLine.FindStringSubmatchIndex(trimmed); m != nil {
		p.defineEnvelope(doc, doc.VolumeEnvelopes, trimmed, m, lineOffset+lead, false)
		return active
	}
	if m := pitchEnvelopeLine.FindStringSubmatchIndex(trimmed); m != nil {
		p.defineEnvelope(doc, doc.PitchEnvelopes, trimmed, m, lineOffset+lead, true)
		return active
	}

	data, dataOffset := line, 0
	if m := trackLine.FindStringSubmatchIndex(line); m != nil {
		active = line[m[2]:m[3]]
		data, dataOffset = line[m[1]:], m[1]
	}
	var cmds []Command
	p.parseChunk(doc, data, lineOffset+dataOffset, &cmds)
	seen := map[byte]bool{}
	for i := 0; i < len(active); i++ {
		name := active[i]
		if seen[name] {
			continue
		}
		seen[name] = true
		key := string(name)
		doc.Tracks[key] = append(doc.Tracks[key], cmds...)
	}
	return active
}

func (p *Parser) defineEnvelope(doc *Document, table map[int]*Envelope, line string, m []int, offset int, allowNegative bool) {
	id, err := strconv.Atoi(line[m[2]:m[3]])
	if err != nil {
		doc.addDiagnostic(offset+m[2], m[3]-m[2], f("invalid envelope id"))
		return
	}
	env, bad := parseEnvelopeBody(line[m[4]:m[5]], allowNegative)
	for _, b := range bad {
		doc.addDiagnostic(offset+m[4]+b.offset, len(b.text), f("malformed envelope token '%s'", b.text))
	}
	if _, dup := table[id]; dup {
		doc.addDiagnostic(offset, m[1], f("envelope %d redefined", id))
	}
	table[id] = env
}

func (d *Document) addDiagnostic(offset, length int, msg string) {
	if length < 1 {
		length = 1
	}
	d.Diagnostics = append(d.Diagnostics, Diagnostic{Offset: offset, Length: length, Message: msg})
}

// parseChunk tokenizes one line's command text. base is the absolute offset
// of data[0] within the document.
func (p *Parser) parseChunk(doc *Document, data string, base int, cmds *[]Command) {
	i := 0
	for i < len(data) {
		if isSpace(data[i]) {
			i++
			continue
		}
		start := i
		orig := data[i]
		i++
		if (orig == 'l' || orig == 'L') && i < len(data) && (data[i] == 'l' || data[i] == 'L') {
			i++
		}
		diag := func(key string, args ...any) {
			doc.addDiagnostic(base+start, i-start, f(key, args...))
		}

		var cmd *Command
		switch {
		case orig == 'D':
			v, next, ok := readSigned(data, i, 0)
			i = next
			if !ok {
				diag("invalid detune value")
				break
			}
			cmd = &Command{Kind: CmdDetune, Value: v}
		case orig == 'K':
			v, next, ok := readSigned(data, i, 0)
			i = next
			if !ok {
				diag("invalid transpose value")
				break
			}
			cmd = &Command{Kind: CmdTranspose, Value: v}
		case orig == 'k':
			diag("use upper-case 'K'; lower-case 'k' is not allowed")
		case orig == '@':
			cmd = p.parseAtCommand(doc, data, &i, base, start)
		case lower(orig) == 'e' && i < len(data) && lower(data[i]) == 'p':
			i++
			v, next, ok := readNumber(data, i, 0)
			i = next
			if !ok {
				diag("invalid pitch envelope id")
			}
			cmd = &Command{Kind: CmdPitchEnvelope, Value: v}
		case lower(orig) == 't':
			cmd = p.valueCommand(CmdTempo, data, &i, p.cfg.DefaultTempo, diag, "invalid tempo value")
		case lower(orig) == 'o':
			cmd = p.valueCommand(CmdOctave, data, &i, p.cfg.DefaultOctave, diag, "invalid octave value")
		case orig == '>':
			cmd = &Command{Kind: CmdRelativeOctave, Value: 1}
		case orig == '<':
			cmd = &Command{Kind: CmdRelativeOctave, Value: -1}
		case lower(orig) == 'l':
			if i < len(data) && isDigit(data[i]) {
				v, next, ok := readNumber(data, i, 4)
				i = next
				if !ok {
					diag("invalid length value")
				}
				dots, next := readDots(data, i)
				i = next
				cmd = &Command{Kind: CmdDefaultLength, Length: v, Dots: dots}
			} else {
				cmd = &Command{Kind: CmdInfiniteLoop}
			}
		case lower(orig) == 'v':
			cmd = p.valueCommand(CmdVolume, data, &i, p.cfg.DefaultVolume, diag, "invalid volume value")
		case lower(orig) == 'q':
			cmd = p.valueCommand(CmdQuantize, data, &i, p.cfg.DefaultQuant, diag, "invalid quantize value")
		case orig == '{':
			cmd = p.parseTuplet(doc, data, &i, base, start)
		case orig == '[':
			cmd = &Command{Kind: CmdLoopBegin}
		case orig == ']':
			cmd = p.valueCommand(CmdLoopEnd, data, &i, p.cfg.DefaultLoop, diag, "invalid loop count")
		case orig == '^':
			length, dots, next, ok := readLength(data, i)
			i = next
			if !ok {
				diag("invalid tie length")
			}
			cmd = &Command{Kind: CmdTie, Length: length, Dots: dots}
		case isNoteLetter(orig):
			cmd = parseNote(data, &i, orig, diag)
		case isNoteLetter(lower(orig)):
			diag("upper-case '%c' is not a note; use lower-case", rune(orig))
		}

		if cmd != nil {
			cmd.Offset = base + start
			cmd.TextLen = i - start
			*cmds = append(*cmds, *cmd)
		}
	}
}

func (p *Parser) valueCommand(kind CommandKind, data string, i *int, def int, diag func(string, ...any), msg string) *Command {
	v, next, ok := readNumber(data, *i, def)
	*i = next
	if !ok {
		diag(msg)
	}
	return &Command{Kind: kind, Value: v}
}

func (p *Parser) parseAtCommand(doc *Document, data string, i *int, base, start int) *Command {
	diag := func(length int, key string, args ...any) {
		doc.addDiagnostic(base+start, length, f(key, args...))
	}
	if *i >= len(data) {
		diag(1, "missing command after '@'")
		return nil
	}
	c := lower(data[*i])
	*i++
	var (
		v  int
		ok bool
	)
	switch c {
	case 't':
		length, next, okLen := readNumber(data, *i, 4)
		*i = next
		if !okLen {
			diag(*i-start, "invalid length value")
		}
		if *i < len(data) && data[*i] == ',' {
			*i++
		}
		frames, next, okFrames := readNumber(data, *i, 30)
		*i = next
		if !okFrames {
			diag(*i-start, "invalid frame count")
		}
		return &Command{Kind: CmdFrameTempo, Length: length, Value: frames}
	case 'v':
		v, *i, ok = readNumber(data, *i, 0)
		if !ok {
			diag(*i-start, "invalid envelope id")
		}
		return &Command{Kind: CmdEnvelope, Value: v}
	case 'p':
		v, *i, ok = readNumber(data, *i, 0)
		if !ok {
			diag(*i-start, "invalid pitch envelope id")
		}
		return &Command{Kind: CmdPitchEnvelope, Value: v}
	case 'e':
		if *i < len(data) && lower(data[*i]) == 'p' {
			*i++
			v, *i, ok = readNumber(data, *i, 0)
			if !ok {
				diag(*i-start, "invalid pitch envelope id")
			}
			return &Command{Kind: CmdPitchEnvelope, Value: v}
		}
	case 'q':
		v, *i, ok = readNumber(data, *i, 0)
		if !ok {
			diag(*i-start, "invalid frame count")
		}
		return &Command{Kind: CmdFrameQuantize, Value: v}
	case 's':
		v, *i, ok = readSigned(data, *i, 0)
		if !ok {
			diag(*i-start, "invalid sweep value")
			return nil
		}
		return &Command{Kind: CmdSweep, Value: v}
	case 'w', 'i':
		if *i < len(data) && lower(data[*i]) == 'n' {
			*i++
			kind, def := CmdNoiseWave, 1
			if c == 'i' {
				kind, def = CmdIntegrateNoise, 0
			}
			v, *i, _ = readNumber(data, *i, def)
			return &Command{Kind: kind, Value: v}
		}
		diag(2, "unknown @ command '@%c'; expected '%s'", rune(c), "@"+string(c)+"n")
		return nil
	default:
		if isDigit(c) {
			*i--
			v, *i, _ = readNumber(data, *i, 0)
			return &Command{Kind: CmdVoice, Value: v}
		}
	}
	diag(2, "unknown @ command '@%c'", rune(c))
	return nil
}

func (p *Parser) parseTuplet(doc *Document, data string, i *int, base, start int) *Command {
	closeAt := strings.IndexByte(data[*i:], '}')
	if closeAt < 0 {
		doc.addDiagnostic(base+start, len(data)-start, f("missing tuplet close '}'"))
		*i = len(data)
		return nil
	}
	closeAt += *i
	var inner []Command
	p.parseChunk(doc, data[*i:closeAt], base+*i, &inner)
	*i = closeAt + 1
	length, dots, next, ok := readLength(data, *i)
	*i = next
	if !ok {
		doc.addDiagnostic(base+start, *i-start, f("invalid tuplet length"))
	}
	return &Command{Kind: CmdTuplet, Length: length, Dots: dots, Inner: inner}
}

func parseNote(data string, i *int, letter byte, diag func(string, ...any)) *Command {
	semitone := 0
	for *i < len(data) {
		if data[*i] == '+' || data[*i] == '#' {
			semitone++
		} else if data[*i] == '-' {
			semitone--
		} else {
			break
		}
		*i++
	}
	length, dots, next, ok := readLength(data, *i)
	*i = next
	if !ok {
		diag("invalid note length")
	}
	if letter == 'r' {
		return &Command{Kind: CmdRest, Length: length, Dots: dots}
	}
	return &Command{Kind: CmdNote, Note: letter, Semitone: semitone, Length: length, Dots: dots}
}

// checkLoops reports brackets that the expander will have to guess about.
func (p *Parser) checkLoops(doc *Document) {
	reported := map[int]bool{}
	report := func(c Command, key string) {
		if reported[c.Offset] {
			return
		}
		reported[c.Offset] = true
		doc.addDiagnostic(c.Offset, c.TextLen, f(key))
	}
	for _, name := range doc.TrackNames() {
		var open []Command
		for _, c := range doc.Tracks[name] {
			switch c.Kind {
			case CmdLoopBegin:
				open = append(open, c)
			case CmdLoopEnd:
				if len(open) == 0 {
					report(c, "unmatched ']'")
					continue
				}
				open = open[:len(open)-1]
			}
		}
		for _, c := range open {
			report(c, "unclosed '['")
		}
	}
}

// readNumber reads an unsigned decimal at data[i:]. Missing digits yield def
// with ok=true; digits that overflow yield def with ok=false.
func readNumber(data string, i int, def int) (int, int, bool) {
	start := i
	for i < len(data) && isDigit(data[i]) {
		i++
	}
	if start == i {
		return def, i, true
	}
	v, err := strconv.Atoi(data[start:i])
	if err != nil {
		return def, i, false
	}
	return v, i, true
}

// readSigned requires at least one digit after an optional sign.
func readSigned(data string, i int, def int) (int, int, bool) {
	start := i
	if i < len(data) && (data[i] == '+' || data[i] == '-') {
		i++
	}
	digits := i
	for i < len(data) && isDigit(data[i]) {
		i++
	}
	if digits == i {
		return def, i, false
	}
	v, err := strconv.Atoi(data[start:i])
	if err != nil {
		return def, i, false
	}
	return v, i, true
}

func readDots(data string, i int) (int, int) {
	dots := 0
	for i < len(data) && data[i] == '.' {
		dots++
		i++
	}
	return dots, i
}

func readLength(data string, i int) (length, dots, next int, ok bool) {
	length, next, ok = readNumber(data, i, 0)
	dots, next = readDots(data, next)
	return length, dots, next, ok
}

func isNoteLetter(c byte) bool {
	switch c {
	case 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'r':
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
