package mml

import (
	"strings"
)

const (
	ticksPerQuarter = 48
	ticksPerWhole   = ticksPerQuarter * 4
)

// FormatOptions controls how Format re-flows track lines into bars.
type FormatOptions struct {
	BeatsPerBar int
	BeatUnit    int
	BarsPerLine int
	// Upbeat is the pickup length in whole notes before the first full bar.
	Upbeat float64
	Spaced bool
}

func DefaultFormatOptions() FormatOptions {
	return FormatOptions{BeatsPerBar: 4, BeatUnit: 4, BarsPerLine: 1, Spaced: true}
}

// Format re-flows MML so each output line of a track holds BarsPerLine bars.
// Comments, blank lines and envelope definitions are copied unchanged.
func Format(input string, opts FormatOptions) string {
	if strings.TrimSpace(input) == "" {
		return input
	}
	if opts.BeatUnit <= 0 {
		opts.BeatUnit = 4
	}
	wrap := ticksPerWhole * opts.BeatsPerBar / opts.BeatUnit * opts.BarsPerLine
	upbeat := int(opts.Upbeat*ticksPerWhole + 0.5)
	resetTime := func() int {
		if upbeat > 0 && wrap > 0 {
			return wrap - upbeat
		}
		return 0
	}

	var sb strings.Builder
	p := NewParser(DefaultParserConfig())
	prefix, started := "", false
	firstOnLine, pending := true, false
	now, defaultTicks := resetTime(), ticksPerQuarter

	newLine := func() {
		sb.WriteString("\n")
		sb.WriteString(prefix)
		firstOnLine = true
		now = 0
	}
	reset := func() {
		now, defaultTicks = resetTime(), ticksPerQuarter
		firstOnLine, pending = true, false
	}

	for _, line := range strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == ';' || trimmed[0] == '/' ||
			volumeEnvelopeLine.MatchString(trimmed) || pitchEnvelopeLine.MatchString(trimmed) {
			if started && !firstOnLine {
				sb.WriteString("\n")
			}
			sb.WriteString(line)
			sb.WriteString("\n")
			prefix, started = "", false
			reset()
			continue
		}

		data := trimmed
		linePrefix := ""
		if m := trackLine.FindStringSubmatchIndex(trimmed); m != nil {
			linePrefix = trimmed[m[2]:m[3]] + " "
			data = trimmed[m[1]:]
		}
		if linePrefix != "" && linePrefix != prefix {
			if started && !firstOnLine {
				sb.WriteString("\n")
			}
			prefix, started = linePrefix, true
			reset()
			sb.WriteString(prefix)
		} else if !started {
			prefix, started = linePrefix, true
			reset()
		}

		comment := ""
		if cut := strings.IndexAny(data, ";/"); cut >= 0 {
			data, comment = data[:cut], strings.TrimSpace(data[cut:])
		}
		var cmds []Command
		p.parseChunk(&Document{}, data, 0, &cmds)
		for _, c := range cmds {
			token := data[c.Offset : c.Offset+c.TextLen]
			ticks := 0
			switch c.Kind {
			case CmdNote, CmdRest, CmdTie, CmdTuplet:
				ticks = lengthTicks(c.Length, c.Dots, defaultTicks)
			case CmdDefaultLength:
				defaultTicks = lengthTicks(c.Length, c.Dots, defaultTicks)
			}
			if !firstOnLine && (pending || wrap > 0 && now+ticks > wrap) {
				newLine()
			}
			pending = false
			if opts.Spaced && !firstOnLine && c.Kind != CmdTie {
				sb.WriteString(" ")
			}
			sb.WriteString(token)
			firstOnLine = false
			now += ticks
			if wrap > 0 && now == wrap {
				pending = true
			}
		}
		if comment != "" {
			if !firstOnLine {
				sb.WriteString(" ")
			}
			sb.WriteString(comment)
			firstOnLine, pending = false, true
		}
	}
	return strings.TrimRight(sb.String(), "\t \r\n")
}

func lengthTicks(length, dots, def int) int {
	ticks := def
	if length > 0 {
		ticks = ticksPerWhole / length
	}
	add := ticks / 2
	for i := 0; i < dots; i++ {
		ticks += add
		add /= 2
	}
	return ticks
}
