package mml

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	envelopeToken       = regexp.MustCompile(`\d+(?:\s*[xX]\s*\d+)?|\||>`)
	signedEnvelopeToken = regexp.MustCompile(`-?\d+(?:\s*[xX]\s*\d+)?|\||>`)
)

type badToken struct {
	offset int
	text   string
}

// ParseEnvelope parses a "{...}" literal (braces optional). Negative values
// are accepted, as for pitch tables.
func ParseEnvelope(literal string) *Envelope {
	body := strings.TrimSpace(literal)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")
	env, _ := parseEnvelopeBody(body, true)
	return env
}

func parseEnvelopeBody(body string, allowNegative bool) (*Envelope, []badToken) {
	re := envelopeToken
	if allowNegative {
		re = signedEnvelopeToken
	}
	env := &Envelope{LoopIndex: -1}
	var bad []badToken
	release := false
	last := 0
	for _, m := range re.FindAllStringIndex(body, -1) {
		bad = appendGap(bad, body, last, m[0])
		last = m[1]
		tok := body[m[0]:m[1]]
		switch tok {
		case "|":
			env.LoopIndex = len(env.Values)
			continue
		case ">":
			release = true
			continue
		}
		value, count := tok, 1
		if x := strings.IndexAny(tok, "xX"); x > 0 {
			value = strings.TrimSpace(tok[:x])
			if n, err := strconv.Atoi(strings.TrimSpace(tok[x+1:])); err == nil && n > 1 {
				count = n
			}
		}
		v, err := strconv.Atoi(value)
		if err != nil {
			bad = append(bad, badToken{offset: m[0], text: tok})
			continue
		}
		for n := 0; n < count; n++ {
			if release {
				env.Release = append(env.Release, v)
			} else {
				env.Values = append(env.Values, v)
			}
		}
	}
	bad = appendGap(bad, body, last, len(body))

	if len(env.Values) == 0 {
		env.LoopIndex = -1
	} else if env.LoopIndex < 0 || env.LoopIndex >= len(env.Values) {
		env.LoopIndex = len(env.Values) - 1
	}
	return env, bad
}

// appendGap records anything other than separators between two tokens.
func appendGap(bad []badToken, body string, from, to int) []badToken {
	gap := body[from:to]
	trimmed := strings.Trim(gap, " \t,")
	if trimmed == "" {
		return bad
	}
	return append(bad, badToken{offset: from + strings.Index(gap, trimmed), text: trimmed})
}

// FormatEnvelope writes env back as a literal, run-length compressing
// repeated values. The loop marker is omitted when it sits on the last value.
func FormatEnvelope(env *Envelope) string {
	var parts []string
	loop := env.LoopIndex
	if loop == len(env.Values)-1 {
		loop = -1
	}
	if loop >= 0 {
		parts = appendRuns(parts, env.Values[:loop])
		parts = append(parts, "|")
		parts = appendRuns(parts, env.Values[loop:])
	} else {
		parts = appendRuns(parts, env.Values)
	}
	if len(env.Release) > 0 {
		parts = append(parts, ">")
		parts = appendRuns(parts, env.Release)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func appendRuns(parts []string, values []int) []string {
	for i := 0; i < len(values); {
		j := i + 1
		for j < len(values) && values[j] == values[i] {
			j++
		}
		s := strconv.Itoa(values[i])
		if n := j - i; n > 1 {
			s += "x" + strconv.Itoa(n)
		}
		parts = append(parts, s)
		i = j
	}
	return parts
}
