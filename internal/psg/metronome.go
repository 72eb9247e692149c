package psg

import "math"

const (
	clickHz        = 1000.0
	clickMs        = 30.0
	clickAmplitude = 0.5
)

// Metronome plays a short decaying sine click at each beat time.
type Metronome struct {
	beats      []float64
	sampleRate float64
	pos        int64
	beat       int
	remaining  float64
	phase      float64
	loopStart  float64
	loopEnd    float64
	offset     float64
}

// NewMetronome clicks at beats (ms). When loopStartMs >= 0, beats from the
// loop start onward repeat every loopEndMs-loopStartMs.
func NewMetronome(beats []float64, sampleRate int, loopStartMs, loopEndMs float64) *Metronome {
	return &Metronome{
		beats:      beats,
		sampleRate: float64(sampleRate),
		loopStart:  loopStartMs,
		loopEnd:    loopEndMs,
	}
}

func (m *Metronome) next() float32 {
	nowMs := float64(m.pos)*1000/m.sampleRate - m.offset
	m.pos++
	if m.beat >= len(m.beats) && m.loopStart >= 0 && m.loopEnd > m.loopStart && nowMs >= m.loopEnd {
		m.offset += m.loopEnd - m.loopStart
		nowMs -= m.loopEnd - m.loopStart
		m.beat = 0
		for m.beat < len(m.beats) && m.beats[m.beat] < m.loopStart {
			m.beat++
		}
	}
	if m.beat < len(m.beats) && nowMs >= m.beats[m.beat] {
		m.beat++
		m.remaining = clickMs
		m.phase = 0
	}
	if m.remaining <= 0 {
		return 0
	}
	env := m.remaining / clickMs
	s := math.Sin(2*math.Pi*m.phase) * clickAmplitude * env * env
	m.phase += clickHz / m.sampleRate
	m.remaining -= 1000 / m.sampleRate
	return float32(s)
}
