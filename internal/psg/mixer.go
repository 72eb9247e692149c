package psg

import (
	"math"
	"sync"
	"sync/atomic"
)

type channel struct {
	name    string
	vm      *VM
	active  atomic.Bool
	scratch []float32
}

// Mixer sums channel VMs into an interleaved stereo stream. Process runs on
// the audio thread; SetActive and SetMasterGain may be called from any goroutine.
type Mixer struct {
	mu         sync.Mutex
	channels   []*channel
	masterGain uint64
	metronome  *Metronome
}

func NewMixer() *Mixer {
	return &Mixer{masterGain: math.Float64bits(1)}
}

// Add registers a channel. Channels start active.
func (m *Mixer) Add(name string, vm *VM) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := &channel{name: name, vm: vm}
	ch.active.Store(true)
	m.channels = append(m.channels, ch)
}

// SetActive mutes or unmutes a channel without touching its VM state.
func (m *Mixer) SetActive(name string, active bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, ch := range m.channels {
		if ch.name == name {
			ch.active.Store(active)
			found = true
		}
	}
	return found
}

func (m *Mixer) Active(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.name == name {
			return ch.active.Load()
		}
	}
	return false
}

func (m *Mixer) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	atomic.StoreUint64(&m.masterGain, math.Float64bits(gain))
}

func (m *Mixer) masterGainValue() float64 {
	return math.Float64frombits(atomic.LoadUint64(&m.masterGain))
}

func (m *Mixer) SetMetronome(met *Metronome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metronome = met
}

// Process fills dst with interleaved stereo frames.
func (m *Mixer) Process(dst []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	frames := len(dst) / 2
	for i := range dst {
		dst[i] = 0
	}
	gain := float32(m.masterGainValue())
	for _, ch := range m.channels {
		if cap(ch.scratch) < frames {
			ch.scratch = make([]float32, frames)
		}
		buf := ch.scratch[:frames]
		ch.vm.Render(buf)
		if !ch.active.Load() {
			continue
		}
		for i, s := range buf {
			dst[2*i] += s
		}
	}
	for i := 0; i < frames; i++ {
		s := dst[2*i] * gain
		if m.metronome != nil {
			s += m.metronome.next()
		}
		s = clip(s)
		dst[2*i], dst[2*i+1] = s, s
	}
}

// Finished reports whether every channel has run off its END.
func (m *Mixer) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if !ch.vm.Ended() {
			return false
		}
	}
	return len(m.channels) > 0
}

func clip(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
