// Package hw holds the register arithmetic of the MZ-1500 sound hardware:
// two SN76489 PSGs and the 8253 counter that drives the beeper.
package hw

import (
	"math"

	"golang.org/x/exp/constraints"
)

const (
	// PSGClock is the SN76489 tone clock (3.579545 MHz / 32): freq = PSGClock / register.
	PSGClock = 111860.0
	// AuxClock is the 8253 counter 0 input clock.
	AuxClock = 1108800.0

	MaxToneRegister = (1 << 10) - 1
	// MaxAuxRegister keeps the high byte below the 0xFE/0xFF table sentinels.
	MaxAuxRegister = 0xFDFF

	MaxVolume   = 15
	Silent      = 15 // attenuation value that mutes a channel
	NoiseSelect = 3  // channel-select index of the noise generator

	FrameRate = 60
)

// Ports of the two PSGs and the memory-mapped 8253.
const (
	PSG1Port      byte   = 0xF2
	PSG2Port      byte   = 0xF3
	Timer0Data    uint16 = 0xE004
	Timer1Data    uint16 = 0xE005
	Timer2Data    uint16 = 0xE006
	TimerControl  uint16 = 0xE007
	BeeperGate    uint16 = 0xE008
	InterruptMask uint16 = 0xE003
)

type NoiseMode int

const (
	PeriodicNoise NoiseMode = iota
	WhiteNoise
)

// NoiseRate selects the noise shift clock: N/512, N/1024, N/2048 or tone 2.
type NoiseRate int

const (
	NoiseRateHigh NoiseRate = iota
	NoiseRateMid
	NoiseRateLow
	NoiseRateTone2
)

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ToneRegister converts a frequency to a PSG divider. Frequencies too low for
// the 10-bit field are raised by octaves until they fit.
func ToneRegister(freq float64) int {
	if freq <= 0 {
		return MaxToneRegister
	}
	for PSGClock/freq > MaxToneRegister {
		freq *= 2
	}
	return Clamp(int(math.Round(PSGClock/freq)), 1, MaxToneRegister)
}

// AuxRegister converts a frequency to an 8253 counter 0 divider.
func AuxRegister(freq float64) int {
	if freq <= 0 {
		return MaxAuxRegister
	}
	return Clamp(int(math.Round(AuxClock/freq)), 1, MaxAuxRegister)
}

// RegisterFrequency is the inverse of ToneRegister/AuxRegister.
func RegisterFrequency(reg int, aux bool) float64 {
	if reg <= 0 {
		reg = 1
	}
	if aux {
		return AuxClock / float64(reg)
	}
	return PSGClock / float64(reg)
}

// NoiseShiftFrequency is the LFSR clock for a fixed noise rate.
func NoiseShiftFrequency(rate NoiseRate) float64 {
	switch rate {
	case NoiseRateHigh:
		return PSGClock / 16
	case NoiseRateMid:
		return PSGClock / 32
	default:
		return PSGClock / 64
	}
}

// NoiseRateFor buckets a note frequency into one of the three fixed rates.
func NoiseRateFor(freq float64) NoiseRate {
	switch {
	case freq >= 350:
		return NoiseRateHigh
	case freq >= 300:
		return NoiseRateMid
	default:
		return NoiseRateLow
	}
}

// Attenuation turns an MML volume (0-15, 15 loudest) into a PSG attenuation.
func Attenuation(volume int) int {
	return Silent - Clamp(volume, 0, MaxVolume)
}

func ToneBytes(channel int, reg int) (byte, byte) {
	return byte(0x80 | (channel&0x03)<<5 | reg&0x0F), byte((reg >> 4) & 0x3F)
}

// ToneFromBytes decodes the latch/data pair written by ToneBytes.
func ToneFromBytes(b1, b2 byte) int {
	return int(b1&0x0F) | int(b2&0x3F)<<4
}

func VolumeByte(channel int, atten int) byte {
	return byte(0x90 | (channel&0x03)<<5 | atten&0x0F)
}

func NoiseByte(mode NoiseMode, rate NoiseRate) byte {
	fb := 0
	if mode == WhiteNoise {
		fb = 1
	}
	return byte(0x80 | NoiseSelect<<5 | fb<<2 | int(rate)&0x03)
}

// DecodeNoiseByte splits a noise control byte into feedback mode and rate.
func DecodeNoiseByte(b byte) (NoiseMode, NoiseRate) {
	mode := PeriodicNoise
	if b&0x04 != 0 {
		mode = WhiteNoise
	}
	return mode, NoiseRate(b & 0x03)
}
