package mzmml

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RenderSamples renders song through the software PSG as interleaved stereo.
// seconds <= 0 renders one pass of the longest channel.
func RenderSamples(song *Song, sampleRate int, seconds float64) []float32 {
	if seconds <= 0 {
		seconds = song.DurationMs() / 1000
	}
	frames := int(float64(sampleRate) * seconds)
	out := make([]float32, frames*2)
	song.mixer(sampleRate).Process(out)
	return out
}

// EncodeWAV writes interleaved stereo samples as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
