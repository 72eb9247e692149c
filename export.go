package mzmml

import (
	intdrv "github.com/cbegin/mzmml-go/internal/driver"
	intqdc "github.com/cbegin/mzmml-go/internal/qdc"
)

// ImageSize is the length of the optional PCG picture passed to
// BuildMachineCode: three 8000-byte planes, green, red, then blue.
const ImageSize = intdrv.ImageSize

// BuildMachineCode generates the Z80 driver that plays song on the real
// machine, loaded and started at 0x1200. image may be nil.
func BuildMachineCode(song *Song, image []byte) ([]byte, error) {
	ds := intdrv.Song{
		Volume: song.Volume,
		Pitch:  song.Pitch,
		Image:  image,
	}
	for _, ch := range song.Channels {
		hw := ch.hardware()
		ds.Channels = append(ds.Channels, intdrv.Channel{
			Name:    ch.Name,
			Kind:    hw.kind,
			Port:    hw.port,
			Index:   hw.index,
			Program: ch.Program,
		})
	}
	return intdrv.NewGenerator(ds).Build()
}

// BuildDiskImage wraps machine code in a Quick Disk image named name.
func BuildDiskImage(name string, code []byte) ([]byte, error) {
	return intqdc.Build(name, code)
}

// Export is BuildMachineCode followed by BuildDiskImage.
func Export(song *Song, name string, image []byte) ([]byte, error) {
	code, err := BuildMachineCode(song, image)
	if err != nil {
		return nil, err
	}
	return BuildDiskImage(name, code)
}
