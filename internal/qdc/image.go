// Package qdc writes MZ-1500 Quick Disk images holding one executable.
package qdc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/japanese"

	"github.com/cbegin/mzmml-go/internal/translate"
)

const (
	// FileSize is the size of every image.
	FileSize = 81936
	// Capacity is the largest executable the data block holds.
	Capacity = 0xBE00

	LoadAddress = 0x1200
	ExecAddress = 0x1200

	signature     = "-QD format-"
	headerGap     = 0x12DA
	syncByte      = 0x16
	syncLength    = 10
	blockStart    = 0xA5
	nameLength    = 16
	namePad       = 0x0D
	fileTypeObj   = 0x01
	headerLength  = 0x44
	dataLength    = 0xBE04
	infoGap       = 0xAEB
	dataGap       = 0xFF
	dataBlockType = 0x05
)

var ErrFileName = errors.New(translate.From("file name cannot be encoded"))

// CapacityError reports an executable larger than the data block.
type CapacityError struct {
	Size int
}

func (e *CapacityError) Error() string {
	return translate.From("machine code is %d bytes; capacity is %d bytes", e.Size, Capacity)
}

// Build lays out the signature, the info, header and data blocks with
// their sync runs and gaps, and zero-fills the rest of the image. Each
// block is followed by its own checksum.
func Build(name string, code []byte) ([]byte, error) {
	if len(code) > Capacity {
		return nil, &CapacityError{Size: len(code)}
	}
	fileName, err := encodeName(name)
	if err != nil {
		return nil, err
	}

	var img bytes.Buffer
	img.Grow(FileSize)
	img.WriteString(signature)
	fill(&img, 0xFF, 5)
	fill(&img, 0, headerGap)

	sync(&img)
	block(&img, []byte{blockStart, 2})
	sync(&img)
	fill(&img, 0, infoGap)

	img.WriteByte(0)
	sync(&img)
	header := []byte{blockStart, 0x00, 0x40, 0x00, fileTypeObj}
	header = append(header, fileName...)
	header = append(header, 0, 0)
	header = binary.LittleEndian.AppendUint16(header, Capacity)
	header = binary.LittleEndian.AppendUint16(header, LoadAddress)
	header = binary.LittleEndian.AppendUint16(header, ExecAddress)
	header = pad(header, headerLength)
	block(&img, header)
	sync(&img)

	fill(&img, 0, dataGap)

	sync(&img)
	data := make([]byte, 0, dataLength)
	data = append(data, blockStart, dataBlockType)
	data = binary.LittleEndian.AppendUint16(data, Capacity)
	data = append(data, code...)
	data = pad(data, dataLength)
	block(&img, data)
	sync(&img)

	out := img.Bytes()
	return pad(out, FileSize), nil
}

// encodeName converts name to Shift-JIS, keeping as many whole characters
// as fit in 16 bytes, and pads it with CR plus one more CR as terminator.
func encodeName(name string) ([]byte, error) {
	enc := japanese.ShiftJIS.NewEncoder()
	out := make([]byte, 0, nameLength+1)
	for _, r := range name {
		b, err := enc.Bytes([]byte(string(r)))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrFileName, name)
		}
		if len(out)+len(b) > nameLength {
			break
		}
		out = append(out, b...)
	}
	for len(out) <= nameLength {
		out = append(out, namePad)
	}
	return out, nil
}

func block(img *bytes.Buffer, b []byte) {
	img.Write(b)
	var crc [2]byte
	binary.LittleEndian.PutUint16(crc[:], Checksum(b))
	img.Write(crc[:])
}

func sync(img *bytes.Buffer) { fill(img, syncByte, syncLength) }

func fill(img *bytes.Buffer, v byte, n int) {
	for i := 0; i < n; i++ {
		img.WriteByte(v)
	}
}

func pad(b []byte, n int) []byte {
	for len(b) < n {
		b = append(b, 0)
	}
	return b
}

// Checksum is CRC-16 with the reflected polynomial 0xA001 and initial value 0.
func Checksum(b []byte) uint16 {
	var crc uint16
	for _, v := range b {
		crc ^= uint16(v)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
