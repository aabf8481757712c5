// Package audio handles the small amount of PCM work the pipeline needs:
// reading WAV headers, converting uploads to the sample format a
// speech-to-text provider expects, and wrapping raw PCM in a WAV container.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned when the payload is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("not a wav file")

// Format describes PCM audio.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// WAV is a parsed PCM WAV file.
type WAV struct {
	Format Format
	PCM    []byte
}

// ParseWAV reads a RIFF/WAVE payload. Only uncompressed PCM (format tag 1)
// is accepted.
func ParseWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		format   Format
		haveFmt  bool
		pcm      []byte
		havePCM  bool
		position = 12
	)

	for position+8 <= len(data) {
		id := string(data[position : position+4])
		size := int(binary.LittleEndian.Uint32(data[position+4 : position+8]))
		body := position + 8
		end := body + size
		if end > len(data) {
			// Streams written by some encoders leave the data size unset.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, fmt.Errorf("fmt chunk too short (%d bytes)", end-body)
			}
			tag := binary.LittleEndian.Uint16(data[body : body+2])
			if tag != 1 {
				return nil, fmt.Errorf("unsupported wav encoding %d (want PCM)", tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body:end]
			havePCM = true
		}

		// Chunks are word aligned.
		position = end + size%2
	}

	if !haveFmt {
		return nil, fmt.Errorf("wav has no fmt chunk")
	}
	if !havePCM {
		return nil, fmt.Errorf("wav has no data chunk")
	}
	if format.Channels < 1 || format.SampleRate < 1 {
		return nil, fmt.Errorf("invalid wav format: %d channels at %d Hz", format.Channels, format.SampleRate)
	}
	return &WAV{Format: format, PCM: pcm}, nil
}

// PCMToWAV wraps raw little-endian PCM data in a WAV container.
func PCMToWAV(pcm []byte, f Format) []byte {
	bytesPerSample := f.BitsPerSample / 8
	dataLen := len(pcm)
	fileLen := 36 + dataLen // 44-byte header minus 8 bytes for RIFF header = 36

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	// RIFF header
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	// fmt subchunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate*f.Channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.BitsPerSample))

	// data subchunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}
