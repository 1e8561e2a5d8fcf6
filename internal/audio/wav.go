package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// EncodeWAV wraps samples as a 16-bit PCM RIFF/WAVE file.
func EncodeWAV(f Frame) []byte {
	channels := f.Channels
	if channels <= 0 {
		channels = 1
	}
	pcm := ToPCM16(f.Samples)
	const bitsPerSample = 16
	byteRate := uint32(f.SampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))

	buf := &bytes.Buffer{}
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

var errNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// DecodeWAV parses a RIFF/WAVE file carrying 16-bit PCM or 32-bit float
// samples. Unknown chunks are skipped.
func DecodeWAV(data []byte) (Frame, error) {
	r := bytes.NewReader(data)
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, errNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Frame{}, errNotWAV
	}

	var (
		format     uint16
		channels   uint16
		sampleRate uint32
		bits       uint16
		haveFmt    bool
	)
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return Frame{}, fmt.Errorf("audio: wav missing data chunk")
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return Frame{}, fmt.Errorf("audio: wav truncated: %w", err)
		}
		switch string(id[:]) {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil || size < 16 {
				return Frame{}, fmt.Errorf("audio: wav fmt chunk truncated")
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			sampleRate = binary.LittleEndian.Uint32(body[4:8])
			bits = binary.LittleEndian.Uint16(body[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return Frame{}, fmt.Errorf("audio: wav data before fmt")
			}
			if int(size) > r.Len() {
				size = uint32(r.Len())
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Frame{}, fmt.Errorf("audio: wav data truncated: %w", err)
			}
			f := Frame{SampleRate: int(sampleRate), Channels: int(channels)}
			switch {
			case format == 1 && bits == 16:
				f.Samples = FromPCM16(body)
			case format == 3 && bits == 32:
				f.Samples = make([]float32, len(body)/4)
				for i := range f.Samples {
					f.Samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
				}
			default:
				return Frame{}, fmt.Errorf("audio: unsupported wav encoding format=%d bits=%d", format, bits)
			}
			return f, nil
		default:
			if _, err := r.Seek(int64(size+size%2), io.SeekCurrent); err != nil {
				return Frame{}, fmt.Errorf("audio: wav skip chunk: %w", err)
			}
		}
	}
}
