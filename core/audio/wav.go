package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrInvalidWAV = errors.New("invalid wav")

const (
	wavHeaderSize  = 44
	wavFormatPCM   = 1
	wavFormatALaw  = 6
	wavFormatMulaw = 7
	wavFmtChunkLen = 16
)

// EncodeWAV writes pcm as a canonical 44 byte header RIFF/WAVE file. Only
// linear16 audio can be encoded.
func EncodeWAV(w io.Writer, info EncodingInfo, pcm []byte) error {
	if info.Format != EncodingLinear16 {
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidWAV, info.Format.Name())
	}
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return fmt.Errorf("%w: channels and sample rate must be positive", ErrInvalidWAV)
	}
	if len(pcm)%info.BytesPerFrame() != 0 {
		return fmt.Errorf("%w: pcm length %d does not align to frames", ErrInvalidWAV, len(pcm))
	}

	bitsPerSample := info.Format.ByteSize() * 8
	blockAlign := info.BytesPerFrame()

	header := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	header.WriteString("RIFF")
	_ = binary.Write(header, binary.LittleEndian, uint32(wavHeaderSize-8+len(pcm)))
	header.WriteString("WAVE")

	header.WriteString("fmt ")
	_ = binary.Write(header, binary.LittleEndian, uint32(wavFmtChunkLen))
	_ = binary.Write(header, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(header, binary.LittleEndian, uint16(info.Channels))
	_ = binary.Write(header, binary.LittleEndian, uint32(info.SampleRate))
	_ = binary.Write(header, binary.LittleEndian, uint32(info.SampleRate*blockAlign))
	_ = binary.Write(header, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(header, binary.LittleEndian, uint16(bitsPerSample))

	header.WriteString("data")
	_ = binary.Write(header, binary.LittleEndian, uint32(len(pcm)))

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// DecodeWAV reads a 16 bit PCM, A-law or mu-law WAV file and returns its
// encoding and the content of the data chunk. Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (EncodingInfo, []byte, error) {
	if len(data) < 12 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return EncodingInfo{}, nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var info EncodingInfo
	var haveFmt bool
	i := 12
	for i+8 <= len(data) {
		id := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		body := i + 8
		next := body + size
		if next > len(data) {
			if id == "data" {
				// Streamed files often carry a placeholder size.
				next = len(data)
			} else {
				return EncodingInfo{}, nil, fmt.Errorf("%w: chunk %q exceeds buffer", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < wavFmtChunkLen {
				return EncodingInfo{}, nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format, err := wavEncodingFormat(binary.LittleEndian.Uint16(data[body:]), binary.LittleEndian.Uint16(data[body+14:]))
			if err != nil {
				return EncodingInfo{}, nil, err
			}
			info = EncodingInfo{
				Channels:   int(binary.LittleEndian.Uint16(data[body+2:])),
				SampleRate: int(binary.LittleEndian.Uint32(data[body+4:])),
				Format:     format,
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return EncodingInfo{}, nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			return info, data[body:next], nil
		}

		if size%2 != 0 {
			next++
		}
		i = next
	}

	return EncodingInfo{}, nil, fmt.Errorf("%w: data chunk not found", ErrInvalidWAV)
}

func wavEncodingFormat(code, bits uint16) (encodingFormat, error) {
	switch {
	case code == wavFormatPCM && bits == 16:
		return EncodingLinear16, nil
	case code == wavFormatMulaw && bits == 8:
		return EncodingMulaw, nil
	case code == wavFormatALaw && bits == 8:
		return EncodingALaw, nil
	}
	return "", fmt.Errorf("%w: unsupported format %d with %d bits per sample", ErrInvalidWAV, code, bits)
}
