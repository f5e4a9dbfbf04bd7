package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAV format tags
const (
	wavFormatPCM   = 1
	wavFormatMulaw = 7
)

// ErrNotWAV is returned when the input lacks a RIFF/WAVE header
var ErrNotWAV = errors.New("audio: not a WAV file")

// WAV is a decoded RIFF/WAVE file
type WAV struct {
	AudioFormat   uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
	Samples       []int16 // interleaved
}

// Mono returns the samples downmixed to one channel
func (w *WAV) Mono() []int16 {
	return DownmixMono(w.Samples, w.Channels)
}

// ReadWAV decodes 8/16-bit PCM and μ-law WAV data. Chunks other than fmt and
// data are skipped.
func ReadWAV(r io.Reader) (*WAV, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, ErrNotWAV
	}
	if Sniff(riff[:]) != FormatWAV {
		return nil, ErrNotWAV
	}

	w := &WAV{}
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("audio: missing data chunk: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(r, fmtChunk[:]); err != nil {
				return nil, fmt.Errorf("audio: reading fmt chunk: %w", err)
			}
			w.AudioFormat = binary.LittleEndian.Uint16(fmtChunk[0:2])
			w.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			w.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			w.BitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			if err := skip(r, size-16+size%2); err != nil {
				return nil, err
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, errors.New("audio: data chunk before fmt chunk")
			}
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, fmt.Errorf("audio: reading data chunk: %w", err)
			}
			samples, err := decodeWAVData(w, data)
			if err != nil {
				return nil, err
			}
			w.Samples = samples
			return w, nil

		default:
			if err := skip(r, size+size%2); err != nil {
				return nil, err
			}
		}
	}
}

func decodeWAVData(w *WAV, data []byte) ([]int16, error) {
	switch {
	case w.AudioFormat == wavFormatPCM && w.BitsPerSample == 16:
		// Tolerate a truncated final byte
		return BytesToSamples(data[:len(data)&^1])
	case w.AudioFormat == wavFormatPCM && w.BitsPerSample == 8:
		return Unsigned8ToSamples(data), nil
	case w.AudioFormat == wavFormatMulaw && w.BitsPerSample == 8:
		return DecodeMulaw(data), nil
	}
	return nil, fmt.Errorf("audio: unsupported WAV encoding (format %d, %d bits)", w.AudioFormat, w.BitsPerSample)
}

func skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("audio: truncated chunk: %w", err)
	}
	return nil
}

// IsSilentWAV reports whether the WAV file at path carries no frame above the
// RMS threshold. Files that are not decodable WAV report false with ErrNotWAV
// or the decode error, so callers can let the transcriber decide.
func IsSilentWAV(path string, threshold float64) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	w, err := ReadWAV(f)
	if err != nil {
		return false, err
	}
	if len(w.Samples) == 0 {
		return true, nil
	}

	vad := NewVADDetector(SilenceConfig(threshold))
	return !vad.ContainsSpeech(w.Mono(), w.SampleRate), nil
}

// WriteWAV encodes mono 16-bit PCM samples as a canonical WAV file
func WriteWAV(w io.Writer, samples []int16, sampleRate int) error {
	dataSize := uint32(len(samples) * 2)
	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], 1)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(hdr[32:34], 2)
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	data := make([]byte, dataSize)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	_, err := w.Write(data)
	return err
}
