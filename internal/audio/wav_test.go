package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tone(n int, amplitude int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return samples
}

func writeTestWAV(t *testing.T, samples []int16, rate int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteWAV(&buf, samples, rate); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestReadWAV_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	samples := tone(16000, 1200)
	if err := WriteWAV(&buf, samples, 16000); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	w, err := ReadWAV(&buf)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if w.Channels != 1 || w.SampleRate != 16000 || w.BitsPerSample != 16 {
		t.Errorf("Unexpected header: %+v", w)
	}
	if len(w.Samples) != len(samples) || w.Samples[0] != 1200 || w.Samples[1] != -1200 {
		t.Errorf("Samples did not round-trip")
	}
}

func TestReadWAV_SkipsUnknownChunks(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.WriteString("WAVE")
	// LIST chunk with odd size gets a pad byte
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{1, 2, 3, 0})
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatMulaw))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(8))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(2))
	buf.Write([]byte{0xFF, 0x00})

	w, err := ReadWAV(&buf)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if len(w.Samples) != 2 || w.Samples[0] != 0 || w.Samples[1] >= 0 {
		t.Errorf("Unexpected μ-law samples: %v", w.Samples)
	}
}

func TestReadWAV_Errors(t *testing.T) {
	if _, err := ReadWAV(bytes.NewReader([]byte("ID3 not a wav file"))); !errors.Is(err, ErrNotWAV) {
		t.Errorf("Expected ErrNotWAV, got %v", err)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF\x00\x00\x00\x00WAVE")
	if _, err := ReadWAV(&buf); err == nil {
		t.Error("Expected error for WAV without chunks")
	}
}

func TestIsSilentWAV(t *testing.T) {
	silent := writeTestWAV(t, make([]int16, 8000), 8000)
	isSilent, err := IsSilentWAV(silent, 30)
	if err != nil {
		t.Fatalf("IsSilentWAV failed: %v", err)
	}
	if !isSilent {
		t.Error("Expected all-zero recording to be silent")
	}

	voiced := writeTestWAV(t, tone(8000, 3000), 8000)
	isSilent, err = IsSilentWAV(voiced, 30)
	if err != nil {
		t.Fatalf("IsSilentWAV failed: %v", err)
	}
	if isSilent {
		t.Error("Expected loud recording not to be silent")
	}
}

func TestIsSilentWAV_NotWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	os.WriteFile(path, []byte("ID3\x04\x00\x00"), 0o644)

	isSilent, err := IsSilentWAV(path, 30)
	if !errors.Is(err, ErrNotWAV) || isSilent {
		t.Errorf("Expected ErrNotWAV and not silent, got %v %v", isSilent, err)
	}
}
