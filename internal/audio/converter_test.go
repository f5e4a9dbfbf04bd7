package audio

import (
	"math"
	"testing"
)

func TestBytesToSamples(t *testing.T) {
	samples, err := BytesToSamples([]byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80})
	if err != nil {
		t.Fatalf("BytesToSamples failed: %v", err)
	}

	expected := []int16{0, 32767, -32768}
	if len(samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(samples))
	}
	for i, exp := range expected {
		if samples[i] != exp {
			t.Errorf("Expected sample %d at index %d, got %d", exp, i, samples[i])
		}
	}

	if _, err := BytesToSamples([]byte{0x01}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestUnsigned8ToSamples(t *testing.T) {
	samples := Unsigned8ToSamples([]byte{128, 0, 255})
	if samples[0] != 0 {
		t.Errorf("Expected midpoint 128 to decode as 0, got %d", samples[0])
	}
	if samples[1] != -32768 {
		t.Errorf("Expected 0 to decode as -32768, got %d", samples[1])
	}
	if samples[2] <= 0 {
		t.Errorf("Expected 255 to decode positive, got %d", samples[2])
	}
}

func TestDecodeMulaw(t *testing.T) {
	// 0xFF and 0x7F are μ-law encodings of (near) zero
	samples := DecodeMulaw([]byte{0xFF, 0x7F, 0x00, 0x80})
	if len(samples) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(samples))
	}
	if samples[0] != 0 || samples[1] != 0 {
		t.Errorf("Expected silence codes to decode to 0, got %d and %d", samples[0], samples[1])
	}
	if samples[2] >= 0 || samples[3] <= 0 {
		t.Errorf("Expected extreme codes to decode with opposite signs, got %d and %d", samples[2], samples[3])
	}
}

func TestDownmixMono(t *testing.T) {
	mono := DownmixMono([]int16{100, 300, -200, 200}, 2)
	if len(mono) != 2 || mono[0] != 200 || mono[1] != 0 {
		t.Errorf("Expected [200 0], got %v", mono)
	}

	same := []int16{1, 2, 3}
	if got := DownmixMono(same, 1); len(got) != 3 {
		t.Errorf("Expected mono input unchanged, got %v", got)
	}
}

func TestResample(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = int16(i * 100)
	}

	// Resample from 8kHz to 16kHz (should double)
	resampled := resample(samples, 8000, 16000)
	if len(resampled) < 180 || len(resampled) > 220 {
		t.Errorf("Expected resampled length around 200, got %d", len(resampled))
	}

	// Resample from 16kHz to 8kHz (should halve)
	resampled2 := resample(samples, 16000, 8000)
	if len(resampled2) < 40 || len(resampled2) > 60 {
		t.Errorf("Expected resampled length around 50, got %d", len(resampled2))
	}

	// Same rate should return unchanged
	resampled3 := resample(samples, 8000, 8000)
	if len(resampled3) != len(samples) {
		t.Errorf("Expected unchanged length %d, got %d", len(samples), len(resampled3))
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	rms := CalculateRMS(samples)

	// Expected RMS: sqrt((1000^2 + 1000^2 + 2000^2 + 2000^2) / 4)
	expected := math.Sqrt((1000000 + 1000000 + 4000000 + 4000000) / 4.0)
	if math.Abs(rms-expected) > 0.1 {
		t.Errorf("Expected RMS %.2f, got %.2f", expected, rms)
	}
}

func TestCalculateRMS_Empty(t *testing.T) {
	if rms := CalculateRMS([]int16{}); rms != 0.0 {
		t.Errorf("Expected RMS 0.0 for empty slice, got %.2f", rms)
	}
}
