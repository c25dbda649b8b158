package live

import (
	"math"
	"testing"
	"time"
)

func TestCalculateRMSEnergy(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		expected float64
	}{
		{
			name:     "silence",
			samples:  []int16{0, 0, 0, 0},
			expected: 0.0,
		},
		{
			name:     "max amplitude",
			samples:  []int16{32767, 32767, 32767, 32767},
			expected: 1.0,
		},
		{
			name:     "half amplitude",
			samples:  []int16{16384, 16384, 16384, 16384},
			expected: 0.5,
		},
		{
			name:     "mixed signal",
			samples:  []int16{16384, -16384, 16384, -16384},
			expected: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Convert samples to PCM bytes
			pcm := make([]byte, len(tt.samples)*2)
			for i, s := range tt.samples {
				pcm[i*2] = byte(s & 0xFF)
				pcm[i*2+1] = byte((s >> 8) & 0xFF)
			}

			result := CalculateRMSEnergy(pcm)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("expected RMS %.3f, got %.3f", tt.expected, result)
			}
		})
	}
}

func TestCalculatePeakAmplitude(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		expected float64
	}{
		{
			name:     "silence",
			samples:  []int16{0, 0, 0, 0},
			expected: 0.0,
		},
		{
			name:     "positive peak",
			samples:  []int16{0, 16384, 0, 0},
			expected: 0.5,
		},
		{
			name:     "negative peak",
			samples:  []int16{0, -32768, 0, 0},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := make([]byte, len(tt.samples)*2)
			for i, s := range tt.samples {
				pcm[i*2] = byte(s & 0xFF)
				pcm[i*2+1] = byte((s >> 8) & 0xFF)
			}

			result := CalculatePeakAmplitude(pcm)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("expected peak %.3f, got %.3f", tt.expected, result)
			}
		})
	}
}

func TestEncodeDecodePCM16RoundTrip(t *testing.T) {
	samples := make([]float64, 256)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * float64(i) / 64)
	}

	decoded := DecodePCM16(EncodePCM16(samples))
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		// One int16 quantization step of tolerance.
		if math.Abs(decoded[i]-samples[i]) > 1.0/32767 {
			t.Errorf("sample %d: expected %.6f, got %.6f", i, samples[i], decoded[i])
		}
	}
}

func TestEncodePCM16ClampsOutOfRange(t *testing.T) {
	pcm := EncodePCM16([]float64{2.0, -2.0})
	decoded := DecodePCM16(pcm)
	if decoded[0] < 0.99 {
		t.Errorf("expected positive clamp near 1.0, got %.4f", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Errorf("expected negative clamp near -1.0, got %.4f", decoded[1])
	}
}

func TestBase64RoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x80, 0xFF}
	got, err := DecodeBase64(EncodeBase64(pcm))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != string(pcm) {
		t.Errorf("round trip mismatch: %v != %v", got, pcm)
	}
}

func TestDownsample(t *testing.T) {
	tests := []struct {
		name     string
		in       []float64
		from, to int
		wantLen  int
	}{
		{
			name:    "48k to 16k",
			in:      make([]float64, 4800),
			from:    48000,
			to:      16000,
			wantLen: 1600,
		},
		{
			name:    "identity when rates match",
			in:      make([]float64, 100),
			from:    16000,
			to:      16000,
			wantLen: 100,
		},
		{
			name:    "non-integral ratio passes through",
			in:      make([]float64, 100),
			from:    44100,
			to:      16000,
			wantLen: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downsample(tt.in, tt.from, tt.to)
			if len(got) != tt.wantLen {
				t.Errorf("expected %d samples, got %d", tt.wantLen, len(got))
			}
		})
	}
}

func TestDownsampleAverages(t *testing.T) {
	// 3:1 decimation of a constant signal keeps the value.
	in := []float64{0.5, 0.5, 0.5, -0.2, -0.2, -0.2}
	got := Downsample(in, 48000, 16000)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if math.Abs(got[0]-0.5) > 1e-9 || math.Abs(got[1]+0.2) > 1e-9 {
		t.Errorf("unexpected averages: %v", got)
	}
}

func TestFrames(t *testing.T) {
	samples := make([]float64, DefaultFrameSize*2+100)
	frames := Frames(samples, DefaultFrameSize)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if len(f) != DefaultFrameSize {
			t.Errorf("frame %d: expected %d samples, got %d", i, DefaultFrameSize, len(f))
		}
	}
}

func TestDurationOfPCM(t *testing.T) {
	// One second of 24kHz 16-bit mono is 48000 bytes.
	if d := DurationOfPCM(48000, 24000); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}
	if d := DurationOfPCM(0, 24000); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}
