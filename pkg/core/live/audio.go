package live

import (
	"encoding/base64"
	"math"
	"time"
)

// DefaultFrameSize is the number of samples per captured audio frame.
const DefaultFrameSize = 4096

// EncodePCM16 converts normalized float samples to 16-bit signed
// little-endian PCM. Samples are clamped to [-1, 1] before scaling.
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM to normalized
// float samples. A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float64(sample) / 32768.0
	}
	return out
}

// EncodeBase64 wraps PCM bytes for a JSON wire frame.
func EncodeBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeBase64 unwraps a wire frame back to PCM bytes.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Downsample reduces the sample rate by block-averaging. The ratio must be
// integral; when the rates match the input is returned unchanged.
func Downsample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return samples
	}
	ratio := fromRate / toRate
	if ratio < 1 || fromRate%toRate != 0 {
		return samples
	}
	n := len(samples) / ratio
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < ratio; j++ {
			sum += samples[i*ratio+j]
		}
		out[i] = sum / float64(ratio)
	}
	return out
}

// Frames splits samples into fixed-size frames, dropping the trailing
// remainder shorter than frameSize.
func Frames(samples []float64, frameSize int) [][]float64 {
	if frameSize <= 0 {
		return nil
	}
	n := len(samples) / frameSize
	out := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, samples[i*frameSize:(i+1)*frameSize])
	}
	return out
}

// DurationOf returns the playback duration of a sample count at a rate.
func DurationOf(sampleCount, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(sampleCount) * time.Second / time.Duration(sampleRate)
}

// DurationOfPCM returns the playback duration of 16-bit mono PCM bytes.
func DurationOfPCM(pcmBytes, sampleRate int) time.Duration {
	return DurationOf(pcmBytes/2, sampleRate)
}

// CalculateRMSEnergy computes the root-mean-square energy of PCM audio.
// Input is assumed to be 16-bit signed little-endian PCM.
// Returns a value between 0.0 and 1.0.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// CalculatePeakAmplitude returns the maximum absolute amplitude in the PCM data.
// Returns a value between 0.0 and 1.0.
func CalculatePeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// Use float64 to avoid overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}
