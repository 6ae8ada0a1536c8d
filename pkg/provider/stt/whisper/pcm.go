package whisper

import (
	"encoding/binary"
	"math"
)

// modelRate is the only sample rate whisper.cpp accepts.
const modelRate = 16000

// speechRMS is the normalised RMS level above which a chunk counts as speech.
const speechRMS = 0.02

// toMonoFloat32 converts interleaved 16-bit little-endian PCM into mono
// samples in [-1, 1], averaging channels. A trailing partial frame is dropped.
func toMonoFloat32(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			off := (i*channels + c) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[off:]))) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// rms returns the normalised root mean square level of a PCM chunk.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// durationMs is the playback length of a PCM chunk.
func durationMs(pcm []byte, sampleRate, channels int) int {
	bytesPerSec := sampleRate * channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return len(pcm) * 1000 / bytesPerSec
}

// resample converts mono samples from srcRate to dstRate by linear
// interpolation. Equal or invalid rates return the input unchanged.
func resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := samples[idx]
		if idx+1 < len(samples) {
			next = samples[idx+1]
		}
		out[i] = samples[idx]*(1-frac) + next*frac
	}
	return out
}
