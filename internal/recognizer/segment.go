package recognizer

import (
	"encoding/binary"
	"math"
)

type segmenterConfig struct {
	sampleRate          int
	channels            int
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// segmenter accumulates speech PCM and decides when an utterance is
// complete: either enough consecutive silence has followed speech, or the
// buffer has hit its duration cap during continuous speech.
type segmenter struct {
	cfg segmenterConfig

	buffer    []byte
	hadSpeech bool
	silenceMs int

	bytesPerMs     int
	maxBufferBytes int
}

func newSegmenter(cfg segmenterConfig) *segmenter {
	bytesPerMs := cfg.sampleRate * cfg.channels * 2 / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	return &segmenter{
		cfg:            cfg,
		bytesPerMs:     bytesPerMs,
		maxBufferBytes: cfg.maxBufferDurationMs * bytesPerMs,
	}
}

// feed absorbs one PCM chunk and reports whether the accumulated utterance
// should be flushed to inference now.
func (g *segmenter) feed(chunk []byte) bool {
	rms := computeRMS(chunk)
	chunkMs := len(chunk) / g.bytesPerMs

	if rms < g.cfg.rmsThreshold {
		if !g.hadSpeech {
			return false
		}
		g.silenceMs += chunkMs
		g.buffer = append(g.buffer, chunk...)
		return g.silenceMs >= g.cfg.silenceThresholdMs
	}

	g.hadSpeech = true
	g.silenceMs = 0
	g.buffer = append(g.buffer, chunk...)
	return g.maxBufferBytes > 0 && len(g.buffer) >= g.maxBufferBytes
}

// take returns the buffered utterance and resets the segmenter. Buffers that
// never contained speech are discarded.
func (g *segmenter) take() []byte {
	pcm := g.buffer
	hadSpeech := g.hadSpeech

	g.buffer = nil
	g.hadSpeech = false
	g.silenceMs = 0

	if !hadSpeech {
		return nil
	}
	return pcm
}

// computeRMS returns the root-mean-square energy of s16le PCM.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}

// pcmToFloat32Mono converts s16le PCM to mono float32 samples in [-1, 1],
// averaging channels per frame when the input is multi-channel.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		n := len(pcm) / 2
		samples := make([]float32, n)
		for i := range n {
			sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
			samples[i] = float32(sample) / 32768.0
		}
		return samples
	}

	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
