package audio

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Encodings the chunker can produce. Linear16 and the raw platform default
// are both s16le PCM; they differ only in the MIME tag the vendor expects.
const (
	EncodingOpus     = "opus"
	EncodingLinear16 = "linear16"
	EncodingPCM      = "pcm_s16le"
)

const (
	mimeOpus = "audio/opus"
	mimePCM  = "audio/l16"

	opusFrameMs = 20
)

// encodingPreference is the fixed selection order: opus first, the vendor's
// linear fallback second, the raw platform default last.
var encodingPreference = []string{EncodingOpus, EncodingLinear16, EncodingPCM}

// SelectEncoding picks the first encoding from the preference order that both
// the platform and the chosen strategy support. vendorAccepts lists what the
// strategy's transport can consume; opusAvailable reports whether the opus
// encoder can be constructed on this platform.
func SelectEncoding(vendorAccepts []string, opusAvailable bool) string {
	accepted := make(map[string]bool, len(vendorAccepts))
	for _, enc := range vendorAccepts {
		accepted[enc] = true
	}

	for _, enc := range encodingPreference {
		if enc == EncodingOpus && !opusAvailable {
			continue
		}
		if accepted[enc] {
			return enc
		}
	}
	return EncodingPCM
}

// MIMEFor returns the codec tag attached to chunks of the given encoding.
func MIMEFor(encoding string) string {
	if encoding == EncodingOpus {
		return mimeOpus
	}
	return mimePCM
}

// chunkEncoder turns buffered s16le PCM into one wire chunk. Implementations
// may retain a tail of the input that does not fill a whole codec frame.
type chunkEncoder interface {
	encode(pcm []byte) ([]byte, error)
}

func newChunkEncoder(encoding string, sampleRate, channels int) (chunkEncoder, error) {
	if encoding == EncodingOpus {
		return newOpusChunkEncoder(sampleRate, channels)
	}
	return rawEncoder{}, nil
}

// rawEncoder passes PCM through untouched (linear16 / platform default).
type rawEncoder struct{}

func (rawEncoder) encode(pcm []byte) ([]byte, error) {
	return pcm, nil
}

// opusChunkEncoder encodes 20ms opus frames. Each chunk carries a sequence
// of packets, every packet prefixed by a 2-byte big-endian length. PCM that
// does not fill a whole frame is held back for the next chunk.
type opusChunkEncoder struct {
	enc        *gopus.Encoder
	channels   int
	frameBytes int
	tail       []byte
}

func newOpusChunkEncoder(sampleRate, channels int) (*opusChunkEncoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	samplesPerFrame := sampleRate * opusFrameMs / 1000
	return &opusChunkEncoder{
		enc:        enc,
		channels:   channels,
		frameBytes: samplesPerFrame * channels * 2,
	}, nil
}

func (e *opusChunkEncoder) encode(pcm []byte) ([]byte, error) {
	input := append(e.tail, pcm...)
	e.tail = nil

	var out []byte
	for len(input) >= e.frameBytes {
		frame := bytesToInt16s(input[:e.frameBytes])
		input = input[e.frameBytes:]

		packet, err := e.enc.Encode(frame, len(frame)/e.channels, e.frameBytes)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		var prefix [2]byte
		binary.BigEndian.PutUint16(prefix[:], uint16(len(packet)))
		out = append(out, prefix[:]...)
		out = append(out, packet...)
	}

	if len(input) > 0 {
		e.tail = append(e.tail, input...)
	}
	return out, nil
}

func bytesToInt16s(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}
