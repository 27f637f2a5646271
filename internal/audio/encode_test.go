package audio

import "testing"

func TestSelectEncodingPrefersOpus(t *testing.T) {
	t.Parallel()

	got := SelectEncoding([]string{EncodingLinear16, EncodingOpus}, true)
	if got != EncodingOpus {
		t.Fatalf("expected opus, got %q", got)
	}
}

func TestSelectEncodingFallsBackWhenOpusUnavailable(t *testing.T) {
	t.Parallel()

	got := SelectEncoding([]string{EncodingOpus, EncodingLinear16}, false)
	if got != EncodingLinear16 {
		t.Fatalf("expected linear16, got %q", got)
	}
}

func TestSelectEncodingPlatformDefaultLast(t *testing.T) {
	t.Parallel()

	got := SelectEncoding([]string{"mulaw"}, true)
	if got != EncodingPCM {
		t.Fatalf("expected platform default, got %q", got)
	}
}

func TestRawEncoderPassesThrough(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4}
	out, err := rawEncoder{}.encode(pcm)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(out) != string(pcm) {
		t.Fatalf("raw encoder altered data")
	}
}

func TestBytesToInt16s(t *testing.T) {
	t.Parallel()

	samples := bytesToInt16s([]byte{0x01, 0x00, 0xFF, 0xFF})
	if len(samples) != 2 || samples[0] != 1 || samples[1] != -1 {
		t.Fatalf("unexpected samples %v", samples)
	}
}
