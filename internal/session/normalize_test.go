package session

import (
	"errors"
	"testing"

	"voicegate/internal/domain"
)

func TestNormalizeDeepgramPartialAndFinal(t *testing.T) {
	partial := []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello wor"}]}}`)
	chunk, ok, err := normalizeFrame(domain.VendorDeepgram, partial)
	if err != nil || !ok {
		t.Fatalf("partial: ok=%v err=%v", ok, err)
	}
	if chunk.IsFinal || chunk.Text != "hello wor" {
		t.Fatalf("partial normalized to %+v", chunk)
	}

	final := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world"}]}}`)
	chunk, ok, err = normalizeFrame(domain.VendorDeepgram, final)
	if err != nil || !ok {
		t.Fatalf("final: ok=%v err=%v", ok, err)
	}
	if !chunk.IsFinal || chunk.Text != "hello world" {
		t.Fatalf("final normalized to %+v", chunk)
	}
}

func TestNormalizeDeepgramSpeechFinalCountsAsFinal(t *testing.T) {
	payload := []byte(`{"type":"Results","is_final":false,"speech_final":true,"channel":{"alternatives":[{"transcript":"done now"}]}}`)
	chunk, ok, err := normalizeFrame(domain.VendorDeepgram, payload)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !chunk.IsFinal {
		t.Fatal("speech_final frame should be final")
	}
}

func TestNormalizeDeepgramDropsHousekeepingAndEmpty(t *testing.T) {
	for _, payload := range []string{
		`{"type":"Metadata"}`,
		`{"type":"SpeechStarted"}`,
		`{"type":"UtteranceEnd"}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"   "}]}}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[]}}`,
	} {
		_, ok, err := normalizeFrame(domain.VendorDeepgram, []byte(payload))
		if err != nil {
			t.Fatalf("payload %s: unexpected error %v", payload, err)
		}
		if ok {
			t.Fatalf("payload %s: should have been dropped", payload)
		}
	}
}

func TestNormalizeDeepgramMalformed(t *testing.T) {
	for _, payload := range []string{
		`{not json`,
		`{"type":"Results"}`,
		`{"type":"Results","channel":{"alternatives":[{"transcript":"x"}]}}`,
	} {
		_, _, err := normalizeFrame(domain.VendorDeepgram, []byte(payload))
		if !errors.Is(err, domain.ErrMalformedMessage) {
			t.Fatalf("payload %s: got %v, want ErrMalformedMessage", payload, err)
		}
	}
}

func TestNormalizeAssemblyAI(t *testing.T) {
	chunk, ok, err := normalizeFrame(domain.VendorAssemblyAI,
		[]byte(`{"message_type":"PartialTranscript","text":"testing one"}`))
	if err != nil || !ok || chunk.IsFinal || chunk.Text != "testing one" {
		t.Fatalf("partial: chunk=%+v ok=%v err=%v", chunk, ok, err)
	}

	chunk, ok, err = normalizeFrame(domain.VendorAssemblyAI,
		[]byte(`{"message_type":"FinalTranscript","text":"testing one two"}`))
	if err != nil || !ok || !chunk.IsFinal {
		t.Fatalf("final: chunk=%+v ok=%v err=%v", chunk, ok, err)
	}

	_, ok, err = normalizeFrame(domain.VendorAssemblyAI, []byte(`{"message_type":"SessionBegins"}`))
	if err != nil || ok {
		t.Fatalf("SessionBegins: ok=%v err=%v", ok, err)
	}

	_, ok, err = normalizeFrame(domain.VendorAssemblyAI,
		[]byte(`{"message_type":"PartialTranscript","text":""}`))
	if err != nil || ok {
		t.Fatalf("empty partial: ok=%v err=%v", ok, err)
	}

	_, _, err = normalizeFrame(domain.VendorAssemblyAI, []byte(`{"message_type":"Mystery"}`))
	if !errors.Is(err, domain.ErrMalformedMessage) {
		t.Fatalf("unknown message_type: got %v, want ErrMalformedMessage", err)
	}
}

func TestNormalizeUnknownVendor(t *testing.T) {
	_, _, err := normalizeFrame(domain.VendorID("nobody"), []byte(`{}`))
	if !errors.Is(err, domain.ErrMalformedMessage) {
		t.Fatalf("got %v, want ErrMalformedMessage", err)
	}
}

func TestAggregatorJoinsFinalsAndTrailingPartial(t *testing.T) {
	agg := newAggregator()
	agg.add(domain.TranscriptChunk{Text: "hello", IsFinal: false})
	agg.add(domain.TranscriptChunk{Text: "hello world", IsFinal: true})
	agg.add(domain.TranscriptChunk{Text: "and then", IsFinal: false})

	if got := agg.committed(); got != "hello world" {
		t.Fatalf("committed = %q", got)
	}
	if got := agg.text(); got != "hello world and then" {
		t.Fatalf("text = %q", got)
	}

	// A partial the vendor finalized verbatim must not be duplicated.
	agg.add(domain.TranscriptChunk{Text: "and then", IsFinal: true})
	if got := agg.text(); got != "hello world and then" {
		t.Fatalf("text after finalize = %q", got)
	}
}
