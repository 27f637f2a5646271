package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"voicegate/internal/domain"
)

// normalizeFrame reduces one inbound vendor frame to the single contract the
// pipeline cares about: a transcript string and a finality flag. The two
// vendor envelopes differ in shape, so this switches on the vendor tag of
// the active strategy rather than dispatching through vendor objects.
//
// Outcomes: (chunk, true, nil) for a usable transcript; (zero, false, nil)
// for housekeeping frames and empty transcripts, dropped silently; a
// domain.ErrMalformedMessage error for frames that fit neither schema. A
// malformed frame must never take the session down.
func normalizeFrame(vendor domain.VendorID, payload []byte) (domain.TranscriptChunk, bool, error) {
	switch vendor {
	case domain.VendorDeepgram:
		return normalizeDeepgram(payload)
	case domain.VendorAssemblyAI:
		return normalizeAssemblyAI(payload)
	default:
		return domain.TranscriptChunk{}, false, fmt.Errorf("%w: unknown vendor %q", domain.ErrMalformedMessage, vendor)
	}
}

type deepgramFrame struct {
	Type        string `json:"type"`
	IsFinal     *bool  `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel *struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Housekeeping frame types the Deepgram-style socket interleaves with
// results; they carry no transcript and are dropped without notice.
var deepgramHousekeeping = map[string]bool{
	"Metadata":      true,
	"SpeechStarted": true,
	"UtteranceEnd":  true,
}

func normalizeDeepgram(payload []byte) (domain.TranscriptChunk, bool, error) {
	var frame deepgramFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return domain.TranscriptChunk{}, false, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	if deepgramHousekeeping[frame.Type] {
		return domain.TranscriptChunk{}, false, nil
	}
	if frame.Channel == nil || frame.IsFinal == nil {
		return domain.TranscriptChunk{}, false, fmt.Errorf("%w: frame has no results envelope", domain.ErrMalformedMessage)
	}
	if len(frame.Channel.Alternatives) == 0 {
		return domain.TranscriptChunk{}, false, nil
	}

	text := strings.TrimSpace(frame.Channel.Alternatives[0].Transcript)
	if text == "" {
		return domain.TranscriptChunk{}, false, nil
	}
	return domain.TranscriptChunk{
		Text:    text,
		IsFinal: *frame.IsFinal || frame.SpeechFinal,
	}, true, nil
}

type assemblyAIFrame struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
}

var assemblyAIHousekeeping = map[string]bool{
	"SessionBegins":     true,
	"SessionTerminated": true,
}

func normalizeAssemblyAI(payload []byte) (domain.TranscriptChunk, bool, error) {
	var frame assemblyAIFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return domain.TranscriptChunk{}, false, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}

	switch frame.MessageType {
	case "PartialTranscript", "FinalTranscript":
		text := strings.TrimSpace(frame.Text)
		if text == "" {
			return domain.TranscriptChunk{}, false, nil
		}
		return domain.TranscriptChunk{
			Text:    text,
			IsFinal: frame.MessageType == "FinalTranscript",
		}, true, nil
	default:
		if assemblyAIHousekeeping[frame.MessageType] {
			return domain.TranscriptChunk{}, false, nil
		}
		return domain.TranscriptChunk{}, false, fmt.Errorf("%w: unrecognized message_type %q", domain.ErrMalformedMessage, frame.MessageType)
	}
}
