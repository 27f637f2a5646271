package domain

import "time"

// SessionState models the capture lifecycle. Within one session the state
// only moves forward: Idle -> Starting -> Active -> Stopping -> Idle.
type SessionState string

const (
	SessionStateIdle     SessionState = "idle"
	SessionStateStarting SessionState = "starting"
	SessionStateActive   SessionState = "active"
	SessionStateStopping SessionState = "stopping"
)

// VendorID identifies a streaming transcription backend.
type VendorID string

const (
	VendorDeepgram   VendorID = "deepgram"
	VendorAssemblyAI VendorID = "assemblyai"
)

// StrategyKind discriminates the CaptureStrategy tagged union.
type StrategyKind string

const (
	StrategyLocalRecognizer StrategyKind = "local_recognizer"
	StrategyStreamingVendor StrategyKind = "streaming_vendor"
)

// CaptureStrategy is the transcription path chosen for one capture session.
// It is picked once at session start and is immutable for the session's
// lifetime. Vendor, Encoding and SocketEndpoint are only meaningful for the
// streaming kind.
type CaptureStrategy struct {
	Kind           StrategyKind `json:"kind"`
	Vendor         VendorID     `json:"vendor,omitempty"`
	Encoding       string       `json:"encoding,omitempty"`
	SocketEndpoint string       `json:"socketEndpoint,omitempty"`
}

// Streaming reports whether the strategy needs a network socket.
func (s CaptureStrategy) Streaming() bool {
	return s.Kind == StrategyStreamingVendor
}

// Credential is a short-lived access token for a streaming vendor. It is
// fetched fresh for every streaming session and never cached or persisted.
type Credential struct {
	Token     string
	ExpiresIn time.Duration
}

// AudioChunk is one encoded slice of microphone audio. Ownership transfers to
// the active transport on emission; no chunk is retained after transmission.
type AudioChunk struct {
	Data     []byte
	Encoding string
	MIME     string
}

// TranscriptChunk is the normalized form of any vendor or recognizer result.
type TranscriptChunk struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

// NoticeKind separates fatal from non-fatal composer notifications.
type NoticeKind string

const (
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// ErrorCode identifies the capture pipeline's error taxonomy.
type ErrorCode string

const (
	ErrorCodePermissionDenied      ErrorCode = "permission_denied"
	ErrorCodeDeviceUnavailable     ErrorCode = "device_unavailable"
	ErrorCodeCredentialUnavailable ErrorCode = "credential_unavailable"
	ErrorCodeTransport             ErrorCode = "transport_error"
	ErrorCodeParse                 ErrorCode = "parse_error"
	ErrorCodeTooShortRecording     ErrorCode = "too_short_recording"
	ErrorCodeNoSpeechDetected      ErrorCode = "no_speech_detected"
)

// Status summarizes the current pipeline status for introspection.
type Status struct {
	State    SessionState    `json:"state"`
	Active   bool            `json:"active"`
	Strategy CaptureStrategy `json:"strategy,omitempty"`
	Elapsed  time.Duration   `json:"elapsed,omitempty"`
}
