package ports

import (
	"context"
	"io"

	"voicegate/internal/domain"
)

// AudioConfig describes how the microphone device should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSource is a live exclusive microphone handle emitting raw s16le PCM.
type AudioSource interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture acquires microphone devices. At most one source may be open
// at a time; implementations return domain.ErrPermissionDenied or
// domain.ErrDeviceUnavailable when the platform refuses access.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSource, error)
}

// CaptureConfig describes chunked, encoded capture for one session.
type CaptureConfig struct {
	Audio    AudioConfig
	Encoding string
	Interval int // chunk cadence in milliseconds
}

// CaptureStream emits encoded audio chunks on a fixed cadence.
// Zero-byte chunks are never emitted. Close is idempotent.
type CaptureStream interface {
	Chunks() <-chan domain.AudioChunk
	Flush()
	Close() error
}

// CaptureOpener opens microphone capture streams for the session.
type CaptureOpener interface {
	Open(ctx context.Context, cfg CaptureConfig) (CaptureStream, error)
}

// StreamConfig carries everything a vendor dialer needs for one socket.
type StreamConfig struct {
	Endpoint       string
	Token          string
	SampleRate     int
	Channels       int
	Encoding       string
	Language       string
	InterimResults bool
}

// StreamTransport is an open vendor websocket. Inbound JSON text frames are
// delivered raw on Frames; normalization happens in the session, keyed on the
// vendor tag, so transports stay schema-agnostic.
type StreamTransport interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Frames() <-chan []byte
	Wait() error
	Close() error
}

// StreamDialer opens streaming transcription sockets for one vendor.
type StreamDialer interface {
	Dial(ctx context.Context, cfg StreamConfig) (StreamTransport, error)
}

// RecognizerConfig configures an in-process recognition session.
type RecognizerConfig struct {
	Language   string
	SampleRate int
	Channels   int
}

// RecognizerSession is an open local recognition session. Results carries
// interim chunks followed by a final chunk per utterance and is closed when
// the session ends.
type RecognizerSession interface {
	SendAudio(chunk []byte) error
	Results() <-chan domain.TranscriptChunk
	Close() error
}

// Recognizer is the local, in-process transcription capability.
type Recognizer interface {
	Start(ctx context.Context, cfg RecognizerConfig) (RecognizerSession, error)
	Close() error
}

// CredentialFetcher retrieves a short-lived streaming token from the trusted
// backend. Implementations never cache across sessions.
type CredentialFetcher interface {
	Fetch(ctx context.Context, vendor domain.VendorID) (domain.Credential, error)
}

// ComposerSink receives transcribed text and user-facing notices. SetText is
// called for every partial and final transcript; partials overwrite, they do
// not append.
type ComposerSink interface {
	SetText(text string)
	Notify(kind domain.NoticeKind, code domain.ErrorCode, message string)
}
