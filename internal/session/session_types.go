package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voicegate/internal/domain"
	"voicegate/internal/ports"
)

// captureSession owns every resource of one live capture: the microphone
// stream and exactly one transcription transport (vendor socket or local
// recognizer, never both). There are no module-level singletons; everything
// the event loops touch hangs off this struct.
type captureSession struct {
	strategy  domain.CaptureStrategy
	startedAt time.Time
	cancel    context.CancelFunc

	capture   ports.CaptureStream
	transport ports.StreamTransport   // streaming strategy only
	recog     ports.RecognizerSession // local strategy only

	agg *aggregator

	// closed suppresses composer updates once the session has left the
	// active path; stale partials must never land after a forced Idle.
	closed atomic.Bool

	// cancelRequested records a toggle-off that arrived while the open
	// sequence was still in flight.
	cancelRequested atomic.Bool

	// failed records that the failure path already tore the session down
	// and surfaced a notification; the stop path must not report again.
	failed   atomic.Bool
	failOnce sync.Once

	// pumpDone is closed once the audio pump has drained the capture
	// stream. The stop sequence waits on it before closing the send side
	// of the transport so trailing chunks are never sent into a closed
	// socket.
	pumpDone chan struct{}
	groupErr chan error
}

func (s *captureSession) releaseTransport() {
	if s.transport != nil {
		_ = s.transport.Close()
	}
	if s.recog != nil {
		_ = s.recog.Close()
	}
}

// aggregator folds the stream of transcript chunks into the text the session
// commits at stop time. Partials overwrite each other (last received wins);
// finals accumulate in arrival order.
type aggregator struct {
	mu          sync.Mutex
	finals      []string
	lastPartial string
}

func newAggregator() *aggregator {
	return &aggregator{}
}

func (a *aggregator) add(chunk domain.TranscriptChunk) {
	text := strings.TrimSpace(chunk.Text)
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastPartial = text
	if chunk.IsFinal {
		a.finals = append(a.finals, text)
	}
}

// committed returns the finals received so far, joined in order.
func (a *aggregator) committed() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.finals, " ")
}

// text returns the best transcript available at stop time: the joined
// finals, extended with a trailing partial the vendor never finalized.
func (a *aggregator) text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if joined == "" {
		return a.lastPartial
	}
	if a.lastPartial == "" || strings.HasSuffix(joined, a.lastPartial) {
		return joined
	}
	return joined + " " + a.lastPartial
}
