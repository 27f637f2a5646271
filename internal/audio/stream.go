package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"voicegate/internal/domain"
	"voicegate/internal/ports"
)

const (
	minChunkIntervalMs     = 250
	maxChunkIntervalMs     = 500
	defaultChunkIntervalMs = 250
)

// Opener composes device acquisition and chunked encoding into the capture
// stream the session consumes.
type Opener struct {
	capture ports.AudioCapture
}

func NewOpener(capture ports.AudioCapture) *Opener {
	return &Opener{capture: capture}
}

func (o *Opener) Open(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureStream, error) {
	source, err := o.capture.Start(ctx, cfg.Audio)
	if err != nil {
		return nil, err
	}

	encoder, err := newChunkEncoder(cfg.Encoding, cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		_ = source.Stop()
		return nil, err
	}

	return newCaptureStream(source, encoder, cfg.Encoding, cfg.Interval), nil
}

// captureStream buffers PCM from the device and emits one encoded chunk per
// tick. Zero-byte chunks are discarded, never forwarded.
type captureStream struct {
	source   ports.AudioSource
	encoder  chunkEncoder
	encoding string
	mime     string
	interval time.Duration

	chunks  chan domain.AudioChunk
	flushCh chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	pending []byte

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newCaptureStream(source ports.AudioSource, encoder chunkEncoder, encoding string, intervalMs int) *captureStream {
	if intervalMs <= 0 {
		intervalMs = defaultChunkIntervalMs
	}
	if intervalMs < minChunkIntervalMs {
		intervalMs = minChunkIntervalMs
	}
	if intervalMs > maxChunkIntervalMs {
		intervalMs = maxChunkIntervalMs
	}

	s := &captureStream{
		source:   source,
		encoder:  encoder,
		encoding: encoding,
		mime:     MIMEFor(encoding),
		interval: time.Duration(intervalMs) * time.Millisecond,
		chunks:   make(chan domain.AudioChunk, 16),
		flushCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.emitLoop()
	return s
}

func (s *captureStream) Chunks() <-chan domain.AudioChunk {
	return s.chunks
}

// Flush forces emission of whatever PCM has accumulated since the last tick.
func (s *captureStream) Flush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// Close stops the device and unregisters chunk emission. Audio buffered
// since the last tick is emitted as one trailing chunk. Idempotent.
func (s *captureStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.source.Stop()
		s.wg.Wait()
		s.emit()
		close(s.chunks)
	})
	return err
}

func (s *captureStream) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := s.source.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				slog.Warn("audio read ended", "err", err)
			}
			return
		}
		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *captureStream) emitLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.emit()
		case <-s.flushCh:
			s.emit()
		case <-s.done:
			return
		}
	}
}

func (s *captureStream) emit() {
	s.mu.Lock()
	pcm := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pcm) == 0 {
		return
	}

	data, err := s.encoder.encode(pcm)
	if err != nil {
		slog.Warn("chunk encode failed, dropping interval", "err", err)
		return
	}
	if len(data) == 0 {
		return
	}

	chunk := domain.AudioChunk{Data: data, Encoding: s.encoding, MIME: s.mime}
	// Non-blocking: a consumer that stopped draining is tearing the session
	// down; dropping an interval beats wedging the emit loop.
	select {
	case s.chunks <- chunk:
	default:
	}
}
