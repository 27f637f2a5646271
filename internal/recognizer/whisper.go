// Package recognizer provides the local, in-process transcription path
// backed by the whisper.cpp Go bindings. No network socket is involved: the
// model is loaded once at startup and each capture session gets its own
// inference context.
//
// whisper.cpp is a batch engine, so true low-latency partials are not
// possible. Sessions buffer PCM, segment utterances with an energy-based
// silence detector, and emit an interim chunk followed by a final chunk for
// each committed utterance, which satisfies the interim-results contract the
// session expects.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"voicegate/internal/domain"
	"voicegate/internal/ports"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// rmsThreshold is the 16-bit PCM energy level below which a chunk is
	// treated as silence; 32767 is full scale, 300 is near-silence.
	rmsThreshold = 300.0

	silenceThresholdMs  = 500
	maxBufferDurationMs = 10_000
)

// Whisper implements ports.Recognizer. The model is shared across sessions;
// contexts are per-session because they are not goroutine-safe.
type Whisper struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper model from modelPath. The caller owns the returned
// recognizer and must call Close.
func New(modelPath, language string) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("recognizer: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("recognizer: load model %q: %w", modelPath, err)
	}
	if language == "" {
		language = defaultLanguage
	}
	return &Whisper{model: model, language: language}, nil
}

func (w *Whisper) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}

// Start opens a recognition session. Results carries an interim chunk and a
// final chunk per utterance and closes when the session ends.
func (w *Whisper) Start(ctx context.Context, cfg ports.RecognizerConfig) (ports.RecognizerSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}

	language := cfg.Language
	if language == "" {
		language = w.language
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}

	s := &session{
		model:    w.model,
		language: language,
		segmenter: newSegmenter(segmenterConfig{
			sampleRate:          sampleRate,
			channels:            channels,
			rmsThreshold:        rmsThreshold,
			silenceThresholdMs:  silenceThresholdMs,
			maxBufferDurationMs: maxBufferDurationMs,
		}),
		audio:   make(chan []byte, 256),
		results: make(chan domain.TranscriptChunk, 64),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

type session struct {
	model     whisperlib.Model
	language  string
	segmenter *segmenter

	audio   chan []byte
	results chan domain.TranscriptChunk

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("recognizer: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("recognizer: session is closed")
	}
}

func (s *session) Results() <-chan domain.TranscriptChunk {
	return s.results
}

// Close flushes pending speech, closes Results and releases the session.
// Idempotent.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// run owns all buffering and inference for the session.
func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-s.done:
			s.flush()
			return
		case chunk, ok := <-s.audio:
			if !ok {
				s.flush()
				return
			}
			if s.segmenter.feed(chunk) {
				s.flush()
			}
		}
	}
}

func (s *session) flush() {
	pcm := s.segmenter.take()
	if len(pcm) == 0 {
		return
	}

	text, err := s.infer(pcm)
	if err != nil {
		slog.Error("local inference failed", "err", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.emit(domain.TranscriptChunk{Text: text, IsFinal: false})
	s.emit(domain.TranscriptChunk{Text: text, IsFinal: true})
}

func (s *session) emit(chunk domain.TranscriptChunk) {
	select {
	case s.results <- chunk:
	default:
	}
}

func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, s.segmenter.cfg.channels)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("recognizer: create context: %w", err)
	}
	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("recognizer language not accepted, using model default", "language", s.language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("recognizer: process audio: %w", err)
	}

	var sb strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break
		}
		sb.WriteString(segment.Text)
	}
	return sb.String(), nil
}
