// Package session drives the capture lifecycle: one toggle surface over the
// Idle -> Starting -> Active -> Stopping -> Idle state machine, one live
// captureSession at a time, and the normalization of vendor results into
// composer updates.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"voicegate/internal/audio"
	"voicegate/internal/capability"
	"voicegate/internal/domain"
	"voicegate/internal/ports"
	"voicegate/internal/telemetry"
	"voicegate/internal/textproc"
)

// ErrNoActiveSession is returned by Stop when there is nothing to stop.
var ErrNoActiveSession = errors.New("no active capture session")

const (
	defaultMinCaptureDuration = 800 * time.Millisecond
	defaultStartTimeout       = 8 * time.Second
	defaultDrainTimeout       = 4 * time.Second
)

// Vendor bundles what the controller needs to open one streaming backend:
// its dialer and the chunk encodings its socket accepts.
type Vendor struct {
	Dialer    ports.StreamDialer
	Encodings []string
}

// Deps are the controller's collaborators. Recognizer may be nil when no
// local model is loaded; Metrics may be nil to disable instrumentation.
type Deps struct {
	Probe       capability.ProbeFunc
	Defaults    capability.Defaults
	Credentials ports.CredentialFetcher
	Capture     ports.CaptureOpener
	Vendors     map[domain.VendorID]Vendor
	Recognizer  ports.Recognizer
	Rules       *textproc.Rules
	Sink        ports.ComposerSink
	Metrics     *telemetry.Metrics
}

// Config tunes the capture lifecycle. Zero values select the defaults.
type Config struct {
	Audio           ports.AudioConfig
	Language        string
	ChunkIntervalMs int

	// OpusAvailable reports whether the opus encoder can be built on this
	// platform; it feeds encoding selection for streaming sessions.
	OpusAvailable bool

	// MinCaptureDuration is the floor below which a stopped capture is
	// discarded as too short instead of committed.
	MinCaptureDuration time.Duration

	// MinFinalChars is the cleaned-length floor for committing a final
	// transcript.
	MinFinalChars int

	StartTimeout time.Duration
	DrainTimeout time.Duration
}

func (c Config) minCaptureDuration() time.Duration {
	if c.MinCaptureDuration <= 0 {
		return defaultMinCaptureDuration
	}
	return c.MinCaptureDuration
}

func (c Config) startTimeout() time.Duration {
	if c.StartTimeout <= 0 {
		return defaultStartTimeout
	}
	return c.StartTimeout
}

func (c Config) drainTimeout() time.Duration {
	if c.DrainTimeout <= 0 {
		return defaultDrainTimeout
	}
	return c.DrainTimeout
}

// Controller is the capture pipeline's single entry point. All methods are
// safe for concurrent use; at most one captureSession is live at a time.
type Controller struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	mu      sync.Mutex
	state   domain.SessionState
	current *captureSession
}

func NewController(deps Deps, cfg Config) *Controller {
	return &Controller{
		deps:  deps,
		cfg:   cfg,
		now:   time.Now,
		state: domain.SessionStateIdle,
	}
}

// Toggle is the push-to-talk surface: it starts when idle, stops when
// active, requests cancellation when a start is still in flight, and is a
// no-op while a stop is already draining.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	sess := c.current
	c.mu.Unlock()

	switch state {
	case domain.SessionStateIdle:
		return c.Start(ctx)
	case domain.SessionStateStarting:
		if sess != nil {
			sess.cancelRequested.Store(true)
			sess.cancel()
		}
		return nil
	case domain.SessionStateActive:
		return c.Stop(ctx)
	default:
		return nil
	}
}

// Start opens a new capture session. A session that is still live is torn
// down and discarded first; two sessions never hold the microphone at once.
func (c *Controller) Start(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &captureSession{
		cancel:   cancel,
		agg:      newAggregator(),
		pumpDone: make(chan struct{}),
		groupErr: make(chan error, 1),
	}

	// The new session is published in the same critical section that
	// enters Starting, so a toggle-off can always reach it.
	c.mu.Lock()
	previous := c.current
	c.current = sess
	c.state = domain.SessionStateStarting
	c.mu.Unlock()

	if previous != nil {
		c.discard(previous)
	}

	// The platform is probed fresh every start; recognizer models and
	// devices can come and go between sessions.
	strategy := capability.ChooseStrategy(c.deps.Probe(), c.deps.Defaults)

	startCtx, cancelStart := context.WithTimeout(sessionCtx, c.cfg.startTimeout())
	defer cancelStart()

	var (
		vendor ports.StreamDialer
		token  string
	)
	if strategy.Streaming() {
		v, ok := c.deps.Vendors[strategy.Vendor]
		if !ok {
			return c.abortStart(sess, fmt.Errorf("%w: vendor %q is not configured", domain.ErrTransport, strategy.Vendor))
		}
		vendor = v.Dialer

		// The token is fetched fresh for every session and held only for
		// the dial below; it is never cached.
		cred, err := c.deps.Credentials.Fetch(startCtx, strategy.Vendor)
		if err != nil {
			return c.abortStart(sess, err)
		}
		token = cred.Token

		strategy.Encoding = audio.SelectEncoding(v.Encodings, c.cfg.OpusAvailable)
	} else {
		if c.deps.Recognizer == nil {
			return c.abortStart(sess, fmt.Errorf("%w: no local recognizer loaded", domain.ErrDeviceUnavailable))
		}
		strategy.Encoding = audio.EncodingLinear16
	}
	sess.strategy = strategy

	capture, err := c.deps.Capture.Open(sessionCtx, ports.CaptureConfig{
		Audio:    c.cfg.Audio,
		Encoding: strategy.Encoding,
		Interval: c.cfg.ChunkIntervalMs,
	})
	if err != nil {
		return c.abortStart(sess, err)
	}
	sess.capture = capture

	if strategy.Streaming() {
		transport, err := vendor.Dial(startCtx, ports.StreamConfig{
			Endpoint:       strategy.SocketEndpoint,
			Token:          token,
			SampleRate:     c.cfg.Audio.SampleRate,
			Channels:       c.cfg.Audio.Channels,
			Encoding:       strategy.Encoding,
			Language:       c.cfg.Language,
			InterimResults: true,
		})
		if err != nil {
			return c.abortStart(sess, err)
		}
		sess.transport = transport
	} else {
		recog, err := c.deps.Recognizer.Start(sessionCtx, ports.RecognizerConfig{
			Language:   c.cfg.Language,
			SampleRate: c.cfg.Audio.SampleRate,
			Channels:   c.cfg.Audio.Channels,
		})
		if err != nil {
			return c.abortStart(sess, err)
		}
		sess.recog = recog
	}

	// A toggle-off or a superseding start may have raced the open
	// sequence; honor it now instead of going active for an instant.
	if sess.cancelRequested.Load() || sess.closed.Load() {
		return c.abortStart(sess, nil)
	}

	c.mu.Lock()
	c.state = domain.SessionStateActive
	sess.startedAt = c.now()
	c.mu.Unlock()

	c.deps.Sink.SetText("")
	c.deps.Metrics.SessionStarted(sessionCtx, strategy)
	slog.Info("capture session started",
		"strategy", string(strategy.Kind),
		"vendor", string(strategy.Vendor),
		"encoding", strategy.Encoding)

	var group errgroup.Group
	group.Go(func() error {
		defer close(sess.pumpDone)
		return c.pumpAudio(sess)
	})
	group.Go(func() error {
		return c.consume(sessionCtx, sess)
	})
	go func() {
		sess.groupErr <- group.Wait()
	}()

	return nil
}

// Stop ends the active session: it drains the pipeline, applies the length
// gates, and commits the final transcript to the composer.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	sess := c.current
	if sess == nil || c.state != domain.SessionStateActive {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.state = domain.SessionStateStopping
	c.mu.Unlock()

	elapsed := c.now().Sub(sess.startedAt)

	// Release the microphone first. The trailing partial interval is
	// flushed as the stream closes, then the pump drains it into the
	// transport before the send side shuts.
	sess.capture.Flush()
	_ = sess.capture.Close()

	drainTimeout := c.cfg.drainTimeout()
	select {
	case <-sess.pumpDone:
	case <-time.After(drainTimeout):
	}

	if sess.transport != nil {
		_ = sess.transport.CloseSend()
	}
	if sess.recog != nil {
		_ = sess.recog.Close()
	}

	var drainErr error
	select {
	case drainErr = <-sess.groupErr:
	case <-time.After(drainTimeout):
		// The vendor never closed its side; force the socket down. The
		// loops end once the underlying connection is gone.
		sess.releaseTransport()
		drainErr = <-sess.groupErr
	}

	sess.closed.Store(true)
	sess.cancel()
	sess.releaseTransport()

	if sess.failed.Load() {
		// The failure path already moved to Idle and notified.
		return drainErr
	}

	raw := sess.agg.text()
	cleaned := textproc.Clean(raw)

	switch {
	case elapsed < c.cfg.minCaptureDuration():
		c.deps.Metrics.TooShort(ctx)
		c.deps.Sink.Notify(domain.NoticeWarning, domain.ErrorCodeTooShortRecording,
			"recording too short, nothing captured")
	case drainErr != nil && cleaned == "":
		c.deps.Metrics.SessionFailed(ctx, domain.ErrorCodeTransport)
		c.deps.Sink.Notify(domain.NoticeError, domain.ErrorCodeTransport,
			"transcription stream failed before any result arrived")
	case !textproc.Meaningful(cleaned, c.cfg.MinFinalChars):
		c.deps.Sink.Notify(domain.NoticeWarning, domain.ErrorCodeNoSpeechDetected,
			"no speech detected")
	default:
		final := c.deps.Rules.Apply(cleaned)
		c.deps.Sink.SetText(final)
		c.deps.Metrics.FinalCommitted(ctx)
		slog.Info("final transcript committed", "chars", len(final))
	}

	c.finishIdle(sess)
	return drainErr
}

// Status reports the current lifecycle state for introspection surfaces.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := domain.Status{
		State:  c.state,
		Active: c.state != domain.SessionStateIdle,
	}
	if c.current != nil {
		st.Strategy = c.current.strategy
		if !c.current.startedAt.IsZero() {
			st.Elapsed = c.now().Sub(c.current.startedAt)
		}
	}
	return st
}

// Close tears down whatever session is live. Used on application shutdown;
// nothing is committed.
func (c *Controller) Close() error {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.state = domain.SessionStateIdle
	c.mu.Unlock()

	if sess != nil {
		c.discard(sess)
	}
	return nil
}

// pumpAudio forwards encoded chunks from the capture stream to the session's
// transcription leg until the stream closes. A send failure fails the whole
// session, which also closes the capture stream and ends this loop's source.
func (c *Controller) pumpAudio(sess *captureSession) error {
	for chunk := range sess.capture.Chunks() {
		var err error
		if sess.transport != nil {
			err = sess.transport.SendAudio(chunk.Data)
		} else {
			err = sess.recog.SendAudio(chunk.Data)
		}
		if err != nil {
			c.fail(sess, err)
			return err
		}
	}
	return nil
}

// consume drains transcript results until the leg closes. Malformed vendor
// frames are reported and skipped; they never end the session.
func (c *Controller) consume(ctx context.Context, sess *captureSession) error {
	if sess.transport == nil {
		for chunk := range sess.recog.Results() {
			c.applyChunk(sess, chunk)
		}
		return nil
	}

	for frame := range sess.transport.Frames() {
		chunk, ok, err := normalizeFrame(sess.strategy.Vendor, frame)
		if err != nil {
			c.deps.Metrics.ParseError(ctx, sess.strategy.Vendor)
			if !sess.closed.Load() {
				c.deps.Sink.Notify(domain.NoticeWarning, domain.ErrorCodeParse,
					"dropped an unreadable transcription message")
			}
			slog.Warn("dropped malformed vendor frame",
				"vendor", string(sess.strategy.Vendor), "err", err)
			continue
		}
		if !ok {
			continue
		}
		c.applyChunk(sess, chunk)
	}

	// A terminal socket error while the session is still active fails it
	// here, which releases the microphone immediately. During a stop the
	// error is handed back through the group for the stop path to weigh.
	err := sess.transport.Wait()
	if err != nil {
		c.fail(sess, err)
	}
	return err
}

// applyChunk folds one transcript chunk into the aggregate and mirrors it to
// the composer. Partials replace the display text wholesale; finals show the
// committed prefix.
func (c *Controller) applyChunk(sess *captureSession, chunk domain.TranscriptChunk) {
	sess.agg.add(chunk)
	if sess.closed.Load() {
		return
	}
	if chunk.IsFinal {
		c.deps.Sink.SetText(textproc.Clean(sess.agg.committed()))
	} else {
		c.deps.Sink.SetText(chunk.Text)
	}
}

// abortStart unwinds a session that never went active. A user cancellation
// surfaces as a too-short warning, not an error; a session discarded by a
// superseding start aborts silently.
func (c *Controller) abortStart(sess *captureSession, cause error) error {
	discarded := sess.closed.Load()
	sess.closed.Store(true)
	sess.cancel()
	if sess.capture != nil {
		_ = sess.capture.Close()
	}
	sess.releaseTransport()

	c.mu.Lock()
	if c.current == sess {
		c.current = nil
		c.state = domain.SessionStateIdle
	}
	c.mu.Unlock()

	if cause == nil || sess.cancelRequested.Load() || discarded {
		if sess.cancelRequested.Load() {
			c.deps.Sink.Notify(domain.NoticeWarning, domain.ErrorCodeTooShortRecording,
				"recording stopped before capture started")
		}
		return nil
	}

	code := domain.CodeForError(cause)
	c.deps.Metrics.SessionFailed(context.Background(), code)
	c.deps.Sink.Notify(domain.NoticeError, code, userMessage(code, cause))
	slog.Error("capture start failed", "code", string(code), "err", cause)
	return cause
}

// fail tears down an active session after a pipeline error. It only acts
// while the session is still the live, active one; once a stop owns the
// teardown the error is left for the stop path to classify. Runs at most
// once per session, so the user sees exactly one notification.
func (c *Controller) fail(sess *captureSession, cause error) {
	sess.failOnce.Do(func() {
		c.mu.Lock()
		if c.current != sess || c.state != domain.SessionStateActive {
			c.mu.Unlock()
			return
		}
		c.current = nil
		c.state = domain.SessionStateIdle
		c.mu.Unlock()

		sess.failed.Store(true)
		sess.closed.Store(true)
		sess.cancel()
		if sess.capture != nil {
			_ = sess.capture.Close()
		}
		sess.releaseTransport()

		code := domain.CodeForError(cause)
		c.deps.Metrics.SessionFailed(context.Background(), code)
		c.deps.Sink.Notify(domain.NoticeError, code, userMessage(code, cause))
		slog.Error("capture session failed", "code", string(code), "err", cause)
	})
}

// discard silently tears down a session during restart or shutdown. No
// notification, no commit.
func (c *Controller) discard(sess *captureSession) {
	sess.closed.Store(true)
	sess.cancel()
	if sess.capture != nil {
		_ = sess.capture.Close()
	}
	sess.releaseTransport()

	c.mu.Lock()
	started := !sess.startedAt.IsZero()
	c.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-sess.groupErr:
	case <-time.After(c.cfg.drainTimeout()):
	}
}

func (c *Controller) finishIdle(sess *captureSession) {
	c.mu.Lock()
	if c.current == sess {
		c.current = nil
	}
	c.state = domain.SessionStateIdle
	c.mu.Unlock()
}

func userMessage(code domain.ErrorCode, err error) string {
	switch code {
	case domain.ErrorCodePermissionDenied:
		return "microphone access was denied"
	case domain.ErrorCodeDeviceUnavailable:
		return "no usable microphone was found"
	case domain.ErrorCodeCredentialUnavailable:
		return "could not obtain transcription credentials: " + err.Error()
	default:
		return "transcription failed: " + err.Error()
	}
}
