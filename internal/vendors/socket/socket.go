// Package socket implements the websocket mechanics shared by the streaming
// transcription vendors: binary audio frames out, JSON text frames in. The
// frames are delivered raw; schema normalization happens in the session,
// keyed on the vendor tag, so this package stays vendor-neutral.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"voicegate/internal/domain"
)

// Options carries everything vendor-specific about one socket: the fully
// parameterized URL, optional headers and subprotocols (how the credential
// travels differs per vendor), and the text frame that signals end-of-audio.
type Options struct {
	URL          string
	Header       http.Header
	Subprotocols []string
	Terminator   []byte
}

// Dial opens the vendor socket. The returned transport is live immediately.
func Dial(ctx context.Context, opts Options) (*Transport, error) {
	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = opts.Subprotocols

	conn, _, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: connect vendor socket: %v", domain.ErrTransport, err)
	}

	t := &Transport{
		conn:       conn,
		terminator: opts.Terminator,
		frames:     make(chan []byte, 64),
		audio:      make(chan []byte, 32),
		sendDone:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	t.wg.Add(2)
	go t.readLoop()
	go t.writeLoop()
	go func() {
		t.wg.Wait()
		close(t.frames)
		close(t.done)
		_ = conn.Close()
	}()

	return t, nil
}

// Transport is one live vendor socket.
type Transport struct {
	conn       *websocket.Conn
	terminator []byte

	frames chan []byte
	audio  chan []byte

	// sendDone signals end-of-audio. The audio channel itself is never
	// closed, so a SendAudio parked on a full buffer unblocks through the
	// select below instead of panicking when CloseSend fires.
	sendDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

// SendAudio queues one encoded audio chunk for transmission. Empty chunks
// are dropped. Returns an error once the send side is closed or the socket
// has failed.
func (t *Transport) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	select {
	case <-t.sendDone:
		return fmt.Errorf("%w: audio send side is closed", domain.ErrTransport)
	default:
	}

	copied := append([]byte(nil), chunk...)
	select {
	case t.audio <- copied:
		return nil
	case <-t.sendDone:
		return fmt.Errorf("%w: audio send side is closed", domain.ErrTransport)
	case <-t.done:
		if err := t.currentErr(); err != nil {
			return err
		}
		return fmt.Errorf("%w: socket closed", domain.ErrTransport)
	}
}

// CloseSend marks end-of-audio; the terminator frame follows the last queued
// chunk. Idempotent, non-blocking, safe against in-flight SendAudio calls.
func (t *Transport) CloseSend() error {
	t.closeSendOnce.Do(func() {
		close(t.sendDone)
	})
	return nil
}

// Frames returns raw inbound JSON text frames. Closed when the socket ends.
func (t *Transport) Frames() <-chan []byte {
	return t.frames
}

// Wait blocks until the socket has fully shut down and reports its terminal
// error, if any.
func (t *Transport) Wait() error {
	<-t.done
	return t.currentErr()
}

// Close tears the socket down. Idempotent; safe from any goroutine.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.CloseSend()
		_ = t.conn.Close()
	})
	<-t.done
	return t.currentErr()
}

func (t *Transport) currentErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *Transport) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}

	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == nil {
		t.err = fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
}

func (t *Transport) writeLoop() {
	defer t.wg.Done()

	write := func(chunk []byte) bool {
		if err := t.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			t.setErr(err)
			// Force the read loop off the broken connection too.
			_ = t.conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case chunk := <-t.audio:
			if !write(chunk) {
				return
			}
		case <-t.sendDone:
			// Flush chunks queued ahead of the close, then terminate.
			for {
				select {
				case chunk := <-t.audio:
					if !write(chunk) {
						return
					}
				default:
					if len(t.terminator) > 0 {
						if err := t.conn.WriteMessage(websocket.TextMessage, t.terminator); err != nil {
							t.setErr(err)
							_ = t.conn.Close()
						}
					}
					return
				}
			}
		}
	}
}

func (t *Transport) readLoop() {
	defer t.wg.Done()

	for {
		kind, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.setErr(err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		// Non-blocking: a full buffer means the consumer is gone and the
		// session is tearing down; dropping beats deadlocking shutdown.
		select {
		case t.frames <- payload:
		default:
		}
	}
}
