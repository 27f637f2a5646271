// Package deepgram dials Deepgram-style streaming sockets. The short-lived
// credential travels as a websocket subprotocol token; audio format and
// interim-results flags are query parameters on the listen URL.
package deepgram

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"voicegate/internal/domain"
	"voicegate/internal/ports"
	"voicegate/internal/vendors/socket"
)

// Config holds vendor tuning that is not per-session.
type Config struct {
	Model       string
	SmartFormat bool
}

// Dialer implements ports.StreamDialer for Deepgram.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Dialer{cfg: cfg}
}

// AcceptedEncodings lists chunk encodings this vendor's socket consumes, in
// no particular order; selection order is the capture pipeline's concern.
func AcceptedEncodings() []string {
	return []string{"opus", "linear16"}
}

func (d *Dialer) Dial(ctx context.Context, cfg ports.StreamConfig) (ports.StreamTransport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: missing session token", domain.ErrTransport)
	}

	listenURL, err := buildListenURL(d.cfg, cfg)
	if err != nil {
		return nil, err
	}

	return socket.Dial(ctx, socket.Options{
		URL:          listenURL,
		Subprotocols: []string{"token", cfg.Token},
		Terminator:   []byte(`{"type":"CloseStream"}`),
	})
}

func buildListenURL(vendorCfg Config, streamCfg ports.StreamConfig) (string, error) {
	base := strings.TrimSpace(streamCfg.Endpoint)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	listenURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid socket endpoint: %v", domain.ErrTransport, err)
	}

	sampleRate := streamCfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := streamCfg.Channels
	if channels <= 0 {
		channels = 1
	}
	encoding := streamCfg.Encoding
	if encoding == "" {
		encoding = "linear16"
	}

	query := listenURL.Query()
	query.Set("model", vendorCfg.Model)
	query.Set("encoding", encoding)
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", strconv.Itoa(channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(vendorCfg.SmartFormat))
	if streamCfg.Language != "" {
		query.Set("language", streamCfg.Language)
	}
	listenURL.RawQuery = query.Encode()

	return listenURL.String(), nil
}
