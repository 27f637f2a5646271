// Package assemblyai dials AssemblyAI-style realtime sockets. Unlike the
// Deepgram wire contract, the short-lived credential travels as a token
// query parameter and the envelope uses message_type discrimination.
package assemblyai

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

// Dialer implements ports.StreamDialer for AssemblyAI.
type Dialer struct{}

func NewDialer() *Dialer {
	return &Dialer{}
}

// AcceptedEncodings lists chunk encodings this vendor's socket consumes.
// The realtime endpoint takes raw PCM only.
func AcceptedEncodings() []string {
	return []string{"linear16", "pcm_s16le"}
}

func (d *Dialer) Dial(ctx context.Context, cfg ports.StreamConfig) (ports.StreamTransport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: missing session token", domain.ErrTransport)
	}

	socketURL, err := buildSocketURL(cfg)
	if err != nil {
		return nil, err
	}

	return socket.Dial(ctx, socket.Options{
		URL:        socketURL,
		Terminator: []byte(`{"terminate_session":true}`),
	})
}

func buildSocketURL(cfg ports.StreamConfig) (string, error) {
	base := strings.TrimSpace(cfg.Endpoint)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	socketURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid socket endpoint: %v", domain.ErrTransport, err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	query := socketURL.Query()
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("token", cfg.Token)
	socketURL.RawQuery = query.Encode()

	return socketURL.String(), nil
}
