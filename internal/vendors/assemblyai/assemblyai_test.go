package assemblyai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voicegate/internal/domain"
	"voicegate/internal/ports"
)

func TestDialRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewDialer().Dial(context.Background(), ports.StreamConfig{Endpoint: "wss://example.com/ws"})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error for missing token, got %v", err)
	}
}

func TestBuildSocketURLTokenAsQueryParameter(t *testing.T) {
	t.Parallel()

	got, err := buildSocketURL(ports.StreamConfig{
		Endpoint:   "https://realtime.example.com/v2/ws",
		Token:      "tok-abc",
		SampleRate: 16000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(got, "wss://realtime.example.com/v2/ws?") {
		t.Fatalf("unexpected scheme/base: %s", got)
	}
	if !strings.Contains(got, "token=tok-abc") {
		t.Fatalf("expected token query parameter: %s", got)
	}
	if !strings.Contains(got, "sample_rate=16000") {
		t.Fatalf("expected sample_rate query parameter: %s", got)
	}
}

func TestBuildSocketURLDefaultSampleRate(t *testing.T) {
	t.Parallel()

	got, err := buildSocketURL(ports.StreamConfig{Endpoint: "wss://example.com/ws", Token: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "sample_rate=16000") {
		t.Fatalf("expected default sample rate: %s", got)
	}
}

func TestBuildSocketURLInvalidEndpoint(t *testing.T) {
	t.Parallel()

	_, err := buildSocketURL(ports.StreamConfig{Endpoint: ":// bad", Token: "t"})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
