package deepgram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voicegate/internal/domain"
	"voicegate/internal/ports"
)

func TestNewDialerDefaults(t *testing.T) {
	t.Parallel()

	d := NewDialer(Config{})
	if d.cfg.Model != "nova-2" {
		t.Fatalf("unexpected default model %q", d.cfg.Model)
	}
}

func TestDialRequiresToken(t *testing.T) {
	t.Parallel()

	d := NewDialer(Config{})
	_, err := d.Dial(context.Background(), ports.StreamConfig{Endpoint: "wss://example.com/listen"})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error for missing token, got %v", err)
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	got, err := buildListenURL(Config{Model: "nova-2"}, ports.StreamConfig{
		Endpoint: "https://stt.example.com/v1/listen",
		Token:    "tok",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(got, "wss://stt.example.com/v1/listen?") {
		t.Fatalf("unexpected scheme/base: %s", got)
	}
	for _, want := range []string{"encoding=linear16", "sample_rate=16000", "channels=1", "model=nova-2"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in url: %s", want, got)
		}
	}
}

func TestBuildListenURLForwardsSessionSettings(t *testing.T) {
	t.Parallel()

	got, err := buildListenURL(Config{Model: "m", SmartFormat: true}, ports.StreamConfig{
		Endpoint:       "http://localhost:9090/listen",
		Encoding:       "opus",
		SampleRate:     48000,
		Channels:       2,
		Language:       "en-US",
		InterimResults: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(got, "ws://localhost:9090/listen?") {
		t.Fatalf("unexpected scheme/base: %s", got)
	}
	for _, want := range []string{"encoding=opus", "sample_rate=48000", "channels=2", "language=en-US", "interim_results=true", "smart_format=true"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in url: %s", want, got)
		}
	}
}

func TestBuildListenURLInvalidEndpoint(t *testing.T) {
	t.Parallel()

	_, err := buildListenURL(Config{}, ports.StreamConfig{Endpoint: ":// bad"})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
