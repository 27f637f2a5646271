// Package bootstrap assembles the runtime graph from configuration.
package bootstrap

import (
	"fmt"
	"log/slog"
	"runtime"

	"voicegate/internal/audio"
	"voicegate/internal/capability"
	"voicegate/internal/config"
	"voicegate/internal/credentials"
	"voicegate/internal/domain"
	"voicegate/internal/ports"
	"voicegate/internal/recognizer"
	"voicegate/internal/session"
	"voicegate/internal/telemetry"
	"voicegate/internal/textproc"
	"voicegate/internal/vendors/assemblyai"
	"voicegate/internal/vendors/deepgram"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *session.Controller
	Config     config.Config

	whisper *recognizer.Whisper
}

// Close releases the controller and, when loaded, the recognizer model.
func (s Services) Close() error {
	if s.Controller != nil {
		_ = s.Controller.Close()
	}
	if s.whisper != nil {
		return s.whisper.Close()
	}
	return nil
}

// Build wires all backend dependencies for the current runtime. configPath
// may be empty to use the default config file location.
func Build(sink ports.ComposerSink, configPath string) (Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return Services{}, err
	}

	rules, err := textproc.LoadRules(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	metrics, err := telemetry.New()
	if err != nil {
		return Services{}, fmt.Errorf("init metrics: %w", err)
	}

	endpoints := make(map[domain.VendorID]string, len(cfg.Credentials.Endpoints))
	for vendor, endpoint := range cfg.Credentials.Endpoints {
		endpoints[domain.VendorID(vendor)] = endpoint
	}
	fetcher := credentials.NewFetcher(credentials.Config{
		Endpoints: endpoints,
		Timeout:   cfg.Credentials.Timeout(),
	})

	vendors := map[domain.VendorID]session.Vendor{
		domain.VendorDeepgram: {
			Dialer: deepgram.NewDialer(deepgram.Config{
				Model:       cfg.Vendors.Deepgram.Model,
				SmartFormat: cfg.Vendors.Deepgram.SmartFormat,
			}),
			Encodings: deepgram.AcceptedEncodings(),
		},
		domain.VendorAssemblyAI: {
			Dialer:    assemblyai.NewDialer(),
			Encodings: assemblyai.AcceptedEncodings(),
		},
	}

	defaultVendor := domain.VendorID(cfg.Vendors.Default)
	var socketEndpoint string
	switch defaultVendor {
	case domain.VendorDeepgram:
		socketEndpoint = cfg.Vendors.Deepgram.Endpoint
	case domain.VendorAssemblyAI:
		socketEndpoint = cfg.Vendors.AssemblyAI.Endpoint
	default:
		return Services{}, fmt.Errorf("unknown default vendor %q", cfg.Vendors.Default)
	}

	// A recognizer model that fails to load is not fatal; sessions fall
	// back to the streaming vendor.
	var whisper *recognizer.Whisper
	if cfg.Recognizer.ModelPath != "" {
		whisper, err = recognizer.New(cfg.Recognizer.ModelPath, cfg.Session.Language)
		if err != nil {
			slog.Warn("local recognizer unavailable, streaming only",
				"model", cfg.Recognizer.ModelPath, "err", err)
			whisper = nil
		}
	}
	var recog ports.Recognizer
	if whisper != nil {
		recog = whisper
	}
	localLoaded := whisper != nil

	probe := func() capability.Platform {
		return capability.Platform{
			Family:          runtime.GOOS,
			LocalRecognizer: localLoaded,
		}
	}

	controller := session.NewController(
		session.Deps{
			Probe: probe,
			Defaults: capability.Defaults{
				Vendor:         defaultVendor,
				Encoding:       audio.EncodingLinear16,
				SocketEndpoint: socketEndpoint,
			},
			Credentials: fetcher,
			Capture:     audio.NewOpener(audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)),
			Vendors:     vendors,
			Recognizer:  recog,
			Rules:       rules,
			Sink:        sink,
			Metrics:     metrics,
		},
		session.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Language:           cfg.Session.Language,
			ChunkIntervalMs:    cfg.Audio.ChunkIntervalMs,
			OpusAvailable:      cfg.Audio.Opus,
			MinCaptureDuration: cfg.Session.MinCaptureDuration(),
			MinFinalChars:      cfg.Session.MinFinalChars,
			StartTimeout:       cfg.Session.StartTimeoutDuration(),
			DrainTimeout:       cfg.Session.DrainTimeoutDuration(),
		},
	)

	return Services{Controller: controller, Config: cfg, whisper: whisper}, nil
}
