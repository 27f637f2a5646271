// Command voicegate is a push-to-talk transcription console: toggle a
// capture with the enter key and watch partials stream into the prompt line
// until the final transcript is committed.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"voicegate/internal/bootstrap"
	"voicegate/internal/domain"
)

// consoleSink renders composer updates on the terminal: partials rewrite the
// current line, notices go to stderr.
type consoleSink struct {
	mu sync.Mutex
}

func (s *consoleSink) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\r\033[K> %s", text)
}

func (s *consoleSink) Notify(kind domain.NoticeKind, code domain.ErrorCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(os.Stderr, "\n[%s/%s] %s\n", kind, code, message)
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	services, err := bootstrap.Build(&consoleSink{}, *configPath)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer services.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("enter toggles recording, 's' prints status, 'q' or ctrl-c quits")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			slog.Info("shutting down")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.TrimSpace(line) {
			case "q":
				return
			case "s":
				status := services.Controller.Status()
				fmt.Printf("state=%s strategy=%s vendor=%s elapsed=%s\n",
					status.State, status.Strategy.Kind, status.Strategy.Vendor, status.Elapsed)
			default:
				if err := services.Controller.Toggle(ctx); err != nil {
					slog.Error("toggle failed", "err", err)
				}
			}
		}
	}
}
