package main

import (
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// SpeechSynthesizer speaks text aloud. Say returns once the utterance has
// been handed off; failures are the synthesizer's to report.
type SpeechSynthesizer interface {
	Say(text string)
}

// commandNarrator speaks by running an external TTS program such as
// espeak-ng with the text as its last argument.
type commandNarrator struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

func (n *commandNarrator) Say(text string) {
	n.logger.Info("say", "text", text)
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	args := append(append([]string{}, n.args...), text)
	if out, err := exec.CommandContext(ctx, n.command, args...).CombinedOutput(); err != nil {
		n.logger.Warn("speech command failed", "command", n.command, "error", err, "output", string(out))
	}
}

// logNarrator only logs what would be said.
type logNarrator struct {
	logger *slog.Logger
}

func (n *logNarrator) Say(text string) {
	n.logger.Info("say", "text", text)
}

func newNarrator(cfg SpeechConfig, logger *slog.Logger) SpeechSynthesizer {
	if cfg.Command == "" {
		return &logNarrator{logger: logger}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &commandNarrator{command: cfg.Command, args: cfg.Args, timeout: timeout, logger: logger}
}
