package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type daemon struct {
	flow       *connectionFlow
	recognizer *vocabRecognizer
	logger     *slog.Logger

	abortOnce sync.Once
	abort     chan struct{}
}

func newDaemon(flow *connectionFlow, recognizer *vocabRecognizer, logger *slog.Logger) *daemon {
	return &daemon{
		flow:       flow,
		recognizer: recognizer,
		logger:     logger,
		abort:      make(chan struct{}),
	}
}

func (d *daemon) status() IPCResponse {
	return IPCResponse{
		State:      string(d.flow.State()),
		Network:    d.flow.Chosen(),
		Vocabulary: d.recognizer.VocabularySize(),
	}
}

func (d *daemon) handleRequest(req IPCRequest) IPCResponse {
	switch req.Command {
	case "status":
		return d.status()

	case "hear":
		heard, err := parseHeard(req.Heard)
		if err != nil {
			return IPCResponse{Error: err.Error()}
		}
		if len(heard) == 0 {
			return IPCResponse{Error: "nothing heard"}
		}
		if err := d.recognizer.Hear(heard); err != nil {
			return IPCResponse{Error: err.Error()}
		}
		return d.status()

	case "abort":
		d.abortOnce.Do(func() { close(d.abort) })
		return IPCResponse{State: string(StateStopped)}

	default:
		return IPCResponse{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

func (d *daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	var req IPCRequest
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp := IPCResponse{Error: "invalid request: " + err.Error()}
		json.NewEncoder(conn).Encode(resp)
		return
	}

	resp := d.handleRequest(req)
	json.NewEncoder(conn).Encode(resp)
}

// wait blocks until the flow has nothing left to do, checking every
// interval, or until an interrupt or abort request arrives.
func (d *daemon) wait(interval time.Duration, quit <-chan os.Signal) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case sig := <-quit:
			d.logger.Info("interrupted", "signal", sig)
			return
		case <-d.abort:
			d.logger.Info("abort requested")
			return
		case <-ticker.C:
			if st := d.flow.State(); st.terminal() {
				d.logger.Info("flow finished", "state", st)
				return
			}
		}
	}
}

func runDaemon(cfg Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := newBus(logger, 32)
	cm, err := newConnman(cfg.Connman, b, logger)
	if err != nil {
		return err
	}
	defer cm.close()

	recognizer := newVocabRecognizer(b, cfg.Recognizer.MinSimilarity, logger)
	narrator := newNarrator(cfg.Speech, logger)
	flow := newConnectionFlow(cfg.Flow, newNetworkCatalog(cm, logger), b, recognizer, narrator, logger)
	d := newDaemon(flow, recognizer, logger)

	sock := cfg.Daemon.Socket
	os.Remove(sock) // remove stale socket
	ln, err := net.Listen("unix", sock)
	if err != nil {
		return fmt.Errorf("listen %s: %w", sock, err)
	}
	os.Chmod(sock, 0700)
	defer os.Remove(sock)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				// Listener closed on shutdown.
				return
			}
			go d.handleConn(conn)
		}
	}()
	logger.Info("listening", "socket", sock)

	go cm.watchSignals(cm.subscribeServiceChanges())
	if cfg.Recognizer.Source == "stdin" {
		go func() {
			if err := recognizer.listen(ctx, os.Stdin); err != nil {
				logger.Warn("stdin recognizer stopped", "error", err)
			}
		}()
	}

	// The flow starts before dispatch begins, so its handlers never overlap.
	flow.Start()
	busDone := make(chan struct{})
	go func() {
		b.run(ctx)
		close(busDone)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	d.wait(cfg.Daemon.PollInterval, quit)

	cancel()
	<-busDone
	flow.Stop()
	logger.Info("shutting down", "state", flow.State())
	return nil
}
