package main

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

var ErrNoInputRequest = errors.New("no input request pending")

var errAgentCanceled = dbus.NewError("net.connman.Agent.Error.Canceled", []interface{}{"input canceled"})

// agent is the net.connman.Agent object ConnMan calls when a service needs
// a passphrase. RequestInput raises InputRequired on the bus and holds the
// D-Bus reply until the passphrase is provided, canceled or timed out.
type agent struct {
	mu      sync.Mutex
	pending map[string]chan string // service id -> passphrase
	cancel  chan struct{}
	timeout time.Duration
	pub     Publisher
	logger  *slog.Logger
}

func newAgent(pub Publisher, timeout time.Duration, logger *slog.Logger) *agent {
	return &agent{
		pending: make(map[string]chan string),
		cancel:  make(chan struct{}),
		timeout: timeout,
		pub:     pub,
		logger:  logger,
	}
}

func (a *agent) Release() *dbus.Error {
	a.logger.Info("agent released by connman")
	return nil
}

func (a *agent) ReportError(service dbus.ObjectPath, msg string) *dbus.Error {
	a.logger.Warn("connman reported error", "service", service, "error", msg)
	return nil
}

func (a *agent) RequestBrowser(service dbus.ObjectPath, url string) *dbus.Error {
	a.logger.Info("browser login not supported", "service", service, "url", url)
	return errAgentCanceled
}

func (a *agent) RequestInput(service dbus.ObjectPath, fields map[string]dbus.Variant) (map[string]dbus.Variant, *dbus.Error) {
	id := string(service)
	if _, ok := fields["Passphrase"]; !ok {
		a.logger.Info("input request without passphrase field", "service", id)
		return nil, errAgentCanceled
	}

	ch := make(chan string, 1)
	a.mu.Lock()
	a.pending[id] = ch
	cancel := a.cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.pending[id] == ch {
			delete(a.pending, id)
		}
		a.mu.Unlock()
	}()

	if err := a.pub.Publish(InputRequired{ServiceID: id}); err != nil {
		a.logger.Warn("publish input request", "service", id, "error", err)
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case pass := <-ch:
		return map[string]dbus.Variant{"Passphrase": dbus.MakeVariant(pass)}, nil
	case <-timer.C:
		a.logger.Warn("timed out waiting for passphrase", "service", id)
		return nil, errAgentCanceled
	case <-cancel:
		return nil, errAgentCanceled
	}
}

// Cancel aborts every outstanding input request.
func (a *agent) Cancel() *dbus.Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	close(a.cancel)
	a.cancel = make(chan struct{})
	return nil
}

// provide answers the outstanding input request for serviceID.
func (a *agent) provide(serviceID, passphrase string) error {
	a.mu.Lock()
	ch, ok := a.pending[serviceID]
	if ok {
		delete(a.pending, serviceID)
	}
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", serviceID, ErrNoInputRequest)
	}
	ch <- passphrase
	return nil
}
