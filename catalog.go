package main

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNoSuchNetwork       = errors.New("no such network")
	ErrNoPendingConnection = errors.New("no pending connection")
)

// Service is a network as the backend reports it.
type Service struct {
	Name      string
	ServiceID string
}

// NetworkBackend is the connection manager doing the actual networking.
type NetworkBackend interface {
	Scan() error
	Services() ([]Service, error)
	Connect(serviceID string) error
	Forget(serviceID string) error
	SubmitCredential(serviceID, passphrase string) error
	WifiConnected() (bool, error)
}

// networkCatalog maps spoken network names onto backend services and tracks
// the single in-flight connection attempt.
type networkCatalog struct {
	backend  NetworkBackend
	networks map[string]string // name -> service id
	pending  string
	logger   *slog.Logger
}

func newNetworkCatalog(backend NetworkBackend, logger *slog.Logger) *networkCatalog {
	return &networkCatalog{
		backend:  backend,
		networks: make(map[string]string),
		logger:   logger,
	}
}

// ListNetworks scans and replaces the known networks with the result.
// Names come back in discovery order; unnamed services are skipped.
func (c *networkCatalog) ListNetworks() ([]string, error) {
	if err := c.backend.Scan(); err != nil {
		// A failed scan still leaves the backend's last known services.
		c.logger.Warn("scan failed", "error", err)
	}
	services, err := c.backend.Services()
	c.networks = make(map[string]string, len(services))
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	names := make([]string, 0, len(services))
	for _, s := range services {
		if s.Name == "" {
			continue
		}
		if _, dup := c.networks[s.Name]; dup {
			continue
		}
		c.networks[s.Name] = s.ServiceID
		names = append(names, s.Name)
	}
	c.logger.Debug("networks listed", "count", len(names))
	return names, nil
}

func (c *networkCatalog) lookup(name string) (string, error) {
	id, ok := c.networks[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoSuchNetwork, name)
	}
	return id, nil
}

// Connect starts connecting to name and makes it the pending connection.
func (c *networkCatalog) Connect(name string) error {
	id, err := c.lookup(name)
	if err != nil {
		return err
	}
	c.pending = id
	c.logger.Info("connecting", "network", name, "service", id)
	if err := c.backend.Connect(id); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrNoSuchNetwork, name, err)
	}
	return nil
}

// Forget drops the stored credentials for name.
func (c *networkCatalog) Forget(name string) error {
	id, err := c.lookup(name)
	if err != nil {
		return err
	}
	c.logger.Info("forgetting", "network", name, "service", id)
	if err := c.backend.Forget(id); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrNoSuchNetwork, name, err)
	}
	return nil
}

// SubmitPassword hands secret to the pending connection attempt.
func (c *networkCatalog) SubmitPassword(secret string) error {
	if c.pending == "" {
		return ErrNoPendingConnection
	}
	if err := c.backend.SubmitCredential(c.pending, secret); err != nil {
		return fmt.Errorf("submit credential for %s: %w", c.pending, err)
	}
	return nil
}

// Pending returns the service id of the in-flight attempt, or "".
func (c *networkCatalog) Pending() string {
	return c.pending
}

func (c *networkCatalog) ClearPending() {
	c.pending = ""
}

// IsConnected asks the backend whether wifi has a link up. It is a
// point-in-time answer; connection progress is followed through StateChanged
// events.
func (c *networkCatalog) IsConnected() bool {
	up, err := c.backend.WifiConnected()
	if err != nil {
		c.logger.Warn("query wifi connection", "error", err)
		return false
	}
	return up
}
