package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName         = "net.connman"
	managerPath     = "/"
	managerIface    = "net.connman.Manager"
	technologyIface = "net.connman.Technology"
	serviceIface    = "net.connman.Service"
	agentIface      = "net.connman.Agent"
	propertySignal  = serviceIface + ".PropertyChanged"
)

// managedService is one entry of Manager.GetServices: a(oa{sv}).
type managedService struct {
	Path  dbus.ObjectPath
	Props map[string]dbus.Variant
}

// connman wraps a system D-Bus connection for ConnMan operations. Service
// ids are ConnMan service object paths.
type connman struct {
	conn       *dbus.Conn
	technology dbus.ObjectPath
	timeout    time.Duration
	agent      *agent
	agentPath  dbus.ObjectPath
	pub        Publisher
	logger     *slog.Logger
}

func newConnman(cfg ConnmanConfig, pub Publisher, logger *slog.Logger) (*connman, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	// Quick check that ConnMan is on the bus.
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("net.connman not found on system bus, is connman.service running?")
	}

	c := &connman{
		conn:       conn,
		technology: dbus.ObjectPath(cfg.Technology),
		timeout:    cfg.CallTimeout,
		agent:      newAgent(pub, cfg.AgentTimeout, logger),
		agentPath:  dbus.ObjectPath(cfg.AgentPath),
		pub:        pub,
		logger:     logger,
	}
	if err := c.registerAgent(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *connman) close() {
	c.agent.Cancel()
	if err := c.call(managerPath, managerIface+".UnregisterAgent", c.agentPath).Err; err != nil {
		c.logger.Warn("unregister agent", "error", err)
	}
	c.conn.Close()
}

func (c *connman) call(path dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.conn.Object(busName, path).CallWithContext(ctx, method, 0, args...)
}

// --- agent ---

func (c *connman) registerAgent() error {
	if err := c.conn.Export(c.agent, c.agentPath, agentIface); err != nil {
		return fmt.Errorf("export agent: %w", err)
	}
	if err := c.call(managerPath, managerIface+".RegisterAgent", c.agentPath).Err; err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	return nil
}

// --- NetworkBackend ---

func (c *connman) Scan() error {
	if err := c.call(c.technology, technologyIface+".Scan").Err; err != nil {
		return fmt.Errorf("scan %s: %w", c.technology, err)
	}
	return nil
}

func (c *connman) Services() ([]Service, error) {
	var raw []managedService
	if err := c.call(managerPath, managerIface+".GetServices").Store(&raw); err != nil {
		return nil, fmt.Errorf("get services: %w", err)
	}
	return wifiServices(raw), nil
}

// wifiServices keeps the wifi entries of a GetServices reply, in order.
func wifiServices(raw []managedService) []Service {
	out := make([]Service, 0, len(raw))
	for _, s := range raw {
		if t, _ := s.Props["Type"].Value().(string); t != "wifi" {
			continue
		}
		name, _ := s.Props["Name"].Value().(string)
		out = append(out, Service{Name: name, ServiceID: string(s.Path)})
	}
	return out
}

// Connect starts connecting without waiting for the outcome; ConnMan holds
// the reply until the link is up, asking the agent for input on the way.
// A failed reply is reported as a failure state for the service.
func (c *connman) Connect(serviceID string) error {
	path := dbus.ObjectPath(serviceID)
	if !path.IsValid() {
		return fmt.Errorf("invalid service path %q", serviceID)
	}
	call := c.conn.Object(busName, path).Go(serviceIface+".Connect", 0, make(chan *dbus.Call, 1))
	if call.Err != nil {
		return fmt.Errorf("connect %s: %w", serviceID, call.Err)
	}
	go func() {
		done := <-call.Done
		if done.Err == nil || isDBusError(done.Err, "net.connman.Error.AlreadyConnected") {
			return
		}
		c.logger.Warn("connect failed", "service", serviceID, "error", done.Err)
		if err := c.pub.Publish(StateChanged{ServiceID: serviceID, State: ServiceFailure}); err != nil {
			c.logger.Warn("publish connect failure", "error", err)
		}
	}()
	return nil
}

func (c *connman) Forget(serviceID string) error {
	path := dbus.ObjectPath(serviceID)
	if !path.IsValid() {
		return fmt.Errorf("invalid service path %q", serviceID)
	}
	if err := c.call(path, serviceIface+".Remove").Err; err != nil {
		return fmt.Errorf("remove %s: %w", serviceID, err)
	}
	return nil
}

func (c *connman) SubmitCredential(serviceID, passphrase string) error {
	return c.agent.provide(serviceID, passphrase)
}

// WifiConnected reads the wifi technology's Connected flag. The manager's
// State also counts wired links, so it cannot answer this.
func (c *connman) WifiConnected() (bool, error) {
	var props map[string]dbus.Variant
	if err := c.call(c.technology, technologyIface+".GetProperties").Store(&props); err != nil {
		return false, fmt.Errorf("get %s properties: %w", c.technology, err)
	}
	return technologyConnected(props)
}

func technologyConnected(props map[string]dbus.Variant) (bool, error) {
	v, ok := props["Connected"]
	if !ok {
		return false, fmt.Errorf("technology has no Connected property")
	}
	up, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("technology Connected is %T, not bool", v.Value())
	}
	return up, nil
}

func isDBusError(err error, name string) bool {
	dErr, ok := err.(dbus.Error)
	if !ok {
		if p, isPtr := err.(*dbus.Error); isPtr && p != nil {
			dErr, ok = *p, true
		}
	}
	return ok && dErr.Name == name
}

// --- signal subscription ---

const serviceMatchRule = "type='signal',interface='" + serviceIface + "',member='PropertyChanged'"

// subscribeServiceChanges adds the match rule and returns the signal channel.
// A failed match is logged; the channel then only carries what the bus
// delivers unasked.
func (c *connman) subscribeServiceChanges() chan *dbus.Signal {
	call := c.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, serviceMatchRule)
	c.logMatchError(call.Err)
	ch := make(chan *dbus.Signal, 16)
	c.conn.Signal(ch)
	return ch
}

func (c *connman) logMatchError(err error) {
	if err != nil {
		c.logger.Warn("add match rule, service state changes will not arrive", "rule", serviceMatchRule, "error", err)
	}
}

// stateChange decodes a service PropertyChanged signal carrying a new State.
func stateChange(sig *dbus.Signal) (StateChanged, bool) {
	if sig.Name != propertySignal {
		return StateChanged{}, false
	}
	// Body: [name string, value Variant]
	if len(sig.Body) < 2 {
		return StateChanged{}, false
	}
	name, ok := sig.Body[0].(string)
	if !ok || name != "State" {
		return StateChanged{}, false
	}
	v, ok := sig.Body[1].(dbus.Variant)
	if !ok {
		return StateChanged{}, false
	}
	state, ok := v.Value().(string)
	if !ok {
		return StateChanged{}, false
	}
	return StateChanged{ServiceID: string(sig.Path), State: ServiceState(state)}, true
}

// watchSignals forwards service state changes to the bus until sigCh closes.
func (c *connman) watchSignals(sigCh chan *dbus.Signal) {
	for sig := range sigCh {
		ev, ok := stateChange(sig)
		if !ok {
			continue
		}
		c.logger.Debug("service state", "service", ev.ServiceID, "state", ev.State)
		if err := c.pub.Publish(ev); err != nil {
			c.logger.Warn("publish state change", "error", err)
		}
	}
}
