package main

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// FlowState is the position of the connection flow.
type FlowState string

const (
	StateIdle                 FlowState = "idle"
	StateListing              FlowState = "listing"
	StateAwaitingSelection    FlowState = "awaiting-selection"
	StateAwaitingCredentials  FlowState = "awaiting-credentials"
	StateAwaitingConfirmation FlowState = "awaiting-confirmation"
	StateConnected            FlowState = "connected"
	StateNoNetworks           FlowState = "no-networks"
	StateStopped              FlowState = "stopped"
)

// terminal reports whether the flow has nothing left to do.
func (s FlowState) terminal() bool {
	return s == StateConnected || s == StateNoNetworks || s == StateStopped
}

// FlowConfig tunes the connection flow.
type FlowConfig struct {
	StopWord  string `mapstructure:"stop_word"`
	Threshold float64
	Margin    float64
	Pause     time.Duration
}

// connectionFlow walks the user from hearing the network list to a
// connected network. All of its handlers run on the bus's dispatch
// goroutine; only the status snapshot is read from elsewhere.
type connectionFlow struct {
	cfg        FlowConfig
	catalog    *networkCatalog
	bus        EventBus
	recognizer SpeechRecognizer
	narrator   SpeechSynthesizer
	logger     *slog.Logger
	handlerID  string

	networks []string
	speller  *spellingSession

	mu     sync.Mutex
	state  FlowState
	chosen string
}

func newConnectionFlow(cfg FlowConfig, catalog *networkCatalog, bus EventBus, recognizer SpeechRecognizer, narrator SpeechSynthesizer, logger *slog.Logger) *connectionFlow {
	return &connectionFlow{
		cfg:        cfg,
		catalog:    catalog,
		bus:        bus,
		recognizer: recognizer,
		narrator:   narrator,
		logger:     logger,
		handlerID:  newHandlerID("flow"),
		state:      StateIdle,
	}
}

// State returns the current state.
func (f *connectionFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Chosen returns the network the user picked, if any.
func (f *connectionFlow) Chosen() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chosen
}

func (f *connectionFlow) transition(to FlowState) {
	f.mu.Lock()
	from := f.state
	f.state = to
	f.mu.Unlock()
	if from != to {
		f.logger.Info("flow state", "from", from, "to", to)
	}
}

func (f *connectionFlow) setChosen(name string) {
	f.mu.Lock()
	f.chosen = name
	f.mu.Unlock()
}

// Start runs the flow from Idle.
func (f *connectionFlow) Start() {
	f.transition(StateIdle)
	if f.catalog.IsConnected() {
		f.narrator.Say("You are already connected")
		f.transition(StateConnected)
		return
	}
	f.list()
}

// restart re-enters the flow after a failed attempt.
func (f *connectionFlow) restart() {
	if f.State() == StateStopped {
		return
	}
	f.setChosen("")
	f.catalog.ClearPending()
	f.Start()
}

func (f *connectionFlow) list() {
	f.transition(StateListing)
	networks, err := f.catalog.ListNetworks()
	if err != nil {
		f.logger.Warn("list networks", "error", err)
		networks = nil
	}
	f.networks = networks

	f.narrator.Say("Here are the Wi Fi networks")
	for i, name := range networks {
		f.narrator.Say(name)
		f.narrator.Say("is number " + strconv.Itoa(i+1))
		if f.cfg.Pause > 0 {
			time.Sleep(f.cfg.Pause)
		}
	}
	if len(networks) == 0 {
		f.narrator.Say("Sorry you are in a wifi free zone")
		f.transition(StateNoNetworks)
		return
	}

	f.narrator.Say("Which number Wi Fi network shall I connect to?")
	// A leftover subscription from an earlier round would double-handle.
	_ = f.bus.Unsubscribe(KindWordRecognized, f.handlerID)
	ordinals := make([]string, len(networks))
	for i := range networks {
		ordinals[i] = strconv.Itoa(i + 1)
	}
	if err := f.recognizer.SetVocabulary(ordinals); err != nil {
		f.logger.Warn("set selection vocabulary", "error", err)
		f.narrator.Say("Could not set vocabulary")
	}
	f.transition(StateAwaitingSelection)
	f.subscribe(KindWordRecognized, f.onWordRecognized)
}

func (f *connectionFlow) subscribe(kind EventKind, h Handler) {
	if err := f.bus.Subscribe(kind, f.handlerID, h); err != nil {
		f.logger.Warn("subscribe", "event", kind, "error", err)
	}
}

func (f *connectionFlow) unsubscribe(kind EventKind) error {
	err := f.bus.Unsubscribe(kind, f.handlerID)
	if err != nil {
		f.logger.Warn("unsubscribe", "event", kind, "error", err)
	}
	return err
}

// selection maps an ordinal token onto a listed network.
func (f *connectionFlow) selection(tok string) (string, bool) {
	n, err := strconv.Atoi(tok)
	if err != nil || n < 1 || n > len(f.networks) {
		return "", false
	}
	return f.networks[n-1], true
}

func (f *connectionFlow) onWordRecognized(ev Event) {
	wr, ok := ev.(WordRecognized)
	if !ok || f.State() != StateAwaitingSelection {
		return
	}
	_ = f.unsubscribe(KindWordRecognized)

	v, ok := tally(wr.Candidates)
	g := gate{threshold: f.cfg.Threshold}
	var name string
	if ok && g.accept(v) {
		name, ok = f.selection(v.best.Token)
	} else {
		ok = false
	}
	if !ok {
		f.logger.Debug("selection rejected", "best", v.best.Token, "confidence", v.best.Confidence)
		f.subscribe(KindWordRecognized, f.onWordRecognized)
		return
	}

	f.setChosen(name)
	f.narrator.Say("You chose Wi Fi network " + name)
	f.subscribe(KindInputRequired, f.onInputRequired)
	f.subscribe(KindStateChanged, f.onStateChanged)
	f.transition(StateAwaitingCredentials)

	if err := f.catalog.Connect(name); err != nil {
		f.logger.Warn("connect", "network", name, "error", err)
		f.narrator.Say("Sorry, I could not connect to " + name)
		_ = f.unsubscribe(KindInputRequired)
		_ = f.unsubscribe(KindStateChanged)
		f.restart()
	}
}

func (f *connectionFlow) onInputRequired(ev Event) {
	ir, ok := ev.(InputRequired)
	if !ok || f.State() != StateAwaitingCredentials {
		return
	}
	if ir.ServiceID != f.catalog.Pending() {
		f.logger.Debug("input request for another service", "service", ir.ServiceID)
		return
	}
	_ = f.unsubscribe(KindInputRequired)
	if err := f.unsubscribe(KindStateChanged); err != nil {
		return
	}

	f.narrator.Say("I need a password, please spell it to me")
	f.speller = newSpellingSession(f.bus, f.recognizer, f.narrator,
		gate{threshold: f.cfg.Threshold, margin: f.cfg.Margin}, f.logger)
	if err := f.speller.begin(f.onPassword, f.cfg.StopWord); err != nil {
		f.logger.Warn("begin spelling", "error", err)
		f.speller = nil
		f.narrator.Say("Sorry, I cannot listen for a password right now")
		f.restart()
	}
}

func (f *connectionFlow) onPassword(password string) {
	f.speller = nil
	if f.State() != StateAwaitingCredentials {
		return
	}
	f.subscribe(KindStateChanged, f.onStateChanged)
	f.narrator.Say("Connecting")
	f.transition(StateAwaitingConfirmation)

	if err := f.catalog.SubmitPassword(password); err != nil {
		f.logger.Warn("submit password", "error", err)
		f.narrator.Say("Sorry, something went wrong with the password")
		_ = f.unsubscribe(KindStateChanged)
		f.restart()
	}
}

func (f *connectionFlow) onStateChanged(ev Event) {
	sc, ok := ev.(StateChanged)
	if !ok {
		return
	}
	if st := f.State(); st != StateAwaitingCredentials && st != StateAwaitingConfirmation {
		return
	}
	if sc.ServiceID == "" || sc.ServiceID != f.catalog.Pending() {
		f.logger.Debug("ignoring state of another service", "service", sc.ServiceID, "state", sc.State)
		return
	}

	switch sc.State {
	case ServiceReady, ServiceOnline:
		f.narrator.Say("I am now connected and so happy")
		_ = f.unsubscribe(KindStateChanged)
		_ = f.bus.Unsubscribe(KindInputRequired, f.handlerID)
		f.catalog.ClearPending()
		f.transition(StateConnected)

	case ServiceFailure:
		f.narrator.Say("I am not connected and am sad")
		_ = f.unsubscribe(KindStateChanged)
		_ = f.bus.Unsubscribe(KindInputRequired, f.handlerID)
		if name := f.Chosen(); name != "" {
			if err := f.catalog.Forget(name); err != nil {
				f.logger.Warn("forget", "network", name, "error", err)
			}
		}
		f.restart()
	}
}

// Stop shuts the flow down: every listener is dropped and a spelling
// session in progress is abandoned. Missing subscriptions are fine.
func (f *connectionFlow) Stop() {
	if f.State() == StateStopped {
		return
	}
	f.transition(StateStopped)
	f.narrator.Say("You terminated me!")
	if f.speller != nil {
		f.speller.end()
		f.speller = nil
	}
	for _, kind := range []EventKind{KindWordRecognized, KindInputRequired, KindStateChanged} {
		if err := f.bus.Unsubscribe(kind, f.handlerID); err != nil && !errors.Is(err, ErrNotSubscribed) {
			f.logger.Warn("unsubscribe on stop", "event", kind, "error", err)
		}
	}
}
