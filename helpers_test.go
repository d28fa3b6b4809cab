package main

import (
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNarrator struct {
	mu   sync.Mutex
	said []string
}

func (n *recordingNarrator) Say(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.said = append(n.said, text)
}

func (n *recordingNarrator) lines() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.said...)
}

func (n *recordingNarrator) count(text string) int {
	c := 0
	for _, s := range n.lines() {
		if s == text {
			c++
		}
	}
	return c
}

type recordingRecognizer struct {
	vocab []string
	err   error
}

func (r *recordingRecognizer) SetVocabulary(words []string) error {
	if r.err != nil {
		return r.err
	}
	r.vocab = append([]string(nil), words...)
	return nil
}

type collectingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *collectingPublisher) Publish(ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *collectingPublisher) all() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

type fakeBackend struct {
	services   []Service
	scanErr    error
	listErr    error
	connectErr error
	forgetErr  error
	submitErr  error
	wifiUp     bool
	wifiErr    error

	scans     int
	connected []string
	forgotten []string
	submitted map[string]string
}

func (b *fakeBackend) Scan() error {
	b.scans++
	return b.scanErr
}

func (b *fakeBackend) Services() ([]Service, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]Service(nil), b.services...), nil
}

func (b *fakeBackend) Connect(serviceID string) error {
	b.connected = append(b.connected, serviceID)
	return b.connectErr
}

func (b *fakeBackend) Forget(serviceID string) error {
	b.forgotten = append(b.forgotten, serviceID)
	return b.forgetErr
}

func (b *fakeBackend) SubmitCredential(serviceID, passphrase string) error {
	if b.submitErr != nil {
		return b.submitErr
	}
	if b.submitted == nil {
		b.submitted = make(map[string]string)
	}
	b.submitted[serviceID] = passphrase
	return nil
}

func (b *fakeBackend) WifiConnected() (bool, error) {
	return b.wifiUp, b.wifiErr
}

func heard(pairs ...any) WordRecognized {
	var cands []Candidate
	for i := 0; i+1 < len(pairs); i += 2 {
		cands = append(cands, Candidate{Token: pairs[i].(string), Confidence: pairs[i+1].(float64)})
	}
	return WordRecognized{Candidates: cands}
}
