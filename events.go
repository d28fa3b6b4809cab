package main

// EventKind names a stream of events on the bus.
type EventKind string

const (
	KindWordRecognized EventKind = "WordRecognized"
	KindInputRequired  EventKind = "NetworkServiceInputRequired"
	KindStateChanged   EventKind = "NetworkServiceStateChanged"
)

// ServiceState is the connection state reported for a network service.
type ServiceState string

const (
	ServiceIdle          ServiceState = "idle"
	ServiceAssociation   ServiceState = "association"
	ServiceConfiguration ServiceState = "configuration"
	ServiceReady         ServiceState = "ready"
	ServiceOnline        ServiceState = "online"
	ServiceDisconnect    ServiceState = "disconnect"
	ServiceFailure       ServiceState = "failure"
)

// Event is a message delivered by the bus.
type Event interface {
	Kind() EventKind
}

// WordRecognized carries one recognition result, best candidate first.
type WordRecognized struct {
	Candidates []Candidate
}

func (WordRecognized) Kind() EventKind { return KindWordRecognized }

// InputRequired is raised when the connection manager needs credentials
// for a service.
type InputRequired struct {
	ServiceID string
}

func (InputRequired) Kind() EventKind { return KindInputRequired }

// StateChanged reports a new state for a service.
type StateChanged struct {
	ServiceID string
	State     ServiceState
}

func (StateChanged) Kind() EventKind { return KindStateChanged }
