package main

// IPCRequest is sent from the CLI client to the daemon.
type IPCRequest struct {
	Command string   `json:"command"`         // "status" | "hear" | "abort"
	Heard   []string `json:"heard,omitempty"` // words and scores, for "hear"
}

// IPCResponse is sent from the daemon back to the CLI client.
type IPCResponse struct {
	State      string `json:"state,omitempty"`   // flow state, e.g. "awaiting-selection"
	Network    string `json:"network,omitempty"` // network chosen by the user
	Vocabulary int    `json:"vocabulary,omitempty"`
	Error      string `json:"error,omitempty"`
}
