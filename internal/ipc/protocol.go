package ipc

const (
	// CommandPing checks that an indicator is running.
	CommandPing = "ping"
	// CommandRefresh asks the indicator to re-probe the service.
	CommandRefresh = "refresh"
)

// Request is the payload sent to the running indicator.
type Request struct {
	Command string `json:"command"`
}

// Response is the reply emitted by the indicator.
type Response struct {
	Error string `json:"error,omitempty"`
	Unit  string `json:"unit,omitempty"`
	PID   int    `json:"pid,omitempty"`
}
