package meter

// ServerState represents the lifecycle state of a Server.
type ServerState int

const (
	// ServerStateUninitialized is the initial state before NewServer completes.
	ServerStateUninitialized ServerState = iota

	// ServerStateInitialized means the server is created but not started.
	ServerStateInitialized

	// ServerStateStarting means Start() has been called and the transports are coming up.
	ServerStateStarting

	// ServerStateRunning means the server accepts associations.
	ServerStateRunning

	// ServerStateStopping means Stop() has been called and shutdown is in progress.
	ServerStateStopping

	// ServerStateStopped means the server has been shut down.
	ServerStateStopped
)

// String returns a human-readable name for the state.
func (s ServerState) String() string {
	switch s {
	case ServerStateUninitialized:
		return "Uninitialized"
	case ServerStateInitialized:
		return "Initialized"
	case ServerStateStarting:
		return "Starting"
	case ServerStateRunning:
		return "Running"
	case ServerStateStopping:
		return "Stopping"
	case ServerStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// IsRunning returns true if the server is serving requests.
func (s ServerState) IsRunning() bool {
	return s == ServerStateRunning
}

// CanStart returns true if Start() can be called in this state.
func (s ServerState) CanStart() bool {
	return s == ServerStateInitialized
}

// CanStop returns true if Stop() can be called in this state.
func (s ServerState) CanStop() bool {
	return s.IsRunning() || s == ServerStateStarting
}
