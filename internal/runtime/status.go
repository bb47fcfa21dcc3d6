package runtime

// Status is an agent runtime's lifecycle state. It is stored atomically:
// the processing loop writes it while the heartbeat loop and snapshot
// readers observe it.
type Status int32

const (
	StatusInitializing Status = iota
	StatusActive
	StatusBusy
	StatusIdle
	StatusError
	StatusShutdown
)

var statusNames = map[Status]string{
	StatusInitializing: "initializing",
	StatusActive:       "active",
	StatusBusy:         "busy",
	StatusIdle:         "idle",
	StatusError:        "error",
	StatusShutdown:     "shutdown",
}

// String returns the reporting name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}
