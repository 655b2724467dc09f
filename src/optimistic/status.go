package optimistic

// Status summarises every mutation that is in flight or has just resolved on
// a tracker. It is never a per-mutation value.
type Status uint8

const (
	StatusIdle    Status = iota // nothing has run yet
	StatusPending               // at least one mutation in flight
	StatusSuccess               // registry last drained by a successful commit
	StatusError                 // registry last drained by a failed commit
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is one published view of a tracker. Version increases by one on
// every publication, so subscribers can order what they receive.
type State[S any] struct {
	Value   S
	Status  Status
	Err     error
	Version uint64
}
