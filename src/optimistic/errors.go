package optimistic

import (
	"errors"
	"fmt"
)

// ErrMutationFailed is the cause reported when a commit fails with something
// that is not an error value (a panic with a string, for instance).
var ErrMutationFailed = errors.New("Mutation failed")

// MutationError is the normalised failure published after a commit fails.
// Its message is the original error's message when one was available.
type MutationError struct {
	ID  uint64 // mutation that failed
	Err error  // original cause, or ErrMutationFailed
}

func (e *MutationError) Error() string {
	return e.Err.Error()
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// normalizeFailure turns whatever a commit produced (a returned error or a
// recovered panic value) into a *MutationError.
func normalizeFailure(id uint64, v any) *MutationError {
	var me *MutationError
	switch cause := v.(type) {
	case nil:
		return &MutationError{ID: id, Err: ErrMutationFailed}
	case error:
		if errors.As(cause, &me) {
			return &MutationError{ID: id, Err: me.Err}
		}
		return &MutationError{ID: id, Err: cause}
	default:
		return &MutationError{ID: id, Err: ErrMutationFailed}
	}
}

func mutationName(id uint64) string {
	return fmt.Sprintf("mutation-%d", id)
}
