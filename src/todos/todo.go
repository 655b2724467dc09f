package todos

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("todo not found")
	ErrSimulated = errors.New("simulated failure")
)

// Todo is the item the mock service stores.
type Todo struct {
	ID        string `json:"id" toml:"id"`
	Text      string `json:"text" toml:"text"`
	Completed bool   `json:"completed" toml:"completed"`
}

// Updates is a partial Todo; nil fields are left alone.
type Updates struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// Apply returns t with the non-nil fields of u overlaid.
func (u Updates) Apply(t Todo) Todo {
	if u.Text != nil {
		t.Text = *u.Text
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
	return t
}

// Service is the todo API as seen by a commit operation. Store implements it
// in process; Client and transport.Client reach a remote Store.
// simulateFailure asks the server to fail the write after its usual latency.
type Service interface {
	List(ctx context.Context) ([]Todo, error)
	Create(ctx context.Context, todo Todo, simulateFailure bool) (Todo, error)
	Delete(ctx context.Context, id string, simulateFailure bool) error
	Patch(ctx context.Context, id string, updates Updates, simulateFailure bool) (Todo, error)
}
