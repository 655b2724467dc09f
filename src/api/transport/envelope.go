package transport

import (
	"fmt"

	"github.com/danmuck/optimistic/src/todos"
	"google.golang.org/protobuf/types/known/structpb"
)

// Operations carried in a request envelope.
const (
	OpList   = "list"
	OpCreate = "create"
	OpDelete = "delete"
	OpPatch  = "patch"
)

// Error codes carried in a response envelope.
const (
	CodeNotFound  = "not_found"
	CodeSimulated = "simulated"
	CodeInternal  = "internal"
)

// Request is one call against a todos.Service.
type Request struct {
	Op              string
	ID              string
	Todo            todos.Todo
	Updates         todos.Updates
	SimulateFailure bool
}

// Response answers a Request. Code is empty on success.
type Response struct {
	Code  string
	Error string
	Todo  todos.Todo
	Todos []todos.Todo
}

func (r Request) Envelope() (*structpb.Struct, error) {
	updates := map[string]any{}
	if r.Updates.Text != nil {
		updates["text"] = *r.Updates.Text
	}
	if r.Updates.Completed != nil {
		updates["completed"] = *r.Updates.Completed
	}
	return structpb.NewStruct(map[string]any{
		"op":              r.Op,
		"id":              r.ID,
		"todo":            todoFields(r.Todo),
		"updates":         updates,
		"simulateFailure": r.SimulateFailure,
	})
}

func RequestFromEnvelope(msg *structpb.Struct) (Request, error) {
	m := msg.AsMap()
	req := Request{
		Op:              stringField(m, "op"),
		ID:              stringField(m, "id"),
		SimulateFailure: boolField(m, "simulateFailure"),
	}
	if fields, ok := m["todo"].(map[string]any); ok {
		req.Todo = todoFromFields(fields)
	}
	if fields, ok := m["updates"].(map[string]any); ok {
		if v, ok := fields["text"].(string); ok {
			req.Updates.Text = &v
		}
		if v, ok := fields["completed"].(bool); ok {
			req.Updates.Completed = &v
		}
	}
	switch req.Op {
	case OpList, OpCreate, OpDelete, OpPatch:
		return req, nil
	default:
		return req, fmt.Errorf("unknown operation %q", req.Op)
	}
}

func (r Response) Envelope() (*structpb.Struct, error) {
	list := make([]any, 0, len(r.Todos))
	for _, t := range r.Todos {
		list = append(list, todoFields(t))
	}
	return structpb.NewStruct(map[string]any{
		"code":  r.Code,
		"error": r.Error,
		"todo":  todoFields(r.Todo),
		"todos": list,
	})
}

func ResponseFromEnvelope(msg *structpb.Struct) Response {
	m := msg.AsMap()
	resp := Response{
		Code:  stringField(m, "code"),
		Error: stringField(m, "error"),
	}
	if fields, ok := m["todo"].(map[string]any); ok {
		resp.Todo = todoFromFields(fields)
	}
	if list, ok := m["todos"].([]any); ok {
		resp.Todos = make([]todos.Todo, 0, len(list))
		for _, item := range list {
			if fields, ok := item.(map[string]any); ok {
				resp.Todos = append(resp.Todos, todoFromFields(fields))
			}
		}
	}
	return resp
}

// Err maps a failed response back onto the todos sentinels.
func (r Response) Err() error {
	switch r.Code {
	case "":
		return nil
	case CodeNotFound:
		return todos.ErrNotFound
	case CodeSimulated:
		return todos.ErrSimulated
	default:
		return &RemoteError{Message: r.Error}
	}
}

// RemoteError is a server-side failure with no matching sentinel.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

func todoFields(t todos.Todo) map[string]any {
	return map[string]any{
		"id":        t.ID,
		"text":      t.Text,
		"completed": t.Completed,
	}
}

func todoFromFields(m map[string]any) todos.Todo {
	return todos.Todo{
		ID:        stringField(m, "id"),
		Text:      stringField(m, "text"),
		Completed: boolField(m, "completed"),
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
