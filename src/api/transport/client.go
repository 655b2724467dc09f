package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/danmuck/optimistic/src/todos"
)

var _ todos.Service = (*Client)(nil)

// Client reaches a TCPHandler. It implements todos.Service, dialling once
// per call.
type Client struct {
	address string
	coder   Coder
	dialer  net.Dialer
}

func NewClient(address string) *Client {
	return &Client{address: address, coder: DefaultCoder{}}
}

func (c *Client) List(ctx context.Context) ([]todos.Todo, error) {
	resp, err := c.call(ctx, Request{Op: OpList})
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return resp.Todos, nil
}

func (c *Client) Create(ctx context.Context, todo todos.Todo, simulateFailure bool) (todos.Todo, error) {
	resp, err := c.call(ctx, Request{Op: OpCreate, Todo: todo, SimulateFailure: simulateFailure})
	if err != nil {
		return todos.Todo{}, fmt.Errorf("failed to add todo: %w", err)
	}
	return resp.Todo, nil
}

func (c *Client) Delete(ctx context.Context, id string, simulateFailure bool) error {
	if _, err := c.call(ctx, Request{Op: OpDelete, ID: id, SimulateFailure: simulateFailure}); err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return nil
}

func (c *Client) Patch(ctx context.Context, id string, updates todos.Updates, simulateFailure bool) (todos.Todo, error) {
	resp, err := c.call(ctx, Request{Op: OpPatch, ID: id, Updates: updates, SimulateFailure: simulateFailure})
	if err != nil {
		return todos.Todo{}, fmt.Errorf("failed to update todo: %w", err)
	}
	return resp.Todo, nil
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	// unblock reads and writes when ctx ends
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	msg, err := req.Envelope()
	if err != nil {
		return Response{}, err
	}
	data, err := c.coder.Encode(msg)
	if err != nil {
		return Response{}, err
	}
	if _, err := conn.Write(data); err != nil {
		return Response{}, contextOr(ctx, err)
	}

	out, err := c.coder.Decode(conn)
	if err != nil {
		return Response{}, contextOr(ctx, err)
	}
	resp := ResponseFromEnvelope(out)
	return resp, resp.Err()
}

// contextOr prefers the ctx error when ctx is what broke the connection.
func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
