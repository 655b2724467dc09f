package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/optimistic/src/todos"
	logs "github.com/danmuck/smplog"
	"google.golang.org/protobuf/types/known/structpb"
)

// FrameTimeout bounds how long a started frame may take to arrive in full.
const FrameTimeout = 5 * time.Second

// TCPHandler serves a todos.Service over framed protobuf envelopes. Each
// connection carries any number of request/response pairs in order.
type TCPHandler struct {
	address  string
	listener net.Listener
	service  todos.Service
	coder    Coder
	exit     chan any
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	wg       sync.WaitGroup
	connMu   sync.Mutex
	conns    map[net.Conn]struct{}
}

var _ TransportHandler = (*TCPHandler)(nil)

// TCPHandler generator function
func NewTCPHandler(address string, svc todos.Service) *TCPHandler {
	logs.Debugf("NewTCPHandler(%s)", address)
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPHandler{
		address: address,
		service: svc,
		coder:   DefaultCoder{},
		exit:    make(chan any),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// interface

// Listen and accept connections in the background
func (h *TCPHandler) ListenAndAccept() error {
	logs.Debugf("ListenAndAccept(%s)", h.address)
	var err error
	h.listener, err = net.Listen("tcp", h.address)
	if err != nil {
		return err
	}

	h.wg.Add(1)
	go h.acceptConnections()
	return nil
}

func (h *TCPHandler) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Close stops the accept loop, cancels in-flight service calls, closes open
// connections and waits for their handlers to return.
func (h *TCPHandler) Close() error {
	logs.Debugf("Close(start)")
	h.once.Do(func() {
		close(h.exit)
		h.cancel()
		h.connMu.Lock()
		for conn := range h.conns {
			conn.Close()
		}
		h.connMu.Unlock()
	})
	h.wg.Wait()
	logs.Debugf("Close(done)")
	return nil
}

// private

// listener accept loop
func (h *TCPHandler) acceptConnections() {
	defer h.wg.Done()
	logs.Debugf("acceptConnections(): start")
	defer h.listener.Close()
	for {
		select {
		case <-h.exit:
			logs.Debugf("acceptConnections(): exit")
			return
		default:
			if tl, ok := h.listener.(*net.TCPListener); ok {
				tl.SetDeadline(time.Now().Add(500 * time.Millisecond))
			}
			conn, err := h.listener.Accept()
			if err != nil {
				var opErr *net.OpError
				if errors.As(err, &opErr) && opErr.Timeout() {
					continue
				}
				logs.Warnf("acceptConnections error: %s", err)
				return
			}
			h.wg.Add(1)
			go h.handleConnection(conn)
		}
	}
}

// listener connection handler
func (h *TCPHandler) handleConnection(conn net.Conn) {
	defer h.wg.Done()
	if !h.track(conn) {
		conn.Close()
		return
	}
	// untrack closes conn
	defer h.untrack(conn)
	clientAddr := conn.RemoteAddr().String()
	logs.Debugf("handleConnection(%s): start", clientAddr)

	reader := bufio.NewReader(conn)
	for {
		if h.closing() {
			logs.Debugf("handleConnection(): exit")
			return
		}

		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		if _, err := reader.Peek(1); err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Timeout() {
				continue
			}
			if h.closing() {
				return
			}
			if errors.Is(err, io.EOF) {
				logs.Debugf("handleConnection(%s): closed by peer", clientAddr)
				return
			}
			logs.Warnf("handleConnection(%s): read: %v", clientAddr, err)
			return
		}

		// a frame has started; give the rest of it time to arrive
		conn.SetReadDeadline(time.Now().Add(FrameTimeout))
		msg, err := h.coder.Decode(reader)
		if err != nil {
			if h.closing() {
				return
			}
			logs.Warnf("handleConnection(%s): decode: %v", clientAddr, err)
			return
		}

		resp := h.dispatch(msg)
		out, err := resp.Envelope()
		if err == nil {
			var data []byte
			if data, err = h.coder.Encode(out); err == nil {
				_, err = conn.Write(data)
			}
		}
		if err != nil {
			logs.Warnf("handleConnection(%s): reply: %v", clientAddr, err)
			return
		}
	}
}

// track registers conn for Close. It reports false once Close has begun.
func (h *TCPHandler) track(conn net.Conn) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.closing() {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *TCPHandler) untrack(conn net.Conn) {
	h.connMu.Lock()
	delete(h.conns, conn)
	h.connMu.Unlock()
	conn.Close()
}

func (h *TCPHandler) closing() bool {
	select {
	case <-h.exit:
		return true
	default:
		return false
	}
}

func (h *TCPHandler) dispatch(msg *structpb.Struct) Response {
	req, err := RequestFromEnvelope(msg)
	if err != nil {
		return Response{Code: CodeInternal, Error: err.Error()}
	}
	logs.Debugf("dispatch(%s %s)", req.Op, req.ID)

	var resp Response
	switch req.Op {
	case OpList:
		resp.Todos, err = h.service.List(h.ctx)
	case OpCreate:
		resp.Todo, err = h.service.Create(h.ctx, req.Todo, req.SimulateFailure)
	case OpDelete:
		err = h.service.Delete(h.ctx, req.ID, req.SimulateFailure)
	case OpPatch:
		resp.Todo, err = h.service.Patch(h.ctx, req.ID, req.Updates, req.SimulateFailure)
	}
	if err != nil {
		return errorResponse(err)
	}
	return resp
}

func errorResponse(err error) Response {
	switch {
	case errors.Is(err, todos.ErrNotFound):
		return Response{Code: CodeNotFound, Error: err.Error()}
	case errors.Is(err, todos.ErrSimulated):
		return Response{Code: CodeSimulated, Error: err.Error()}
	default:
		return Response{Code: CodeInternal, Error: err.Error()}
	}
}
