// Package rpc implements C13: a newline-delimited JSON-RPC 2.0 server over
// a local Unix domain socket, grounded on the original daemon's rpc/server.py
// (same framing, same method names) and on the request-dispatch-table
// pattern used by Unix-socket RPC servers in the broader example corpus.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/i3pm/eventcore/internal/logx"
)

// Request is one JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MethodFunc handles one RPC method given its raw params and the calling
// client's connection id (for subscribe_events/list_monitors bookkeeping).
type MethodFunc func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error)

// Client tracks one connected RPC client's subscription state.
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	Subscribed  bool

	conn net.Conn
	mu   sync.Mutex
}

func (c *Client) writeLine(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(append(b, '\n'))
	return err
}

// Server is C13's Unix-socket JSON-RPC server.
type Server struct {
	socketPath string
	methods    map[string]MethodFunc
	log        *logx.Logger

	mu      sync.Mutex
	clients map[string]*Client
	nextID  int64

	listener net.Listener
}

// New builds a Server bound to socketPath (created on Start).
func New(socketPath string, log *logx.Logger) *Server {
	if log == nil {
		log = logx.New("rpc")
	}
	return &Server{
		socketPath: socketPath,
		methods:    make(map[string]MethodFunc),
		clients:    make(map[string]*Client),
		log:        log,
	}
}

// Register adds a method handler. Call before Start.
func (s *Server) Register(name string, fn MethodFunc) {
	s.methods[name] = fn
}

// Start removes any stale socket file, binds, and begins accepting
// connections in a background goroutine. Call Close (or cancel ctx) to shut
// down.
func (s *Server) Start(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go s.acceptLoop(ctx)
	return nil
}

// StartOnListener binds to a pre-bound listener (e.g. systemd socket
// activation's fd=3) instead of creating one from socketPath.
func (s *Server) StartOnListener(ctx context.Context, ln net.Listener) {
	s.listener = ln
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go s.acceptLoop(ctx)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.Printf("accept error: %v", err)
				return
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	client := s.addClient(conn)
	defer s.removeClient(client.ID)
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		resp := s.dispatch(ctx, client, line)
		if resp == nil {
			continue
		}
		out, err := json.Marshal(resp)
		if err != nil {
			s.log.Printf("marshal response: %v", err)
			continue
		}
		if err := client.writeLine(out); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return &Response{JSONRPC: "2.0", Error: &Error{Code: CodeParseError, Message: "invalid JSON"}}
	}
	if req.Method == "" {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: CodeInvalidRequest, Message: "missing method"}}
	}

	fn, ok := s.methods[req.Method]
	if !ok {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}}
	}

	result, rpcErr := fn(ctx, client.ID, req.Params)
	if rpcErr != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) addClient(conn net.Conn) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := &Client{
		ID:          fmt.Sprintf("client-%d", s.nextID),
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		conn:        conn,
	}
	s.clients[c.ID] = c
	return c
}

func (s *Server) removeClient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

// SetSubscribed flips a client's event-subscription flag (subscribe_events).
func (s *Server) SetSubscribed(clientID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[clientID]; ok {
		c.Subscribed = enabled
	}
}

// ListClients returns a snapshot of connected clients (list_monitors).
func (s *Server) ListClients() []Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, Client{ID: c.ID, RemoteAddr: c.RemoteAddr, ConnectedAt: c.ConnectedAt, Subscribed: c.Subscribed})
	}
	return out
}

// Broadcast pushes a JSON-RPC notification (no id) to every subscribed
// client; used by the router on ring inserts and mode-manager events.
func (s *Server) Broadcast(method string, params interface{}) {
	notification := struct {
		JSONRPC string      `json:"jsonrpc"`
		Method  string      `json:"method"`
		Params  interface{} `json:"params,omitempty"`
	}{JSONRPC: "2.0", Method: method, Params: params}

	out, err := json.Marshal(notification)
	if err != nil {
		s.log.Printf("marshal notification: %v", err)
		return
	}

	s.mu.Lock()
	targets := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.Subscribed {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.writeLine(out); err != nil {
			s.log.Printf("broadcast to %s failed: %v", c.ID, err)
		}
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	if s.listener != nil {
		s.listener.Close()
	}
	return os.Remove(s.socketPath)
}
