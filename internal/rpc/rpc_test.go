package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rpc.sock")
	s := New(path, nil)
	s.Register("echo", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		var req map[string]interface{}
		_ = json.Unmarshal(params, &req)
		return req, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	time.Sleep(10 * time.Millisecond)

	return s, func() { cancel(); s.Close() }
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	return conn
}

func TestEchoMethodRoundTrip(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn := dial(t, s.socketPath)
	defer conn.Close()

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":"1","method":"echo","params":{"x":1}}` + "\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.Nil(t, resp.Error)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn := dial(t, s.socketPath)
	defer conn.Close()

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":"1","method":"nope"}` + "\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestInvalidJSONReturnsParseError(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn := dial(t, s.socketPath)
	defer conn.Close()

	_, err := conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

func TestSubscribeAndBroadcast(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()
	s.Register("subscribe_events", func(ctx context.Context, clientID string, params json.RawMessage) (interface{}, *Error) {
		s.SetSubscribed(clientID, true)
		return map[string]interface{}{"subscribed": true}, nil
	})

	conn := dial(t, s.socketPath)
	defer conn.Close()

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":"1","method":"subscribe_events"}` + "\n"))
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	s.Broadcast("test_event", map[string]string{"hello": "world"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var notif struct {
		Method string `json:"method"`
	}
	require.NoError(t, json.Unmarshal([]byte(line), &notif))
	assert.Equal(t, "test_event", notif.Method)
}

func TestListClientsReportsConnection(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn := dial(t, s.socketPath)
	defer conn.Close()

	_, err := conn.Write([]byte(`{"jsonrpc":"2.0","id":"1","method":"echo","params":{}}` + "\n"))
	require.NoError(t, err)
	reader := bufio.NewReader(conn)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	clients := s.ListClients()
	require.Len(t, clients, 1)
}
