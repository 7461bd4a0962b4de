// Package wmconn implements C1: a single bidirectional session with the
// window manager's local IPC socket (i3/Sway), handling discovery,
// reconnection, subscription, command dispatch, and startup reconciliation.
package wmconn

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// magic is the fixed 6-byte preamble of every i3/Sway IPC message.
var magic = []byte("i3-ipc")

// messageType enumerates the IPC message types this client uses. Values
// match the i3/Sway IPC wire protocol.
type messageType uint32

const (
	msgRunCommand     messageType = 0
	msgGetWorkspaces  messageType = 1
	msgSubscribe      messageType = 2
	msgGetOutputs     messageType = 3
	msgGetTree        messageType = 4
	msgGetMarks       messageType = 5
	msgGetVersion     messageType = 7

	// Event replies have the high bit set on the type field.
	eventMask messageType = 1 << 31

	eventWindow    messageType = eventMask | 3
	eventOutput    messageType = eventMask | 1
	eventMode      messageType = eventMask | 2
	eventWorkspace messageType = eventMask | 0
	eventTick      messageType = eventMask | 26
	eventShutdown  messageType = eventMask | 29
	eventBinding   messageType = eventMask | 23
)

// writeMessage frames a payload per the i3 IPC wire format: 6-byte magic,
// uint32 LE length, uint32 LE type, then the payload bytes.
func writeMessage(w io.Writer, t messageType, payload []byte) error {
	buf := bytes.NewBuffer(nil)
	buf.Write(magic)
	var lenBuf, typeBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(typeBuf[:], uint32(t))
	buf.Write(lenBuf[:])
	buf.Write(typeBuf[:])
	buf.Write(payload)
	_, err := w.Write(buf.Bytes())
	return err
}

// readMessage reads one framed message from r.
func readMessage(r io.Reader) (messageType, []byte, error) {
	hdr := make([]byte, 14)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	if !bytes.Equal(hdr[:6], magic) {
		return 0, nil, fmt.Errorf("bad magic in IPC reply")
	}
	length := binary.LittleEndian.Uint32(hdr[6:10])
	t := messageType(binary.LittleEndian.Uint32(hdr[10:14]))
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return t, payload, nil
}

// commandReply mirrors the per-sub-command reply array returned by
// RUN_COMMAND.
type commandReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func parseCommandReplies(payload []byte) ([]commandReply, error) {
	var replies []commandReply
	if err := json.Unmarshal(payload, &replies); err != nil {
		return nil, fmt.Errorf("parse command reply: %w", err)
	}
	return replies, nil
}
