// Package sdnotify speaks the systemd service-notification protocol
// directly against the NOTIFY_SOCKET datagram socket. No repo in the
// example corpus imports a sd_notify helper library, so this one piece is
// hand-written against the documented wire protocol instead of adapted
// from a pack dependency.
package sdnotify

import (
	"net"
	"os"
)

// Notify sends state to the socket named by NOTIFY_SOCKET. It is a no-op,
// returning nil, when the variable is unset — the common case outside a
// systemd unit.
func Notify(state string) error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return nil
	}
	if addr[0] == '@' {
		addr = "\x00" + addr[1:]
	}

	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write([]byte(state))
	return err
}

// Ready announces successful startup.
func Ready() error { return Notify("READY=1") }

// Stopping announces the start of graceful shutdown.
func Stopping() error { return Notify("STOPPING=1") }

// Watchdog announces liveness for the service manager's watchdog timer.
func Watchdog() error { return Notify("WATCHDOG=1") }
