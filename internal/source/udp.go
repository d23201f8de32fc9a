package source

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"dbgview/internal/logline"
)

// UDPReader receives one message per datagram, the way remote DebugView agents and
// syslog-style emitters send them.
type UDPReader struct {
	Base
	conn *net.UDPConn
}

var _ LogSource = &UDPReader{}

// NewUDPReader listens on addr, e.g. ":2020" or "127.0.0.1:0".
func NewUDPReader(timer *logline.Timer, addr string) (*UDPReader, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", addr, err)
	}

	u := &UDPReader{conn: conn}
	u.init(timer, "UDP "+conn.LocalAddr().String(), u)
	go u.receive()
	return u, nil
}

// Addr is the bound local address.
func (u *UDPReader) Addr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDPReader) receive() {
	buf := make([]byte, 65536)
	for {
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Warn("UDP receive failed", "source", u.Description(), "error", err)
			}
			u.finish()
			return
		}
		msg := buf[:n]
		if i := bytes.IndexByte(msg, 0); i >= 0 {
			msg = msg[:i]
		}
		u.Add(0, fmt.Sprintf("[UDP %s]", from), string(msg))
	}
}

func (u *UDPReader) Abort() {
	u.Base.Abort()
	_ = u.conn.Close()
}
