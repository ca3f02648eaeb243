package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	errDataTimeout = errors.New("timed out waiting for data connection")
	errDataClosed  = errors.New("data connection already used")
)

type acceptResult struct {
	conn net.Conn
	err  error
}

// dataChannel is a passive-mode data connection: a listener that accepts
// exactly one client connection in the background and then stops listening.
//
// It is owned by a single session and only touched from that session's
// goroutine. The accept goroutine communicates through result only.
type dataChannel struct {
	ln       net.Listener
	result   chan acceptResult
	received bool
	conn     net.Conn
}

// openPassive binds host:port (port 0 picks an ephemeral port) and starts
// waiting for the client in the background.
func openPassive(host string, port uint16) (*dataChannel, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}

	dc := &dataChannel{
		ln:     ln,
		result: make(chan acceptResult, 1),
	}
	go dc.acceptOne()
	return dc, nil
}

func (dc *dataChannel) acceptOne() {
	conn, err := dc.ln.Accept()
	// No further connections on this listener.
	_ = dc.ln.Close()
	dc.result <- acceptResult{conn: conn, err: err}
}

// wait blocks until the client has connected, the timeout expires or ctx is
// done. Once the connection is established it is returned on every call until
// close.
func (dc *dataChannel) wait(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	if dc.conn != nil {
		return dc.conn, nil
	}
	if dc.received {
		return nil, errDataClosed
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-dc.result:
		return dc.take(r)
	case <-expired:
	case <-ctx.Done():
	}

	// Unblock Accept; a connection that slipped in meanwhile is still used.
	_ = dc.ln.Close()
	if conn, err := dc.take(<-dc.result); err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, errDataTimeout
}

func (dc *dataChannel) take(r acceptResult) (net.Conn, error) {
	dc.received = true
	if r.err != nil {
		return nil, r.err
	}
	dc.conn = r.conn
	return dc.conn, nil
}

// close stops listening and closes the data connection if one was accepted.
func (dc *dataChannel) close() {
	_ = dc.ln.Close()
	if !dc.received {
		r := <-dc.result
		dc.received = true
		if r.conn != nil {
			_ = r.conn.Close()
		}
	}
	if dc.conn != nil {
		_ = dc.conn.Close()
		dc.conn = nil
	}
}

// pasvReply formats the 227 message for the listener address. An
// unspecified or non-IPv4 listen address falls back to fallback, then to
// 0.0.0.0.
func (dc *dataChannel) pasvReply(fallback net.IP) string {
	addr, _ := dc.ln.Addr().(*net.TCPAddr)

	var ip net.IP
	var port int
	if addr != nil {
		ip = addr.IP.To4()
		port = addr.Port
	}
	if ip == nil || ip.IsUnspecified() {
		ip = fallback.To4()
	}
	if ip == nil {
		ip = net.IPv4zero.To4()
	}

	return fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d).",
		ip[0], ip[1], ip[2], ip[3], port>>8, port&0xFF)
}
