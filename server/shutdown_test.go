package server

import (
	"net"
	"testing"
	"time"
)

// TestServer_Shutdown verifies that Shutdown stops the server and closes connections.
func TestServer_Shutdown(t *testing.T) {
	t.Parallel()
	// 1. Setup
	server, err := NewServer("127.0.0.1:0",
		WithRoot(t.TempDir()),
		WithCredentials(testCredentials()),
		WithDataTimeout(time.Minute),
	)
	fatalIfErr(t, err, "NewServer failed")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")

	// 2. Start Server
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	// 3. Connect clients: one idle, one blocked waiting for a data connection
	idle := dialRaw(t, ln.Addr().String())
	idle.login("anonymous", "")

	busy := dialRaw(t, ln.Addr().String())
	busy.login("anonymous", "")
	busy.mustCmd(227, "PASV")
	_, err = busy.text.Cmd("LIST")
	fatalIfErr(t, err, "send LIST")

	// Give the session time to start waiting.
	time.Sleep(100 * time.Millisecond)

	// 4. Shutdown Server
	if err := server.Shutdown(); err != nil {
		t.Logf("Shutdown: %v", err)
	}

	// 5. Verify Serve returned ErrServerClosed
	select {
	case err := <-errCh:
		if err != ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	// 6. Verify clients are disconnected
	for name, c := range map[string]*rawClient{"idle": idle, "busy": busy} {
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			_, err := c.text.ReadLine()
			if err == nil {
				// The busy session may still answer the pending LIST.
				continue
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				t.Errorf("%s connection still open after Shutdown", name)
			}
			break
		}
	}

	// 7. New connections are refused
	if conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second); err == nil {
		conn.Close()
		t.Error("dial succeeded after Shutdown")
	}

	// 8. Serve on a stopped server fails immediately
	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")
	if err := server.Serve(ln2); err != ErrServerClosed {
		t.Errorf("Serve after Shutdown = %v, want ErrServerClosed", err)
	}
}
