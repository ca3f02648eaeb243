package server

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func fatalIfErr(t *testing.T, err error, format string, args ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatalf(format+": %v", append(args, err)...)
	}
}

// testCredentials has a passwordless anonymous user, a user with a password
// and an admin.
func testCredentials() *Credentials {
	return NewCredentials(
		&Account{Name: "admin", Password: "secret"},
		[]Account{
			{Name: "anonymous"},
			{Name: "alice", Password: "wonderland"},
		},
	)
}

// startServer serves a fresh temporary root on a random loopback port.
// The returned root is canonical.
func startServer(t *testing.T, opts ...Option) (srv *Server, addr, root string) {
	t.Helper()
	return startServerIn(t, t.TempDir(), opts...)
}

// startServerIn is startServer for a root prepared by the caller.
func startServerIn(t *testing.T, dir string, opts ...Option) (srv *Server, addr, root string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "Failed to listen")

	all := append([]Option{
		WithRoot(dir),
		WithCredentials(testCredentials()),
		WithDataTimeout(5 * time.Second),
	}, opts...)
	srv, err = NewServer(ln.Addr().String(), all...)
	if err != nil {
		ln.Close()
		t.Fatalf("Failed to create server: %v", err)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && err != ErrServerClosed {
			t.Logf("Server stopped: %v", err)
		}
	}()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return srv, ln.Addr().String(), srv.Root()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	fatalIfErr(t, os.MkdirAll(filepath.Dir(path), 0o755), "mkdir %s", filepath.Dir(path))
	fatalIfErr(t, os.WriteFile(path, []byte(content), 0o644), "write %s", path)
}

// rawClient speaks the control protocol line by line so tests can check
// exact reply codes.
type rawClient struct {
	t    *testing.T
	conn net.Conn
	text *textproto.Conn
}

func dialRaw(t *testing.T, addr string) *rawClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	fatalIfErr(t, err, "Failed to dial %s", addr)
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	c := &rawClient{t: t, conn: conn, text: textproto.NewConn(conn)}
	t.Cleanup(func() { c.text.Close() })

	c.expect(220)
	return c
}

// cmd sends one command line and returns the reply.
func (c *rawClient) cmd(format string, args ...any) (int, string) {
	c.t.Helper()
	_, err := c.text.Cmd(format, args...)
	fatalIfErr(c.t, err, "send %q", format)
	return c.read()
}

func (c *rawClient) read() (int, string) {
	c.t.Helper()
	code, msg, err := c.text.ReadResponse(0)
	fatalIfErr(c.t, err, "read reply")
	return code, msg
}

// expect reads a reply and fails unless it has the given code.
func (c *rawClient) expect(want int) string {
	c.t.Helper()
	code, msg := c.read()
	if code != want {
		c.t.Fatalf("expected %d, got %d %s", want, code, msg)
	}
	return msg
}

// mustCmd sends a command and fails unless the reply has the given code.
func (c *rawClient) mustCmd(want int, format string, args ...any) string {
	c.t.Helper()
	code, msg := c.cmd(format, args...)
	if code != want {
		c.t.Fatalf("%s: expected %d, got %d %s", fmt.Sprintf(format, args...), want, code, msg)
	}
	return msg
}

func (c *rawClient) login(user, pass string) {
	c.t.Helper()
	code, msg := c.cmd("USER %s", user)
	switch code {
	case 230:
		return
	case 331:
		c.mustCmd(230, "PASS %s", pass)
	default:
		c.t.Fatalf("USER %s: %d %s", user, code, msg)
	}
}

// pasv negotiates a passive data connection and dials it.
func (c *rawClient) pasv() net.Conn {
	c.t.Helper()
	msg := c.mustCmd(227, "PASV")
	addr, err := parsePasvReply(msg)
	fatalIfErr(c.t, err, "parse %q", msg)

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	fatalIfErr(c.t, err, "dial data connection %s", addr)
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	return conn
}

// retrieve runs a data command whose output comes back on the data
// connection, such as LIST or RETR.
func (c *rawClient) retrieve(format string, args ...any) string {
	c.t.Helper()
	data := c.pasv()
	defer data.Close()

	c.mustCmd(125, format, args...)
	payload, err := io.ReadAll(data)
	fatalIfErr(c.t, err, "read data connection")
	c.expect(226)
	return string(payload)
}

// store uploads payload with STOR.
func (c *rawClient) store(name, payload string) {
	c.t.Helper()
	data := c.pasv()

	c.mustCmd(125, "STOR %s", name)
	_, err := io.WriteString(data, payload)
	fatalIfErr(c.t, err, "write data connection")
	data.Close()
	c.expect(226)
}

// parsePasvReply extracts host:port from "Entering Passive Mode (h1,h2,h3,h4,p1,p2)."
func parsePasvReply(msg string) (string, error) {
	start := strings.Index(msg, "(")
	end := strings.LastIndex(msg, ")")
	if start == -1 || end < start {
		return "", fmt.Errorf("no address in %q", msg)
	}
	parts := strings.Split(msg[start+1:end], ",")
	if len(parts) != 6 {
		return "", fmt.Errorf("expected 6 fields, got %d", len(parts))
	}
	p1, err := strconv.Atoi(parts[4])
	if err != nil {
		return "", err
	}
	p2, err := strconv.Atoi(parts[5])
	if err != nil {
		return "", err
	}
	host := strings.Join(parts[:4], ".")
	return net.JoinHostPort(host, strconv.Itoa(p1*256+p2)), nil
}
