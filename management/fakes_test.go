package management

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/yllada/openvpn-management/reactor"
)

type failureCall struct {
	failure ConnectFailure
	details string
}

// fakeCredentials is a map-backed Credentials.
type fakeCredentials map[string]string

func (c fakeCredentials) Lookup(key, fallback string) string {
	if v, ok := c[key]; ok {
		return v
	}
	return fallback
}

func (c fakeCredentials) Take(key string) (string, bool) {
	v, ok := c[key]
	delete(c, key)
	return v, ok
}

// fakeDriver records everything the Server reports.
type fakeDriver struct {
	creds       fakeCredentials
	failures    []failureCall
	reconnects  []ReconnectReason
	transitions []Transition
	// onFail runs inside FailService, e.g. to stop the server.
	onFail func()
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{creds: fakeCredentials{}}
}

func (d *fakeDriver) AppendOption(options *[][]string, name string, values ...string) {
	*options = append(*options, append([]string{name}, values...))
}

func (d *fakeDriver) Credentials() Credentials { return d.creds }

func (d *fakeDriver) FailService(failure ConnectFailure, details string) {
	d.failures = append(d.failures, failureCall{failure, details})
	if d.onFail != nil {
		d.onFail()
	}
}

func (d *fakeDriver) OnReconnecting(reason ReconnectReason) {
	d.reconnects = append(d.reconnects, reason)
}

func (d *fakeDriver) ServiceIdentifier() string { return "test-service" }

func (d *fakeDriver) OnStateChange(t Transition) {
	d.transitions = append(d.transitions, t)
}

// fakeHandler is a reactor.IOHandler that only records Stop.
type fakeHandler struct {
	stopped bool
}

func (h *fakeHandler) Stop() { h.stopped = true }

// fakeDispatcher captures registrations instead of running goroutines.
type fakeDispatcher struct {
	ready      *fakeHandler
	onAccept   func(net.Conn, error)
	input      *fakeHandler
	onInput    func([]byte)
	onError    func(error)
	readyCalls int
	inputCalls int
}

func (d *fakeDispatcher) CreateReadyHandler(l net.Listener, onAccept func(net.Conn, error)) reactor.IOHandler {
	d.readyCalls++
	d.ready = &fakeHandler{}
	d.onAccept = onAccept
	return d.ready
}

func (d *fakeDispatcher) CreateInputHandler(conn net.Conn, onInput func([]byte), onError func(error)) reactor.IOHandler {
	d.inputCalls++
	d.input = &fakeHandler{}
	d.onInput = onInput
	d.onError = onError
	return d.input
}

// fakeSockets hands out a real loopback listener or a fixed error.
type fakeSockets struct {
	err      error
	listener net.Listener
}

func (s *fakeSockets) Listen(network, address string) (net.Listener, error) {
	if s.err != nil {
		return nil, s.err
	}
	l, err := net.Listen(network, address)
	s.listener = l
	return l, err
}

// fakeConn captures writes.
type fakeConn struct {
	net.Conn
	written  bytes.Buffer
	writeErr error
	short    bool
	closed   bool
}

func (c *fakeConn) Write(b []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.short && len(b) > 1 {
		c.written.Write(b[:1])
		return 1, nil
	}
	return c.written.Write(b)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

// lines returns the commands written so far, without the trailing newline.
func (c *fakeConn) lines() []string {
	s := strings.TrimSuffix(c.written.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// harness is a started Server with an accepted fake connection.
type harness struct {
	server     *Server
	driver     *fakeDriver
	dispatcher *fakeDispatcher
	conn       *fakeConn
	options    [][]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		driver:     newFakeDriver(),
		dispatcher: &fakeDispatcher{},
		conn:       &fakeConn{},
	}
	h.server = NewServer(h.driver)
	if err := h.server.Start(h.dispatcher, &fakeSockets{}, &h.options); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(h.server.Stop)
	h.dispatcher.onAccept(h.conn, nil)
	h.conn.written.Reset() // drop "state on"
	return h
}

// feed delivers raw protocol text to the server.
func (h *harness) feed(text string) {
	h.dispatcher.onInput([]byte(text))
}

var errBoom = errors.New("boom")
