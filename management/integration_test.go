package management

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/yllada/openvpn-management/reactor"
)

// loop runs a real dispatcher for the duration of a test.
type loop struct {
	t *testing.T
	d *reactor.Dispatcher
}

func newLoop(t *testing.T) *loop {
	t.Helper()
	d := reactor.NewDispatcher()
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		d.Stop()
		<-done
	})
	return &loop{t: t, d: d}
}

// do runs fn on the loop and waits for it.
func (l *loop) do(fn func()) {
	l.t.Helper()
	done := make(chan struct{})
	if !l.d.Post(func() { fn(); close(done) }) {
		l.t.Fatal("dispatcher stopped")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		l.t.Fatal("timed out waiting for the loop")
	}
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.TrimSuffix(line, "\n")
}

func TestServer_Session(t *testing.T) {
	l := newLoop(t)
	driver := newFakeDriver()
	driver.creds = fakeCredentials{"user": "a", "password": "p", "otp": "123456"}
	s := NewServer(driver)

	var options [][]string
	var err error
	l.do(func() { err = s.Start(l.d, NetSockets{}, &options) })
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { l.do(s.Stop) })

	addr := net.JoinHostPort(options[0][1], options[0][2])
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", addr, err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	if got := readLine(t, conn, r); got != "state on" {
		t.Fatalf("first command = %q, want state on", got)
	}

	l.do(s.ReleaseHold)
	conn.Write([]byte(">INFO:OpenVPN Management Interface Version 3\r\n>HOLD:Waiting for hold release:0\r\n"))
	if got := readLine(t, conn, r); got != "hold release" {
		t.Fatalf("command = %q, want hold release", got)
	}

	conn.Write([]byte(">PASSWORD:Need 'Auth' username/password SC:1,Enter code\n"))
	if got := readLine(t, conn, r); got != `username "Auth" "a"` {
		t.Errorf("command = %q", got)
	}
	if got := readLine(t, conn, r); got != `password "Auth" "SCRV1:cA==:MTIzNDU2"` {
		t.Errorf("command = %q", got)
	}

	conn.Write([]byte(">STATE:1,RESOLVE,,,\n>STATE:2,RECONNECTING,,,\n"))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	var failures []failureCall
	var state State
	for time.Now().Before(deadline) {
		l.do(func() {
			failures = append([]failureCall(nil), driver.failures...)
			state = s.State()
		})
		if len(failures) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(failures) != 2 {
		t.Fatalf("failures = %v, want dns then channel closed", failures)
	}
	if failures[0].failure != FailureDNSLookup || failures[1].failure != FailureInternal {
		t.Errorf("failures = %v", failures)
	}
	if state != StateReconnecting {
		t.Errorf("State() = %q, want RECONNECTING", state)
	}
	var otpLeft bool
	l.do(func() { _, otpLeft = driver.creds["otp"] })
	if otpLeft {
		t.Error("otp still stored after use")
	}
}
