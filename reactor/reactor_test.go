package reactor

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// runLoop starts d on a goroutine and stops it when the test ends.
func runLoop(t *testing.T, d *Dispatcher) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	t.Cleanup(func() {
		d.Stop()
		<-done
	})
}

func TestDispatcher_RunsTasksInOrder(t *testing.T) {
	d := NewDispatcher()
	runLoop(t, d)

	results := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		if !d.Post(func() { results <- i }) {
			t.Fatal("Post() returned false on a running dispatcher")
		}
	}

	for want := 1; want <= 3; want++ {
		select {
		case got := <-results:
			if got != want {
				t.Errorf("task order: got %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for task")
		}
	}
}

func TestDispatcher_StopAndContext(t *testing.T) {
	d := NewDispatcher()
	d.Stop()
	d.Stop() // idempotent

	if err := d.Run(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Run() after Stop = %v, want ErrStopped", err)
	}
	if d.Post(func() {}) {
		t.Error("Post() after Stop should return false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewDispatcher().Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() with cancelled ctx = %v", err)
	}
}

func TestReadyHandler_AcceptsOnce(t *testing.T) {
	d := NewDispatcher()
	runLoop(t, d)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	d.CreateReadyHandler(l, func(c net.Conn, err error) {
		if err != nil {
			t.Errorf("accept error: %v", err)
			return
		}
		accepted <- c
	})

	client, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(time.Second):
		t.Fatal("connection was not delivered")
	}
}

func TestReadyHandler_StoppedDropsResult(t *testing.T) {
	d := NewDispatcher()
	runLoop(t, d)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	called := make(chan struct{}, 1)
	h := d.CreateReadyHandler(l, func(net.Conn, error) { called <- struct{}{} })
	d.Post(h.Stop)
	d.Post(func() { l.Close() })

	select {
	case <-called:
		t.Error("stopped handler should not deliver the accept error")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInputHandler_DeliversDataThenError(t *testing.T) {
	d := NewDispatcher()
	runLoop(t, d)

	server, client := net.Pipe()
	defer server.Close()

	input := make(chan string, 4)
	errs := make(chan error, 1)
	d.CreateInputHandler(server, func(b []byte) { input <- string(b) }, func(err error) { errs <- err })

	go func() {
		client.Write([]byte(">INFO:hello\n"))
		client.Close()
	}()

	select {
	case got := <-input:
		if got != ">INFO:hello\n" {
			t.Errorf("input = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no input delivered")
	}

	select {
	case err := <-errs:
		if !errors.Is(err, io.EOF) {
			t.Errorf("error = %v, want EOF", err)
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
}

func TestDispatcher_DoneAfterRun(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	select {
	case <-d.Done():
	default:
		t.Error("Done() not closed after Run returned")
	}
	if d.Post(func() {}) {
		t.Error("Post() after Run returned should return false")
	}
}
