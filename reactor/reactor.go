// Package reactor provides a single-goroutine event dispatcher.
//
// Blocking socket operations run on helper goroutines, but every callback
// they produce is posted to the Dispatcher and executed one at a time on the
// goroutine that called Run. Code driven by a Dispatcher therefore never
// needs locks for state it only touches from callbacks.
package reactor

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yllada/openvpn-management/common"
)

// ErrStopped is returned by Run after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// IOHandler is a registration of callbacks for one socket.
type IOHandler interface {
	// Stop unregisters the callbacks. Results arriving afterwards are
	// dropped. Stop is idempotent and must be called from the loop.
	Stop()
}

// Dispatcher serializes callbacks onto the goroutine running Run.
type Dispatcher struct {
	tasks    chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher. Call Run to start executing tasks.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		tasks:  make(chan func(), 64),
		stopCh: make(chan struct{}),
	}
}

// Run executes posted tasks until ctx is done or Stop is called. A
// Dispatcher runs once: it is stopped when Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return ErrStopped
		case task := <-d.tasks:
			task()
		}
	}
}

// Post queues task for execution on the loop. It returns false if the
// dispatcher has been stopped.
func (d *Dispatcher) Post(task func()) bool {
	select {
	case <-d.stopCh:
		return false
	default:
	}
	select {
	case d.tasks <- task:
		return true
	case <-d.stopCh:
		return false
	}
}

// Done is closed once the dispatcher has stopped.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopCh
}

// Stop makes Run return. Pending tasks are discarded.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// handle carries the stopped flag shared by a handler and its goroutine.
type handle struct {
	stopped atomic.Bool
}

func (h *handle) Stop() {
	h.stopped.Store(true)
}

// CreateReadyHandler accepts a single connection from l and delivers the
// result to onAccept on the loop. The listener itself is not closed.
func (d *Dispatcher) CreateReadyHandler(l net.Listener, onAccept func(net.Conn, error)) IOHandler {
	h := &handle{}
	go func() {
		conn, err := l.Accept()
		posted := d.Post(func() {
			if h.stopped.Load() {
				if conn != nil {
					conn.Close()
				}
				return
			}
			onAccept(conn, err)
		})
		if !posted && conn != nil {
			conn.Close()
		}
	}()
	return h
}

// CreateInputHandler reads from conn and delivers each chunk to onInput on
// the loop. The first read error, including io.EOF, goes to onError and ends
// the handler.
func (d *Dispatcher) CreateInputHandler(conn net.Conn, onInput func([]byte), onError func(error)) IOHandler {
	h := &handle{}
	go func() {
		buf := make([]byte, common.ReadBufferSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				if !d.Post(func() {
					if !h.stopped.Load() {
						onInput(data)
					}
				}) {
					return
				}
			}
			if err != nil {
				d.Post(func() {
					if !h.stopped.Load() {
						onError(err)
					}
				})
				return
			}
			if h.stopped.Load() {
				return
			}
		}
	}()
	return h
}
