// Package vpn provides VPN connection management functionality.
// This file contains the ConnectTimer bounding connect and reconnect
// attempts.
package vpn

import (
	"sync"
	"time"
)

// Poster runs a function on the event loop.
type Poster interface {
	Post(task func()) bool
}

// ConnectTimer fires once if a connection attempt does not finish in time.
// Expiry is delivered through a Poster so it runs on the event loop.
type ConnectTimer struct {
	mu       sync.Mutex
	poster   Poster
	onExpire func()
	timer    *time.Timer
	timeout  time.Duration
	gen      uint64
	running  bool
}

// NewConnectTimer creates a stopped timer.
func NewConnectTimer(poster Poster, onExpire func()) *ConnectTimer {
	return &ConnectTimer{poster: poster, onExpire: onExpire}
}

// Start (re)arms the timer. A pending expiry from an earlier Start is
// discarded.
func (t *ConnectTimer) Start(timeout time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.running = true
	t.timeout = timeout
	t.timer = time.AfterFunc(timeout, func() {
		t.poster.Post(func() { t.expire(gen) })
	})
}

// Stop disarms the timer. It is safe to call when not running.
func (t *ConnectTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.running = false
}

// IsRunning reports whether an expiry is pending.
func (t *ConnectTimer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Timeout returns the duration of the most recent Start.
func (t *ConnectTimer) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

func (t *ConnectTimer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.timer = nil
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire()
	}
}
