// Package netmon watches NetworkManager for changes in global connectivity.
package netmon

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn-management/common"
)

const (
	nmService   = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"
	nmState     = nmInterface + ".State"
	nmSignal    = nmInterface + ".StateChanged"
)

// NetworkManager NMState values.
const (
	StateUnknown         uint32 = 0
	StateAsleep          uint32 = 10
	StateDisconnected    uint32 = 20
	StateDisconnecting   uint32 = 30
	StateConnecting      uint32 = 40
	StateConnectedLocal  uint32 = 50
	StateConnectedSite   uint32 = 60
	StateConnectedGlobal uint32 = 70
)

// IsOnline reports whether state means full connectivity. Local and site
// connectivity are not enough to reach a VPN server.
func IsOnline(state uint32) bool {
	return state == StateConnectedGlobal
}

// Monitor reports online/offline changes from NetworkManager.
type Monitor struct {
	mu       sync.Mutex
	conn     *dbus.Conn
	signals  chan *dbus.Signal
	done     chan struct{}
	online   bool
	known    bool
	onChange func(online bool)
	log      *common.ComponentLogger
}

// New creates a stopped Monitor. onChange runs on the monitor goroutine
// each time the online flag changes, and once for the initial state.
func New(onChange func(online bool)) *Monitor {
	return &Monitor{
		onChange: onChange,
		log:      common.Component("NetMon"),
	}
}

// Start connects to the system bus and begins watching. It is a no-op if
// already started.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("connect system bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(nmPath),
		dbus.WithMatchInterface(nmInterface),
		dbus.WithMatchMember("StateChanged"),
	); err != nil {
		conn.Close()
		m.mu.Unlock()
		return fmt.Errorf("subscribe to StateChanged: %w", err)
	}

	m.conn = conn
	m.signals = make(chan *dbus.Signal, 16)
	m.done = make(chan struct{})
	conn.Signal(m.signals)
	signals, done := m.signals, m.done
	m.mu.Unlock()

	v, err := conn.Object(nmService, nmPath).GetProperty(nmState)
	if err != nil {
		m.log.Warn("Unable to read NetworkManager state, assuming online: %v", err)
		m.assumeOnline()
	} else if state, ok := v.Value().(uint32); ok {
		m.update(state)
	} else {
		m.log.Warn("Unexpected NetworkManager state %v, assuming online", v.Value())
		m.assumeOnline()
	}

	go m.run(signals, done)
	m.log.Info("Watching NetworkManager connectivity")
	return nil
}

// Stop stops watching and closes the bus connection.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	close(m.done)
	m.conn.RemoveSignal(m.signals)
	m.conn.Close()
	m.conn = nil
	m.known = false
}

// Online returns the last known connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) run(signals chan *dbus.Signal, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.handleSignal(sig)
		}
	}
}

func (m *Monitor) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != nmSignal || len(sig.Body) == 0 {
		return
	}
	state, ok := sig.Body[0].(uint32)
	if !ok {
		m.log.Warn("Unexpected StateChanged body: %v", sig.Body)
		return
	}
	m.update(state)
}

// assumeOnline marks connectivity as known and online when the initial
// state cannot be read. A later StateChanged signal overrides it.
func (m *Monitor) assumeOnline() {
	m.mu.Lock()
	changed := !m.known || !m.online
	m.online = true
	m.known = true
	onChange := m.onChange
	m.mu.Unlock()

	if changed && onChange != nil {
		onChange(true)
	}
}

// update applies a new NMState and notifies on a change of the online flag.
func (m *Monitor) update(state uint32) {
	online := IsOnline(state)

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	onChange := m.onChange
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.Info("Network state %d, online: %v", state, online)
	if onChange != nil {
		onChange(online)
	}
}
