package netmon

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestIsOnline(t *testing.T) {
	tests := []struct {
		state    uint32
		expected bool
	}{
		{StateUnknown, false},
		{StateAsleep, false},
		{StateDisconnected, false},
		{StateConnecting, false},
		{StateConnectedLocal, false},
		{StateConnectedSite, false},
		{StateConnectedGlobal, true},
	}

	for _, tt := range tests {
		if got := IsOnline(tt.state); got != tt.expected {
			t.Errorf("IsOnline(%d) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func stateSignal(state interface{}) *dbus.Signal {
	return &dbus.Signal{
		Path: nmPath,
		Name: nmSignal,
		Body: []interface{}{state},
	}
}

func TestMonitor_HandleSignal(t *testing.T) {
	var changes []bool
	m := New(func(online bool) { changes = append(changes, online) })

	m.handleSignal(stateSignal(StateConnecting))
	m.handleSignal(stateSignal(StateConnectedSite)) // still offline
	m.handleSignal(stateSignal(StateConnectedGlobal))
	m.handleSignal(stateSignal(StateConnectedGlobal))
	m.handleSignal(stateSignal(StateDisconnected))

	// Ignored signals.
	m.handleSignal(nil)
	m.handleSignal(stateSignal("70"))
	m.handleSignal(&dbus.Signal{Name: "org.freedesktop.NetworkManager.DeviceAdded", Body: []interface{}{StateConnectedGlobal}})
	m.handleSignal(&dbus.Signal{Name: nmSignal})

	expected := []bool{false, true, false}
	if !reflect.DeepEqual(changes, expected) {
		t.Errorf("changes = %v, want %v", changes, expected)
	}
	if m.Online() {
		t.Error("Online() = true, want false")
	}
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	m := New(nil)
	m.Stop()
	m.update(StateConnectedGlobal)
	if !m.Online() {
		t.Error("Online() = false after update")
	}
}

func TestMonitor_AssumeOnline(t *testing.T) {
	var changes []bool
	m := New(func(online bool) { changes = append(changes, online) })

	m.assumeOnline()
	if !m.Online() {
		t.Error("Online() = false after an unreadable initial state")
	}

	// A later signal still takes effect.
	m.handleSignal(stateSignal(StateDisconnected))
	m.assumeOnline()
	m.assumeOnline()

	expected := []bool{true, false, true}
	if !reflect.DeepEqual(changes, expected) {
		t.Errorf("changes = %v, want %v", changes, expected)
	}
}
