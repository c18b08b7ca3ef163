// Package vpn provides VPN connection management functionality.
// This file contains the Driver type which runs one OpenVPN connection
// through the management channel.
package vpn

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yllada/openvpn-management/common"
	"github.com/yllada/openvpn-management/config"
	"github.com/yllada/openvpn-management/history"
	"github.com/yllada/openvpn-management/management"
)

// Common errors - re-exported from common package for convenience.
var (
	ErrAlreadyConnected = common.ErrAlreadyConnected
	ErrNotConnected     = common.ErrNotConnected
)

// ConnectionStatus represents the current state of a VPN connection.
type ConnectionStatus int

const (
	// StatusDisconnected indicates no active connection.
	StatusDisconnected ConnectionStatus = iota
	// StatusConnecting indicates a connection is being established.
	StatusConnecting
	// StatusConnected indicates an active, established connection.
	StatusConnected
	// StatusDisconnecting indicates the connection is being terminated.
	StatusDisconnecting
	// StatusError indicates the connection failed or encountered an error.
	StatusError
)

// String returns a human-readable representation of the connection status.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusDisconnecting:
		return "Disconnecting..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Loop is the event loop a Driver runs on. *reactor.Dispatcher
// implements it.
type Loop interface {
	management.Dispatcher
	Poster
}

// Journal records connection events. *history.Store implements it.
type Journal interface {
	Record(e history.Event) error
}

// DriverOptions configures a Driver.
type DriverOptions struct {
	// Loop runs the management channel and every Driver callback. Required.
	Loop Loop
	// Sockets creates the management listener. Defaults to net.Listen.
	Sockets management.Sockets
	// Store holds saved credentials. Optional.
	Store common.CredentialStore
	// Journal receives state, failure and reconnect events. Optional.
	Journal Journal
	// Timeouts bound connect and reconnect attempts. Zero values use the
	// defaults.
	Timeouts config.TimeoutConfig
	// ListenAddress is the loopback address for the management listener.
	ListenAddress string
	// Online reports whether the underlying network is usable. Nil means
	// always online.
	Online func() bool
	// OnFailure is called after the service has been failed.
	OnFailure func(failure management.ConnectFailure, details string)
	// OnStatusChange is called when the connection status changes.
	OnStatusChange func(status ConnectionStatus)
}

// Driver owns one OpenVPN connection: it supplies management options and
// credentials, reacts to reported state, and enforces connect timeouts.
//
// Except for the status getters and NotifyNetwork, Driver methods must be
// called on the Loop goroutine.
type Driver struct {
	profile  *Profile
	opts     DriverOptions
	args     *Args
	password string
	server   *management.Server
	timer    *ConnectTimer
	log      *common.ComponentLogger

	mu        sync.RWMutex
	status    ConnectionStatus
	lastError string
	startTime time.Time
}

// NewDriver creates a disconnected Driver for profile.
func NewDriver(profile *Profile, opts DriverOptions) (*Driver, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: nil profile", common.ErrInvalidProfile)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if opts.Loop == nil {
		return nil, errors.New("driver requires an event loop")
	}
	if opts.Sockets == nil {
		opts.Sockets = management.NetSockets{}
	}
	defaults := config.DefaultConfig().Timeouts
	if opts.Timeouts.Connect <= 0 {
		opts.Timeouts.Connect = defaults.Connect
	}
	if opts.Timeouts.ReconnectOffline <= 0 {
		opts.Timeouts.ReconnectOffline = defaults.ReconnectOffline
	}
	if opts.Timeouts.ReconnectTLS <= 0 {
		opts.Timeouts.ReconnectTLS = defaults.ReconnectTLS
	}

	d := &Driver{
		profile: profile,
		opts:    opts,
		args:    NewArgs(),
		log:     common.Component("VPN").With(profile.ID),
	}
	d.timer = NewConnectTimer(opts.Loop, d.OnConnectTimeout)
	d.server = management.NewServer(d)
	if opts.ListenAddress != "" {
		if err := d.server.SetListenAddress(opts.ListenAddress); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewProfile creates a profile with a fresh identifier.
func NewProfile(name string) *Profile {
	return &Profile{ID: uuid.NewString(), Name: name}
}

// Profile returns the driver's profile.
func (d *Driver) Profile() *Profile {
	return d.profile
}

// Server returns the management server.
func (d *Driver) Server() *management.Server {
	return d.server
}

// SetPassword sets the password for the next Connect. It is saved to the
// credential store when the profile asks for it.
func (d *Driver) SetPassword(password string) error {
	d.password = password
	if !d.profile.SavePassword || d.opts.Store == nil || password == "" {
		return nil
	}
	if err := d.opts.Store.Set(d.profile.ID, common.CredentialPassword, password); err != nil {
		return fmt.Errorf("failed to save password: %w", err)
	}
	return nil
}

// Connect starts the management channel and returns the options the
// OpenVPN process must be started with. otp may be empty.
func (d *Driver) Connect(otp string) ([][]string, error) {
	if d.server.IsStarted() {
		return nil, ErrAlreadyConnected
	}
	d.log.Info("Connecting %s", d.profile.Name)
	d.loadCredentials(otp)

	var options [][]string
	if err := d.server.Start(d.opts.Loop, d.opts.Sockets, &options); err != nil {
		d.setStatus(StatusError, err.Error())
		return nil, err
	}
	if d.isOnline() {
		d.server.ReleaseHold()
	}
	d.timer.Start(d.opts.Timeouts.Connect)

	d.mu.Lock()
	d.startTime = time.Now()
	d.mu.Unlock()
	d.setStatus(StatusConnecting, "")
	return options, nil
}

// Disconnect tears the connection down.
func (d *Driver) Disconnect() error {
	if !d.server.IsStarted() {
		return ErrNotConnected
	}
	d.log.Info("Disconnecting %s", d.profile.Name)
	d.setStatus(StatusDisconnecting, "")
	d.timer.Stop()
	d.server.Stop()
	d.args = NewArgs()
	d.setStatus(StatusDisconnected, "")
	return nil
}

// loadCredentials fills the per-attempt credential set.
func (d *Driver) loadCredentials(otp string) {
	d.args = NewArgs()
	d.args.Set(common.CredentialUser, d.profile.Username)
	d.args.Set(common.CredentialStaticChallenge, d.profile.StaticChallenge)
	d.args.Set(common.CredentialOTP, otp)

	for _, key := range []string{
		common.CredentialUser,
		common.CredentialPassword,
		common.CredentialToken,
		common.CredentialPIN,
	} {
		if d.args.Contains(key) || d.opts.Store == nil {
			continue
		}
		value, err := d.opts.Store.Get(d.profile.ID, key)
		if err != nil {
			if !errors.Is(err, common.ErrCredentialsNotFound) {
				d.log.Warn("Unable to read %s: %v", key, err)
			}
			continue
		}
		d.args.Set(key, value)
	}
	if d.password != "" {
		d.args.Set(common.CredentialPassword, d.password)
	}
}

func (d *Driver) isOnline() bool {
	return d.opts.Online == nil || d.opts.Online()
}

// AppendOption appends one OpenVPN option.
func (d *Driver) AppendOption(options *[][]string, name string, values ...string) {
	*options = append(*options, append([]string{name}, values...))
}

// Credentials returns the credential set of the current attempt.
func (d *Driver) Credentials() management.Credentials {
	return driverCredentials{d}
}

// driverCredentials removes taken auth tokens from the store as well, so
// a token is never offered twice.
type driverCredentials struct {
	d *Driver
}

func (c driverCredentials) Lookup(key, fallback string) string {
	return c.d.args.Lookup(key, fallback)
}

func (c driverCredentials) Take(key string) (string, bool) {
	value, ok := c.d.args.Take(key)
	if ok && key == common.CredentialToken && c.d.opts.Store != nil {
		if err := c.d.opts.Store.Delete(c.d.profile.ID, key); err != nil {
			c.d.log.Warn("Unable to delete used auth token: %v", err)
		}
	}
	return value, ok
}

// FailService stops the connection and reports failure.
func (d *Driver) FailService(failure management.ConnectFailure, details string) {
	message := failure.String()
	if details != "" {
		message += ": " + details
	}
	d.log.Error("Connection failed: %s", message)
	d.record(history.Event{Kind: history.KindFailure, Detail: message})

	d.timer.Stop()
	d.server.Stop()
	d.args = NewArgs()
	d.setStatus(StatusError, message)

	if d.opts.OnFailure != nil {
		d.opts.OnFailure(failure, details)
	}
}

// OnReconnecting arms the reconnect timeout for reason.
func (d *Driver) OnReconnecting(reason management.ReconnectReason) {
	d.log.Info("Reconnecting (%s)", reason)
	d.record(history.Event{Kind: history.KindReconnect, Detail: reason.String()})

	timeout := d.reconnectTimeout(reason)
	if reason == management.ReconnectTLSError && timeout < d.opts.Timeouts.Connect {
		// Shorten a connect timeout that is already running.
		d.timer.Stop()
	}
	if !d.timer.IsRunning() {
		d.timer.Start(timeout)
	}
	d.setStatus(StatusConnecting, "")
}

func (d *Driver) reconnectTimeout(reason management.ReconnectReason) time.Duration {
	switch reason {
	case management.ReconnectOffline:
		return d.opts.Timeouts.ReconnectOffline
	case management.ReconnectTLSError:
		return d.opts.Timeouts.ReconnectTLS
	default:
		return d.opts.Timeouts.Connect
	}
}

// OnConnectTimeout fails a connection attempt that took too long.
func (d *Driver) OnConnectTimeout() {
	d.log.Warn("Connect timeout in state %q", d.server.State())
	failure := management.FailureConnect
	if d.server.State() == management.StateResolve {
		failure = management.FailureDNSLookup
	}
	d.FailService(failure, "connect timeout")
}

// OnDefaultServiceChanged holds the tunnel while the network is offline.
func (d *Driver) OnDefaultServiceChanged(online bool) {
	if !d.server.IsStarted() {
		return
	}
	if online {
		d.server.ReleaseHold()
	} else {
		d.server.Hold()
	}
}

// OnConnectionDisconnected restarts the tunnel after the underlying
// network connection went away.
func (d *Driver) OnConnectionDisconnected() {
	if !d.server.IsStarted() {
		return
	}
	d.log.Info("Underlying connection disconnected")
	d.server.Restart()
	d.OnReconnecting(management.ReconnectOffline)
}

// NotifyNetwork forwards a connectivity change to the loop. It is safe to
// call from any goroutine.
func (d *Driver) NotifyNetwork(online bool) {
	d.opts.Loop.Post(func() { d.OnDefaultServiceChanged(online) })
}

// OnStateChange journals every transition and marks the connection up on
// CONNECTED.
func (d *Driver) OnStateChange(t management.Transition) {
	d.record(history.Event{
		Kind:     history.KindState,
		OldState: string(t.Old),
		NewState: string(t.New),
		Detail:   t.Reason,
	})
	if t.New == management.StateConnected {
		d.timer.Stop()
		d.mu.Lock()
		d.startTime = time.Now()
		d.mu.Unlock()
		d.setStatus(StatusConnected, "")
	}
}

// ServiceIdentifier returns the profile ID.
func (d *Driver) ServiceIdentifier() string {
	return d.profile.ID
}

func (d *Driver) record(e history.Event) {
	if d.opts.Journal == nil {
		return
	}
	e.ServiceID = d.profile.ID
	if err := d.opts.Journal.Record(e); err != nil {
		d.log.Warn("Unable to journal %s event: %v", e.Kind, err)
	}
}

func (d *Driver) setStatus(status ConnectionStatus, lastError string) {
	d.mu.Lock()
	changed := d.status != status
	d.status = status
	if status == StatusError {
		d.lastError = lastError
	} else if status == StatusConnecting {
		d.lastError = ""
	}
	d.mu.Unlock()

	if changed {
		d.log.Debug("Status %s", status)
		if d.opts.OnStatusChange != nil {
			d.opts.OnStatusChange(status)
		}
	}
}

// GetStatus returns the current connection status.
func (d *Driver) GetStatus() ConnectionStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// LastError returns the reason of the last failure.
func (d *Driver) LastError() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastError
}

// GetUptime returns the connection uptime.
func (d *Driver) GetUptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.status != StatusConnected {
		return 0
	}
	return time.Since(d.startTime)
}
