package management

import (
	"net"

	"github.com/yllada/openvpn-management/reactor"
)

// ConnectFailure classifies a failure reported to the driver.
type ConnectFailure int

const (
	// FailureInternal covers missing credentials, unsupported challenges
	// and a broken control channel.
	FailureInternal ConnectFailure = iota
	// FailureConnect is a server-side rejection, e.g. "Verification Failed".
	FailureConnect
	// FailureDNSLookup means the remote host could not be resolved.
	FailureDNSLookup
	// FailureCertificate means the peer rejected the TLS handshake during
	// authentication. A local certificate problem looks the same.
	FailureCertificate
)

// String returns a human-readable failure name.
func (f ConnectFailure) String() string {
	switch f {
	case FailureInternal:
		return "internal-error"
	case FailureConnect:
		return "connect-failure"
	case FailureDNSLookup:
		return "dns-lookup-failure"
	case FailureCertificate:
		return "certificate-rejected"
	default:
		return "unknown"
	}
}

// ReconnectReason qualifies a generic reconnect.
type ReconnectReason int

const (
	ReconnectUnknown ReconnectReason = iota
	ReconnectOffline
	ReconnectTLSError
)

// String returns a human-readable reason.
func (r ReconnectReason) String() string {
	switch r {
	case ReconnectOffline:
		return "Offline"
	case ReconnectTLSError:
		return "TLSError"
	default:
		return "Unknown"
	}
}

// Credentials is the driver-owned credential source.
type Credentials interface {
	// Lookup returns the value for key, or fallback if unset.
	Lookup(key, fallback string) string
	// Take returns the value for key and removes it, so one-time secrets
	// cannot be sent twice.
	Take(key string) (string, bool)
}

// Driver is the owner of a Server: it supplies options and credentials
// and receives failures.
type Driver interface {
	// AppendOption appends one subprocess option with its values.
	AppendOption(options *[][]string, name string, values ...string)
	// Credentials returns the credential source for this connection.
	Credentials() Credentials
	// FailService reports a terminal failure. details never contains secrets.
	FailService(failure ConnectFailure, details string)
	// OnReconnecting reports that the subprocess is reconnecting.
	OnReconnecting(reason ReconnectReason)
	// ServiceIdentifier is used for log correlation only.
	ServiceIdentifier() string
}

// StateObserver is an optional Driver extension notified of every
// applied state transition.
type StateObserver interface {
	OnStateChange(t Transition)
}

// Dispatcher is the event source the Server registers its callbacks with.
// *reactor.Dispatcher implements it.
type Dispatcher interface {
	CreateReadyHandler(l net.Listener, onAccept func(net.Conn, error)) reactor.IOHandler
	CreateInputHandler(conn net.Conn, onInput func([]byte), onError func(error)) reactor.IOHandler
}

// Sockets creates the listening socket.
type Sockets interface {
	Listen(network, address string) (net.Listener, error)
}

// NetSockets implements Sockets with the net package.
type NetSockets struct{}

// Listen calls net.Listen.
func (NetSockets) Listen(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}
