// Package vpn runs OpenVPN connections through the management interface.
//
// This package implements the connection side of the client:
//
//   - Profiles: the identity, username and challenge settings of a connection
//   - Driver: owns the management server for one connection, supplies its
//     credentials and reacts to reported state
//   - Service: wires a Driver to its event loop, credential store, history
//     journal and network monitor
//
// # Connection Flow
//
// A typical connection flow:
//
//  1. The caller builds a Service for a profile and starts Service.Run
//  2. Service.Connect returns the management options for the subprocess
//  3. The subprocess connects back and asks for credentials
//  4. The Driver answers, releases the hold once the network is online and
//     marks the connection up on CONNECTED
//  5. Failures stop the channel and are reported through OnFailure
//
// # Timeouts
//
// A connect attempt is bounded by the connect timeout. Reconnects use a
// reason-specific timeout: longer when the network went offline, shorter
// after a TLS error.
//
// # Thread Safety
//
// Driver methods run on the event loop. Status getters, Service.Connect,
// Service.Disconnect and Driver.NotifyNetwork may be called from any
// goroutine.
package vpn
