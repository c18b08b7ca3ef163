// Package management implements the client side of the OpenVPN management
// interface.
//
// A Server listens on a loopback port, waits for the OpenVPN subprocess to
// connect back (--management-client), and then drives the session:
//
//   - answers >PASSWORD:Need challenges from the driver's credentials
//     (plain auth, static challenge with OTP or auth token, TPM PIN)
//   - tracks >STATE messages and turns transitions into RECONNECTING into
//     DNS, certificate or generic reconnect reports
//   - releases the subprocess hold once the driver allows it
//
// # Threading
//
// A Server is driven by a Dispatcher (see package reactor). Every callback
// and every call into the Server must happen on the dispatcher goroutine.
//
// # Wire format
//
// Outgoing commands are single lines:
//
//	state on
//	username "Auth" "user"
//	password "Auth" "SCRV1:cGFzcw==:MTIzNDU2"
//	signal SIGUSR1
//	hold release
//
// Arguments are double-quoted with backslash and double quote escaped.
package management
