package management

import (
	"fmt"
	"net"
	"strconv"

	"github.com/yllada/openvpn-management/common"
	"github.com/yllada/openvpn-management/reactor"
)

// Server is the management-channel endpoint for one OpenVPN subprocess.
//
// A Server is not safe for concurrent use. All methods and callbacks must
// run on the goroutine of the Dispatcher passed to Start.
type Server struct {
	driver        Driver
	listenAddress string
	log           *common.ComponentLogger

	dispatcher   Dispatcher
	listener     net.Listener
	conn         net.Conn
	readyHandler reactor.IOHandler
	inputHandler reactor.IOHandler

	framer    *lineFramer
	state     State
	hold      holdGate
	responder *credentialResponder
	handlers  []messageHandler
}

// NewServer creates a stopped Server owned by driver.
func NewServer(driver Driver) *Server {
	s := &Server{
		driver:        driver,
		listenAddress: common.LoopbackAddress,
		log:           common.Component("Management").With(driver.ServiceIdentifier()),
		framer:        newLineFramer(common.MaxLineLength),
	}
	s.responder = &credentialResponder{driver: driver, send: s.send, log: s.log}
	s.handlers = s.messageHandlers()
	return s
}

// SetListenAddress changes the loopback address used by the next Start.
func (s *Server) SetListenAddress(addr string) error {
	if !common.IsLoopback(addr) {
		return fmt.Errorf("%w: %q", common.ErrNotLoopback, addr)
	}
	s.listenAddress = addr
	return nil
}

// IsStarted reports whether the listener is open.
func (s *Server) IsStarted() bool {
	return s.listener != nil
}

// IsConnected reports whether the subprocess has connected.
func (s *Server) IsConnected() bool {
	return s.conn != nil
}

// State returns the last state reported by the subprocess.
func (s *Server) State() State {
	return s.state
}

// Start opens the management listener and appends the options the
// subprocess needs to connect back. options is modified only on success.
// Calling Start on a started Server does nothing.
func (s *Server) Start(dispatcher Dispatcher, sockets Sockets, options *[][]string) error {
	if s.IsStarted() {
		return nil
	}

	l, err := sockets.Listen("tcp", net.JoinHostPort(s.listenAddress, "0"))
	if err != nil {
		s.log.Error("Unable to listen on %s: %v", s.listenAddress, err)
		return fmt.Errorf("%w: %v", common.ErrListen, err)
	}
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		l.Close()
		s.log.Error("Unexpected listener address %v", l.Addr())
		return fmt.Errorf("%w: unexpected address %v", common.ErrListen, l.Addr())
	}
	s.log.Info("Listening on %s", addr)

	s.dispatcher = dispatcher
	s.listener = l
	s.state = StateUnknown
	s.hold.reset()
	s.framer.Reset()
	s.readyHandler = dispatcher.CreateReadyHandler(l, s.OnReady)

	s.driver.AppendOption(options, "management", addr.IP.String(), strconv.Itoa(addr.Port))
	s.driver.AppendOption(options, "management-client")
	s.driver.AppendOption(options, "management-hold")
	s.driver.AppendOption(options, "management-query-passwords")
	if label := s.driver.Credentials().Lookup(common.CredentialStaticChallenge, ""); label != "" {
		// "1" makes the subprocess echo the challenge response.
		s.driver.AppendOption(options, "static-challenge", label, "1")
	}
	return nil
}

// Stop closes the channel and forgets all session state. It is safe to
// call at any time, any number of times.
func (s *Server) Stop() {
	if !s.IsStarted() {
		return
	}
	s.log.Info("Stopping")
	s.state = StateUnknown
	s.framer.Reset()
	if s.inputHandler != nil {
		s.inputHandler.Stop()
		s.inputHandler = nil
	}
	if s.readyHandler != nil {
		s.readyHandler.Stop()
		s.readyHandler = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.listener.Close()
	s.listener = nil
	s.dispatcher = nil
}

// OnReady receives the result of accepting the subprocess connection.
func (s *Server) OnReady(conn net.Conn, err error) {
	if err != nil {
		s.log.Error("Connection accept failed: %v", err)
		return
	}
	if !s.IsStarted() {
		conn.Close()
		return
	}
	s.log.Info("Client connected from %s", conn.RemoteAddr())

	// Only one client is ever expected.
	if s.readyHandler != nil {
		s.readyHandler.Stop()
		s.readyHandler = nil
	}
	s.conn = conn
	s.inputHandler = s.dispatcher.CreateInputHandler(conn, s.OnInput, s.OnInputError)
	s.send(stateCommand("on"))
}

// OnInput consumes bytes read from the subprocess.
func (s *Server) OnInput(data []byte) {
	lines, overflow := s.framer.Feed(data)
	if overflow {
		s.log.Warn("Discarding over-long partial message")
	}
	for _, line := range lines {
		if !s.IsStarted() {
			// A handler failed the service and stopped us.
			return
		}
		s.dispatch(line)
	}
}

// OnInputError reports a broken control channel as an internal failure.
func (s *Server) OnInputError(err error) {
	s.log.Error("Management channel error: %v", err)
	s.driver.FailService(FailureInternal, "management channel closed")
}

// ReleaseHold lets the subprocess proceed past its hold.
func (s *Server) ReleaseHold() {
	s.log.Debug("Hold release requested")
	if s.hold.requestRelease() {
		s.send(holdReleaseCommand())
	}
}

// Hold keeps the subprocess waiting at its next hold.
func (s *Server) Hold() {
	s.log.Debug("Hold requested")
	s.hold.hold()
}

// Restart asks the subprocess to restart its connection.
func (s *Server) Restart() {
	s.log.Info("Restart requested")
	s.send(signalCommand(signalRestart))
}

// send writes one command. Failures are logged, not retried.
func (s *Server) send(data string) {
	if s.conn == nil {
		s.log.Error("Send failed: %v", common.ErrNotConnected)
		return
	}
	n, err := s.conn.Write([]byte(data))
	if err != nil {
		s.log.Error("Send failed: %v", err)
		return
	}
	if n != len(data) {
		s.log.Error("Send failed: %v (%d of %d bytes)", common.ErrShortWrite, n, len(data))
	}
}
