package management

import "strings"

// messageHandler is one entry of the ordered dispatch table.
type messageHandler struct {
	name    string
	matches func(line string) bool
	handle  func(line string)
}

func prefixHandler(name, prefix string, handle func(string)) messageHandler {
	return messageHandler{
		name:    name,
		matches: func(line string) bool { return strings.HasPrefix(line, prefix) },
		handle:  handle,
	}
}

// messageHandlers returns the dispatch table. Order matters: the first
// matching entry handles the line.
func (s *Server) messageHandlers() []messageHandler {
	return []messageHandler{
		prefixHandler("info", ">INFO:", s.handleInfo),
		prefixHandler("need-password", ">PASSWORD:Need ", s.responder.onNeedPassword),
		prefixHandler("verification-failed", ">PASSWORD:Verification Failed:", s.handleVerificationFailed),
		prefixHandler("auth-token", ">PASSWORD:Auth-Token:", s.handleAuthToken),
		prefixHandler("state", ">STATE:", s.handleState),
		prefixHandler("hold", ">HOLD:Waiting for hold release", s.handleHold),
		prefixHandler("success", "SUCCESS: ", s.handleSuccess),
	}
}

// dispatch routes one line. It returns the name of the handler used, or
// "" if the line was ignored.
func (s *Server) dispatch(line string) string {
	for _, h := range s.handlers {
		if h.matches(line) {
			h.handle(line)
			return h.name
		}
	}
	s.log.Info("Message ignored: %s", line)
	return ""
}

func (s *Server) handleInfo(line string) {
	s.log.Info("%s", line)
}

func (s *Server) handleVerificationFailed(line string) {
	s.log.Error("%s", line)
	s.driver.FailService(FailureConnect, parseFailureReason(line))
}

func (s *Server) handleAuthToken(string) {
	// The token value itself is never logged.
	s.log.Info("Auth token received")
}

func (s *Server) handleState(line string) {
	newState, reason, ok := parseStateMessage(line)
	if !ok {
		s.log.Warn("Malformed state message: %s", line)
		return
	}

	t := Transition{Old: s.state, New: newState, Reason: reason}
	s.log.Info("OpenVPN state: %s -> %s (%s)", t.Old, t.New, t.Reason)

	switch c := Classify(t); c.Action {
	case ActionFail:
		s.driver.FailService(c.Failure, "")
	case ActionReconnect:
		s.driver.OnReconnecting(c.Reconnect)
	}
	if !s.IsStarted() {
		// The driver stopped the session; Stop already reset the state.
		return
	}

	s.state = t.New
	if observer, ok := s.driver.(StateObserver); ok {
		observer.OnStateChange(t)
	}
}

func (s *Server) handleHold(line string) {
	s.log.Info("Client waiting for hold release")
	if s.hold.onHold() {
		s.send(holdReleaseCommand())
	}
}

func (s *Server) handleSuccess(line string) {
	s.log.Info("%s", line)
}
