package management

import "strings"

// State is a connection state reported by the subprocess.
type State string

// States reported in >STATE messages.
const (
	StateUnknown      State = ""
	StateInitial      State = "INITIAL"
	StateConnecting   State = "CONNECTING"
	StateWait         State = "WAIT"
	StateAuth         State = "AUTH"
	StateGetConfig    State = "GET_CONFIG"
	StateAssignIP     State = "ASSIGN_IP"
	StateAddRoutes    State = "ADD_ROUTES"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateExiting      State = "EXITING"
	StateResolve      State = "RESOLVE"
	StateTCPConnect   State = "TCP_CONNECT"
)

const reasonTLSError = "tls-error"

// Transition is one reported state change together with the state it
// replaced.
type Transition struct {
	Old    State
	New    State
	Reason string
}

// Action is what a transition asks of the driver.
type Action int

const (
	ActionNone Action = iota
	ActionFail
	ActionReconnect
)

// Classification is the result of Classify.
type Classification struct {
	Action    Action
	Failure   ConnectFailure  // set for ActionFail
	Reconnect ReconnectReason // set for ActionReconnect
}

// Classify decides how a transition is reported. Only transitions into
// RECONNECTING produce an action.
func Classify(t Transition) Classification {
	if t.New != StateReconnecting {
		return Classification{Action: ActionNone}
	}
	switch {
	case t.Old == StateResolve:
		return Classification{Action: ActionFail, Failure: FailureDNSLookup}
	case t.Old == StateAuth && t.Reason == reasonTLSError:
		return Classification{Action: ActionFail, Failure: FailureCertificate}
	case t.Reason == reasonTLSError:
		return Classification{Action: ActionReconnect, Reconnect: ReconnectTLSError}
	default:
		return Classification{Action: ActionReconnect, Reconnect: ReconnectUnknown}
	}
}

// parseStateMessage splits ">STATE:<epoch>,<state>[,<detail>,...]".
// ok is false when the state field is missing.
func parseStateMessage(message string) (state State, reason string, ok bool) {
	fields := strings.Split(strings.TrimPrefix(message, ">STATE:"), ",")
	if len(fields) < 2 {
		return StateUnknown, "", false
	}
	if len(fields) > 2 {
		reason = fields[2]
	}
	return State(fields[1]), reason, true
}
