package management

import (
	"encoding/base64"
	"strings"

	"github.com/yllada/openvpn-management/common"
)

const (
	passwordTagAuth       = "Auth"
	tpmTokenTagPrefix     = "User-Specific TPM Token"
	staticChallengeMarker = "SC:"
	staticChallengeScheme = "SCRV1"
)

// parseSubstring returns the text between the first occurrence of start and
// the next occurrence of end, or "" if either is missing.
func parseSubstring(message, start, end string) string {
	i := strings.Index(message, start)
	if i < 0 {
		return ""
	}
	rest := message[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

// parsePasswordTag extracts the tag of a >PASSWORD message.
func parsePasswordTag(message string) string {
	return parseSubstring(message, "'", "'")
}

// parseFailureReason extracts the reason of a Verification Failed message.
// Only failures of the Auth tag carry a reason. Both
// "['Auth'] reason" and "'Auth' ['reason']" layouts are accepted.
func parseFailureReason(message string) string {
	i := strings.Index(message, "'")
	if i < 0 {
		return ""
	}
	rest := message[i+1:]
	j := strings.Index(rest, "'")
	if j < 0 || rest[:j] != passwordTagAuth {
		return ""
	}
	rest = rest[j+1:]

	if strings.HasPrefix(rest, "]") {
		return strings.TrimSpace(rest[1:])
	}
	if reason := parseSubstring(rest, "['", "']"); reason != "" {
		return reason
	}
	return strings.TrimSpace(rest)
}

// encodeStaticChallenge builds the combined password+OTP response.
func encodeStaticChallenge(password, otp string) string {
	return staticChallengeScheme + ":" +
		base64.StdEncoding.EncodeToString([]byte(password)) + ":" +
		base64.StdEncoding.EncodeToString([]byte(otp))
}

// credentialResponder answers >PASSWORD:Need challenges.
type credentialResponder struct {
	driver Driver
	send   func(string)
	log    common.Logger
}

func (r *credentialResponder) onNeedPassword(message string) {
	tag := parsePasswordTag(message)
	switch {
	case tag == passwordTagAuth && strings.Contains(message, staticChallengeMarker):
		r.performStaticChallenge(tag)
	case tag == passwordTagAuth:
		r.performAuthentication(tag)
	case strings.HasPrefix(tag, tpmTokenTagPrefix):
		r.supplyTPMToken(tag)
	default:
		r.log.Error("Unsupported need-password message: %s", message)
		r.driver.FailService(FailureInternal, "unsupported credential request")
	}
}

func (r *credentialResponder) performStaticChallenge(tag string) {
	creds := r.driver.Credentials()
	user := creds.Lookup(common.CredentialUser, "")
	password := creds.Lookup(common.CredentialPassword, "")
	otp := creds.Lookup(common.CredentialOTP, "")
	token := creds.Lookup(common.CredentialToken, "")
	if user == "" || (token == "" && (password == "" || otp == "")) {
		r.log.Error("Missing static challenge credentials")
		r.driver.FailService(FailureInternal, "missing static challenge credentials")
		return
	}

	var encoded string
	if token != "" {
		// Auth tokens are single use.
		encoded, _ = creds.Take(common.CredentialToken)
		r.log.Info("Answering static challenge with auth token")
	} else {
		// So are one-time passwords.
		otp, _ = creds.Take(common.CredentialOTP)
		encoded = encodeStaticChallenge(password, otp)
		r.log.Info("Answering static challenge with password and OTP")
	}
	r.send(usernameCommand(tag, user))
	r.send(passwordCommand(tag, encoded))
}

func (r *credentialResponder) performAuthentication(tag string) {
	creds := r.driver.Credentials()
	user := creds.Lookup(common.CredentialUser, "")
	password := creds.Lookup(common.CredentialPassword, "")
	if user == "" || password == "" {
		r.log.Error("Missing username or password")
		r.driver.FailService(FailureInternal, "missing username or password")
		return
	}
	r.send(usernameCommand(tag, user))
	r.send(passwordCommand(tag, password))
}

func (r *credentialResponder) supplyTPMToken(tag string) {
	pin := r.driver.Credentials().Lookup(common.CredentialPIN, "")
	if pin == "" {
		r.log.Error("Missing PIN for %s", tag)
		r.driver.FailService(FailureInternal, "missing TPM token PIN")
		return
	}
	r.send(passwordCommand(tag, pin))
}
