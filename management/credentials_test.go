package management

import (
	"reflect"
	"testing"
)

func TestParsePasswordTag(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{">PASSWORD:Need 'Auth' username/password", "Auth"},
		{">PASSWORD:Need 'Auth' username/password SC:1,Enter code", "Auth"},
		{">PASSWORD:Need 'User-Specific TPM Token FOO' password", "User-Specific TPM Token FOO"},
		{">PASSWORD:Need 'Private Key' password", "Private Key"},
		{">PASSWORD:Need Auth", ""},
		{">PASSWORD:Need 'unterminated", ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := parsePasswordTag(tt.message); got != tt.expected {
				t.Errorf("parsePasswordTag() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseFailureReason(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{">PASSWORD:Verification Failed: ['Auth'] bad-creds", "bad-creds"},
		{">PASSWORD:Verification Failed: 'Auth' ['AUTH_FAILED,expired']", "AUTH_FAILED,expired"},
		{">PASSWORD:Verification Failed: 'Auth' rejected ", "rejected"},
		{">PASSWORD:Verification Failed: 'Auth'", ""},
		{">PASSWORD:Verification Failed: 'Private Key'", ""},
		{">PASSWORD:Verification Failed: ['Private Key'] wrong", ""},
		{">PASSWORD:Verification Failed:", ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := parseFailureReason(tt.message); got != tt.expected {
				t.Errorf("parseFailureReason() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestEncodeStaticChallenge(t *testing.T) {
	if got := encodeStaticChallenge("pass", "123456"); got != "SCRV1:cGFzcw==:MTIzNDU2" {
		t.Errorf("encodeStaticChallenge() = %q", got)
	}
	if got := encodeStaticChallenge("", ""); got != "SCRV1::" {
		t.Errorf("encodeStaticChallenge(empty) = %q", got)
	}
}

func TestCredentialResponder(t *testing.T) {
	tests := []struct {
		name      string
		creds     fakeCredentials
		message   string
		sent      []string
		remaining fakeCredentials
		failure   *failureCall
	}{
		{
			name:    "plain auth",
			creds:   fakeCredentials{"user": "alice", "password": "secret"},
			message: ">PASSWORD:Need 'Auth' username/password",
			sent: []string{
				`username "Auth" "alice"`,
				`password "Auth" "secret"`,
			},
			remaining: fakeCredentials{"user": "alice", "password": "secret"},
		},
		{
			name:      "plain auth missing password",
			creds:     fakeCredentials{"user": "alice"},
			message:   ">PASSWORD:Need 'Auth' username/password",
			remaining: fakeCredentials{"user": "alice"},
			failure:   &failureCall{FailureInternal, "missing username or password"},
		},
		{
			name:    "static challenge with otp",
			creds:   fakeCredentials{"user": "a", "password": "p", "otp": "123456"},
			message: ">PASSWORD:Need 'Auth' username/password SC:1,Enter code",
			sent: []string{
				`username "Auth" "a"`,
				`password "Auth" "SCRV1:cA==:MTIzNDU2"`,
			},
			remaining: fakeCredentials{"user": "a", "password": "p"},
		},
		{
			name:    "static challenge with token",
			creds:   fakeCredentials{"user": "a", "password": "p", "otp": "123456", "token": "tok"},
			message: ">PASSWORD:Need 'Auth' username/password SC:1,Enter code",
			sent: []string{
				`username "Auth" "a"`,
				`password "Auth" "tok"`,
			},
			remaining: fakeCredentials{"user": "a", "password": "p", "otp": "123456"},
		},
		{
			name:    "static challenge token without password",
			creds:   fakeCredentials{"user": "a", "token": "tok"},
			message: ">PASSWORD:Need 'Auth' username/password SC:0,Code",
			sent: []string{
				`username "Auth" "a"`,
				`password "Auth" "tok"`,
			},
			remaining: fakeCredentials{"user": "a"},
		},
		{
			name:      "static challenge missing otp",
			creds:     fakeCredentials{"user": "a", "password": "p"},
			message:   ">PASSWORD:Need 'Auth' username/password SC:1,Enter code",
			remaining: fakeCredentials{"user": "a", "password": "p"},
			failure:   &failureCall{FailureInternal, "missing static challenge credentials"},
		},
		{
			name:      "static challenge missing user",
			creds:     fakeCredentials{"password": "p", "otp": "1"},
			message:   ">PASSWORD:Need 'Auth' username/password SC:1,Enter code",
			remaining: fakeCredentials{"password": "p", "otp": "1"},
			failure:   &failureCall{FailureInternal, "missing static challenge credentials"},
		},
		{
			name:    "tpm token",
			creds:   fakeCredentials{"pin": "1234"},
			message: ">PASSWORD:Need 'User-Specific TPM Token FOO' password",
			sent: []string{
				`password "User-Specific TPM Token FOO" "1234"`,
			},
			remaining: fakeCredentials{"pin": "1234"},
		},
		{
			name:      "tpm token missing pin",
			creds:     fakeCredentials{},
			message:   ">PASSWORD:Need 'User-Specific TPM Token FOO' password",
			remaining: fakeCredentials{},
			failure:   &failureCall{FailureInternal, "missing TPM token PIN"},
		},
		{
			name:      "unsupported tag",
			creds:     fakeCredentials{"user": "a", "password": "p"},
			message:   ">PASSWORD:Need 'Private Key' password",
			remaining: fakeCredentials{"user": "a", "password": "p"},
			failure:   &failureCall{FailureInternal, "unsupported credential request"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.driver.creds = tt.creds

			h.feed(tt.message + "\n")

			if got := h.conn.lines(); !reflect.DeepEqual(got, tt.sent) {
				t.Errorf("sent = %q, want %q", got, tt.sent)
			}
			if !reflect.DeepEqual(h.driver.creds, tt.remaining) {
				t.Errorf("credentials = %v, want %v", h.driver.creds, tt.remaining)
			}
			switch {
			case tt.failure == nil && len(h.driver.failures) != 0:
				t.Errorf("unexpected failures %v", h.driver.failures)
			case tt.failure != nil && !reflect.DeepEqual(h.driver.failures, []failureCall{*tt.failure}):
				t.Errorf("failures = %v, want [%v]", h.driver.failures, *tt.failure)
			}
		})
	}
}

func TestCredentialResponder_OTPUsedOnce(t *testing.T) {
	h := newHarness(t)
	h.driver.creds = fakeCredentials{"user": "a", "password": "p", "otp": "123456"}

	h.feed(">PASSWORD:Need 'Auth' username/password SC:1,Enter code\n")
	h.feed(">PASSWORD:Need 'Auth' username/password SC:1,Enter code\n")

	if got := len(h.conn.lines()); got != 2 {
		t.Errorf("sent %d lines, want 2", got)
	}
	expected := []failureCall{{FailureInternal, "missing static challenge credentials"}}
	if !reflect.DeepEqual(h.driver.failures, expected) {
		t.Errorf("failures = %v, want %v", h.driver.failures, expected)
	}
}
