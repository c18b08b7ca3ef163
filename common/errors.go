// Package common provides shared constants, types, and utilities
// used across the OpenVPN management client.
package common

import "errors"

// Sentinel errors for management operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Management channel errors.
	ErrListen           = errors.New("unable to set up management listener")
	ErrNotLoopback      = errors.New("management address is not a loopback address")
	ErrNotConnected     = errors.New("management client not connected")
	ErrShortWrite       = errors.New("short write on management channel")
	ErrAlreadyConnected = errors.New("connection already active")

	// Credential errors.
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrCredentialStorage   = errors.New("failed to store credentials")
	ErrEncryption          = errors.New("encryption error")
	ErrDecryption          = errors.New("decryption error")

	// Profile errors.
	ErrInvalidProfile = errors.New("invalid profile data")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")

	// History errors.
	ErrHistoryClosed = errors.New("history store closed")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
