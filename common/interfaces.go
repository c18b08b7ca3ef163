// Package common provides shared constants, types, and utilities
// used across the OpenVPN management client.
package common

// CredentialStore defines the interface for persistent credential storage.
// Credentials are addressed by profile and by credential key
// (see the Credential* constants).
type CredentialStore interface {
	// Get retrieves a credential. Returns ErrCredentialsNotFound if absent.
	Get(profileID, key string) (string, error)
	// Set saves a credential.
	Set(profileID, key, value string) error
	// Delete removes a credential. Deleting a missing credential is not an error.
	Delete(profileID, key string) error
}

// Logger defines the interface for structured logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...interface{})
	// Info logs an informational message.
	Info(msg string, args ...interface{})
	// Warn logs a warning message.
	Warn(msg string, args ...interface{})
	// Error logs an error message.
	Error(msg string, args ...interface{})
}
