// Package common provides shared constants, types, and utilities
// used across the OpenVPN management client.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name used in log lines.
	AppName = "OpenVPN Management"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "openvpn-management"
)

// File names used by the application.
const (
	ConfigFileName      = "config.yaml"
	CredentialsFileName = ".credentials"
	LogFileName         = "openvpn-management.log"
	HistoryFileName     = "history.db"
)

// Default timeouts.
const (
	// ConnectTimeout is the maximum time to wait for the tunnel to come up.
	ConnectTimeout = 60 * time.Second
	// ReconnectOfflineTimeout bounds a reconnect caused by the underlying
	// network going away.
	ReconnectOfflineTimeout = 2 * time.Minute
	// ReconnectTLSErrorTimeout bounds a reconnect caused by a TLS error
	// during connect.
	ReconnectTLSErrorTimeout = 20 * time.Second
	// LogRotationCheckInterval is how often a running service checks the
	// log file size.
	LogRotationCheckInterval = time.Minute
)

// Management channel defaults.
const (
	// LoopbackAddress is the address the management listener binds to.
	LoopbackAddress = "127.0.0.1"
	// MaxLineLength caps a buffered partial management line.
	MaxLineLength = 64 * 1024
	// ReadBufferSize is the chunk size used when reading the control socket.
	ReadBufferSize = 4096
)

// Credential keys understood by the management client.
const (
	CredentialUser            = "user"
	CredentialPassword        = "password"
	CredentialOTP             = "otp"
	CredentialToken           = "token"
	CredentialPIN             = "pin"
	CredentialStaticChallenge = "static-challenge"
)
