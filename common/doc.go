// Package common provides shared constants, types, utilities, and interfaces
// used throughout the OpenVPN management client.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: timeouts, file names, credential keys, channel limits
//   - Errors: Sentinel errors for consistent error handling across packages
//   - Interfaces: Abstractions for credential storage and logging
//   - Logger: Leveled logging with file output, rotation and component prefixes
//   - Utils: Directory helpers and address checks
//
// # Usage
//
//	import "github.com/yllada/openvpn-management/common"
//
//	log := common.Component("management")
//	log.Info("Listening on %s", addr)
//
//	if errors.Is(err, common.ErrCredentialsNotFound) {
//	    // Ask the user
//	}
package common
