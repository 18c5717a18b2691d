// Package common provides shared utilities for MCP tool implementations:
// resolving the user a call acts for and wrapping handlers with metrics and
// audit logging.
package common
