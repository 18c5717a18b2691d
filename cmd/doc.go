// Package cmd implements the command-line interface for lifeassist.
//
// This package provides the following commands:
//   - serve: Start the HTTP server or the stdio MCP server
//   - credentials: Show or refresh stored credentials, generate encryption keys
//   - restore: Restore the local session from the session file
//   - signout: Sign out the local session, optionally revoking the grant
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
