// Package server is the HTTP surface of lifeassist.
//
// HTTPServer routes the REST API with chi:
//   - /api/auth: Google sign-in, the OAuth callback, silent restore,
//     the session probe and sign-out
//   - /api/calendar: event and calendar endpoints of the signed-in user
//   - /api/chat: the calendar-aware assistant
//   - /mcp: the MCP streamable HTTP transport
//   - /healthz, /readyz: Kubernetes probes
//
// The browser holds only HS256-signed cookies: the identity cookie
// (user id and email) and the restore pointers of clientsession. OAuth
// tokens stay in the credential store behind the session broker.
//
// ServerContext carries the shared services into HTTP handlers and MCP
// tools. MetricsServer exposes Prometheus metrics on a separate port.
package server
