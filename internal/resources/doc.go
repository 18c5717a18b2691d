// Package resources provides MCP resources for exposing user data.
// Resources are read-only data sources that MCP clients can fetch.
//
// The profile resource is resolved per request, so over HTTP each signed-in
// user sees their own data.
package resources
