// Package calendar_tools exposes Google Calendar operations as MCP tools.
//
// Every tool acts for one user: the signed-in user of an HTTP session, or
// on stdio the "user" argument with the server's default user as fallback.
// Events can be listed, read, created, updated and deleted; the write tools
// are not registered in read-only mode. Deleting accepts a list of ids and
// runs them as a batch.
package calendar_tools
