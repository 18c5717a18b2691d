// Package batch runs one MCP tool operation over several ids, such as
// deleting a list of calendar events, and reports per-id results so that
// one failure does not hide the others.
package batch
