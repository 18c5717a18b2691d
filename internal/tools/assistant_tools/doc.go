// Package assistant_tools exposes the assistant as MCP tools: a classifier
// telling whether a message is about the calendar, and a chat turn with
// calendar context.
package assistant_tools
