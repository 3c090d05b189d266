// Package common provides shared helpers for the MCP tool packages: caller
// resolution and the handler that forwards a tool call to a named callable.
package common
