// Package calendar_tools exposes the calendar callables as MCP tools.
//
// Each tool forwards to the callable of the same operation, so assistant
// clients get the validation, error codes and audit trail of the HTTP
// callable surface. Write tools are only registered when the server runs
// with write operations enabled.
package calendar_tools
