// Package cmd implements the command-line interface for calsync.
//
// This package provides the following commands:
//   - serve: Run the calendar sync service (HTTP callables and trigger webhook, or MCP over stdio)
//   - token: Issue a caller token for local development
//   - version: Display version information
//
// Every command loads a .env file from the working directory first. Values
// already present in the environment take precedence.
package cmd
