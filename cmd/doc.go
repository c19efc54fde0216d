// Package cmd implements the command-line interface for sharedcal.
//
// This package provides the following commands:
//   - serve: Start the MCP server on stdio or streamable HTTP
//   - bootstrap url: Print the Google consent URL for the shared credential
//   - bootstrap exchange: Store the shared tokens from an authorization code
//   - token status: Show the stored credential status as JSON
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
