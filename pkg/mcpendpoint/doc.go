// Package mcpendpoint is documented in endpoint.go.
package mcpendpoint
