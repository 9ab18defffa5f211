// Package server hosts the UDP event receiver and the optional monitoring
// HTTP API.
package server
