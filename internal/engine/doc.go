// Package engine routes decoded call events to the lifecycle registry and
// the mixing ring.
package engine
