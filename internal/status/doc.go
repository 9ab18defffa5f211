// Package status projects the active-talkgroup set into a plain-text file
// consumed by an external overlay renderer.
package status
