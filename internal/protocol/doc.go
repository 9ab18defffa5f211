// Package protocol decodes the trunk-recorder simpleStream sendJSON framing:
// a length-prefixed JSON header describing the call event followed by raw
// s16le mono PCM for audio packets.
package protocol
