package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Event kinds carried in the JSON header. trunk-recorder omits the field on
// plain audio packets, so an empty kind decodes as EventAudio.
const (
	EventCallStart = "call_start"
	EventAudio     = "audio"
	EventCallEnd   = "call_end"
)

const (
	// LengthHeaderSize is the little-endian uint32 prefix giving the JSON
	// header length in bytes.
	LengthHeaderSize = 4

	// MaxJSONHeaderSize bounds the declared JSON length. The real headers
	// are well under 1 KiB; anything bigger is a corrupt packet.
	MaxJSONHeaderSize = 8192

	// SampleBytes is the width of one linear PCM sample (s16le).
	SampleBytes = 2
)

// Event is one decoded simpleStream packet: lifecycle metadata plus, for
// audio events, the raw mono PCM payload.
type Event struct {
	Kind      string
	Talkgroup int64
	Tag       string
	ShortName string
	Src       string
	PCM       []byte // s16le mono samples, audio events only
}

// wireHeader mirrors the JSON header the simpleStream plugin emits with
// sendJSON enabled. Talkgroup uses json.Number so the id keeps its exact
// wire text when forwarded to logs. Src is free-form: recorders have been
// seen emitting it as a number, a string, or not at all, so it is kept raw
// and normalized afterwards.
type wireHeader struct {
	Event     string          `json:"event"`
	Talkgroup json.Number     `json:"talkgroup"`
	Tag       string          `json:"talkgroup_tag"`
	ShortName string          `json:"short_name"`
	Src       json.RawMessage `json:"src"`
}

// normalizeSrc renders the src field as display text whatever its JSON type.
// Missing, null, and empty values all collapse to "N/A".
func normalizeSrc(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "N/A"
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "N/A"
		}
		return s
	}

	// Numbers, booleans, anything else: keep the wire text.
	return string(raw)
}

// ParsePacket decodes one UDP datagram in the simpleStream sendJSON framing:
// a 4-byte little-endian JSON length, the JSON header, then raw s16le mono
// PCM for audio packets.
func ParsePacket(data []byte) (*Event, error) {
	if len(data) < LengthHeaderSize {
		return nil, fmt.Errorf("packet too short for length header: %d bytes", len(data))
	}

	jsonLen := binary.LittleEndian.Uint32(data[:LengthHeaderSize])
	if jsonLen > MaxJSONHeaderSize {
		return nil, fmt.Errorf("json header length %d exceeds maximum %d", jsonLen, MaxJSONHeaderSize)
	}

	jsonEnd := LengthHeaderSize + int(jsonLen)
	if jsonEnd > len(data) {
		return nil, fmt.Errorf("json header length %d exceeds packet length %d", jsonLen, len(data))
	}

	var hdr wireHeader
	if err := json.Unmarshal(data[LengthHeaderSize:jsonEnd], &hdr); err != nil {
		return nil, fmt.Errorf("failed to decode json header: %w", err)
	}

	event := &Event{
		Kind:      hdr.Event,
		Tag:       hdr.Tag,
		ShortName: hdr.ShortName,
		Src:       normalizeSrc(hdr.Src),
	}

	if event.Kind == "" {
		event.Kind = EventAudio
	}
	if event.Tag == "" {
		event.Tag = "N/A"
	}
	if event.ShortName == "" {
		event.ShortName = "N/A"
	}

	if hdr.Talkgroup != "" {
		tg, err := hdr.Talkgroup.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid talkgroup %q: %w", hdr.Talkgroup.String(), err)
		}
		event.Talkgroup = tg
	}

	payload := data[jsonEnd:]
	if len(payload) > 0 {
		if len(payload)%SampleBytes != 0 {
			return nil, fmt.Errorf("pcm payload length must be even, got %d bytes", len(payload))
		}
		event.PCM = make([]byte, len(payload))
		copy(event.PCM, payload)
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

// PeekTalkgroup extracts just the talkgroup id from a raw datagram without
// building the full event. The receive loop uses it to pin all packets of a
// talkgroup to one worker, so a call's chunks are handled in arrival order.
// Any framing or header problem it reports would also fail ParsePacket.
func PeekTalkgroup(data []byte) (int64, error) {
	if len(data) < LengthHeaderSize {
		return 0, fmt.Errorf("packet too short for length header: %d bytes", len(data))
	}

	jsonLen := binary.LittleEndian.Uint32(data[:LengthHeaderSize])
	if jsonLen > MaxJSONHeaderSize {
		return 0, fmt.Errorf("json header length %d exceeds maximum %d", jsonLen, MaxJSONHeaderSize)
	}

	jsonEnd := LengthHeaderSize + int(jsonLen)
	if jsonEnd > len(data) {
		return 0, fmt.Errorf("json header length %d exceeds packet length %d", jsonLen, len(data))
	}

	var hdr struct {
		Talkgroup json.Number `json:"talkgroup"`
	}
	if err := json.Unmarshal(data[LengthHeaderSize:jsonEnd], &hdr); err != nil {
		return 0, fmt.Errorf("failed to decode json header: %w", err)
	}

	tg, err := hdr.Talkgroup.Int64()
	if err != nil || tg <= 0 {
		return 0, fmt.Errorf("missing or invalid talkgroup %q", hdr.Talkgroup.String())
	}
	return tg, nil
}

// Validate checks the decoded event for required fields.
func (e *Event) Validate() error {
	switch e.Kind {
	case EventCallStart, EventAudio, EventCallEnd:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}

	if e.Talkgroup <= 0 {
		return fmt.Errorf("missing or invalid talkgroup id %d", e.Talkgroup)
	}

	return nil
}

// SampleCount returns the number of mono PCM samples in the payload.
func (e *Event) SampleCount() int {
	return len(e.PCM) / SampleBytes
}

// Samples decodes the raw payload into signed 16-bit samples.
func (e *Event) Samples() []int16 {
	samples := make([]int16, e.SampleCount())
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(e.PCM[i*SampleBytes:]))
	}
	return samples
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	return fmt.Sprintf("Event{Kind:%s, TG:%d, Tag:%q, ShortName:%q, Src:%s, PCMBytes:%d}",
		e.Kind, e.Talkgroup, e.Tag, e.ShortName, e.Src, len(e.PCM))
}
