package call

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/pan"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/protocol"
)

// Call is one active transmission on a talkgroup. Records are owned
// exclusively by the Registry and only ever touched under its lock.
type Call struct {
	Talkgroup    int64
	CallID       uuid.UUID
	Tag          string
	ShortName    string
	Src          string
	Pan          pan.Coord
	StartedAt    time.Time
	LastActivity time.Time
	AudioEvents  uint64
}

// Info is a copied-out snapshot of a call record, safe to hold outside the
// registry lock. Used by the status projector and the monitoring API.
type Info struct {
	Talkgroup    int64         `json:"talkgroup"`
	CallID       string        `json:"call_id"`
	Tag          string        `json:"tag"`
	ShortName    string        `json:"short_name"`
	Src          string        `json:"src"`
	PanLR        float64       `json:"pan_lr"`
	PanFR        float64       `json:"pan_fr"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	AudioEvents  uint64        `json:"audio_events"`
}

// Registry is the single source of truth for which talkgroups are currently
// contributing audio. At most one call exists per talkgroup; every lifecycle
// transition happens atomically under the registry lock.
type Registry struct {
	mu         sync.RWMutex
	calls      map[int64]*Call
	logger     *slog.Logger
	edgeMargin float64
}

// NewRegistry creates an empty call registry. edgeMargin is forwarded to
// pan assignment for every new call.
func NewRegistry(logger *slog.Logger, edgeMargin float64) *Registry {
	return &Registry{
		calls:      make(map[int64]*Call),
		logger:     logger,
		edgeMargin: edgeMargin,
	}
}

// Start opens a call for the event's talkgroup. A call_start for a talkgroup
// that is already active is a re-key on an open channel: metadata is
// overwritten and the timeout clock and audio-event counter restart. Returns
// true when the talkgroup was already active.
func (r *Registry) Start(ev *protocol.Event) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if existing, ok := r.calls[ev.Talkgroup]; ok {
		existing.Tag = ev.Tag
		existing.ShortName = ev.ShortName
		existing.Src = ev.Src
		existing.StartedAt = now
		existing.LastActivity = now
		existing.AudioEvents = 0

		r.logger.Info("Received call_start for active TG",
			slog.Int64("talkgroup", ev.Talkgroup),
			slog.String("short_name", existing.ShortName),
			slog.String("src", existing.Src),
			slog.String("call_id", existing.CallID.String()),
			slog.Int("active_calls", len(r.calls)),
		)
		return snapshot(existing, now), true
	}

	c := r.createLocked(ev, now)
	r.logger.Info("call_start",
		slog.Int64("talkgroup", c.Talkgroup),
		slog.String("short_name", c.ShortName),
		slog.String("tag", c.Tag),
		slog.String("src", c.Src),
		slog.String("call_id", c.CallID.String()),
		slog.Float64("pan_lr", c.Pan.LR),
		slog.Float64("pan_fr", c.Pan.FR),
		slog.Int("active_calls", len(r.calls)),
	)
	return snapshot(c, now), false
}

// Observe records an audio event for the talkgroup and returns the call's
// current pan coordinate. If no call is active this is a missed call_start:
// one is synthesized from the event metadata before the audio is mixed.
// Returns true when a call was synthesized.
func (r *Registry) Observe(ev *protocol.Event) (pan.Coord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if existing, ok := r.calls[ev.Talkgroup]; ok {
		existing.LastActivity = now
		existing.AudioEvents++
		return existing.Pan, false
	}

	c := r.createLocked(ev, now)
	c.AudioEvents = 1
	r.logger.Info("Missed call_start, creating call from audio",
		slog.Int64("talkgroup", c.Talkgroup),
		slog.String("short_name", c.ShortName),
		slog.String("src", c.Src),
		slog.String("call_id", c.CallID.String()),
		slog.Float64("pan_lr", c.Pan.LR),
		slog.Float64("pan_fr", c.Pan.FR),
		slog.Int("active_calls", len(r.calls)),
	)
	return c.Pan, true
}

// Touch refreshes the activity clock for a talkgroup without counting an
// audio event. Used for keep-alive payloads too small to mix; unlike
// Observe it never creates a call. Returns false if none is active.
func (r *Registry) Touch(talkgroup int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[talkgroup]
	if !ok {
		return false
	}
	c.LastActivity = time.Now()
	return true
}

// End closes the call for a talkgroup. A call_end with no matching call is
// a logged no-op, never an error. Returns false in that case.
func (r *Registry) End(talkgroup int64) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	c, ok := r.calls[talkgroup]
	if !ok {
		r.logger.Warn("call_end for unknown TG, nothing to close",
			slog.Int64("talkgroup", talkgroup),
			slog.Int("active_calls", len(r.calls)),
		)
		return Info{}, false
	}

	delete(r.calls, talkgroup)
	r.logger.Info("call_end",
		slog.Int64("talkgroup", c.Talkgroup),
		slog.String("short_name", c.ShortName),
		slog.String("call_id", c.CallID.String()),
		slog.Uint64("audio_events", c.AudioEvents),
		slog.Duration("duration", now.Sub(c.StartedAt)),
		slog.Int("active_calls", len(r.calls)),
	)
	return snapshot(c, now), true
}

// Sweep removes every call whose last activity is older than timeout and
// returns the closed records. Calling it again with no time elapsed removes
// nothing further.
func (r *Registry) Sweep(now time.Time, timeout time.Duration) []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	var closed []Info
	for tg, c := range r.calls {
		if now.Sub(c.LastActivity) <= timeout {
			continue
		}
		delete(r.calls, tg)
		closed = append(closed, snapshot(c, now))
		r.logger.Info("Call timed out, missed call_end?",
			slog.Int64("talkgroup", c.Talkgroup),
			slog.String("short_name", c.ShortName),
			slog.String("call_id", c.CallID.String()),
			slog.Uint64("audio_events", c.AudioEvents),
			slog.Duration("idle", now.Sub(c.LastActivity)),
			slog.Int("active_calls", len(r.calls)),
		)
	}
	return closed
}

// Get returns a snapshot of the call for one talkgroup.
func (r *Registry) Get(talkgroup int64) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.calls[talkgroup]
	if !ok {
		return Info{}, false
	}
	return snapshot(c, time.Now()), true
}

// Snapshot returns a consistent copy of all active calls, sorted by
// talkgroup for stable display.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]Info, 0, len(r.calls))
	for _, c := range r.calls {
		infos = append(infos, snapshot(c, now))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Talkgroup < infos[j].Talkgroup })
	return infos
}

// Len returns the number of currently active calls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// createLocked inserts a fresh call record. Caller holds the write lock.
func (r *Registry) createLocked(ev *protocol.Event, now time.Time) *Call {
	c := &Call{
		Talkgroup:    ev.Talkgroup,
		CallID:       uuid.New(),
		Tag:          ev.Tag,
		ShortName:    ev.ShortName,
		Src:          ev.Src,
		Pan:          pan.Position(ev.Talkgroup, r.edgeMargin),
		StartedAt:    now,
		LastActivity: now,
	}
	r.calls[ev.Talkgroup] = c
	return c
}

func snapshot(c *Call, now time.Time) Info {
	return Info{
		Talkgroup:    c.Talkgroup,
		CallID:       c.CallID.String(),
		Tag:          c.Tag,
		ShortName:    c.ShortName,
		Src:          c.Src,
		PanLR:        c.Pan.LR,
		PanFR:        c.Pan.FR,
		StartedAt:    c.StartedAt,
		LastActivity: c.LastActivity,
		Duration:     now.Sub(c.StartedAt),
		AudioEvents:  c.AudioEvents,
	}
}
