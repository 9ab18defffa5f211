package engine

import (
	"log/slog"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/call"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/metrics"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/mixer"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/protocol"
)

// Router dispatches decoded call events to the registry and, for audio, into
// the mix. It owns no state of its own: the registry transition always runs
// before the samples are mixed so the pan lookup and missed-start recovery
// see a current record.
type Router struct {
	registry       *call.Registry
	engine         *mixer.Engine
	metrics        *metrics.Metrics
	logger         *slog.Logger
	keepaliveFloor int
}

// NewRouter creates an event router. metrics may be nil.
func NewRouter(registry *call.Registry, engine *mixer.Engine, m *metrics.Metrics, logger *slog.Logger, keepaliveFloor int) *Router {
	return &Router{
		registry:       registry,
		engine:         engine,
		metrics:        m,
		logger:         logger,
		keepaliveFloor: keepaliveFloor,
	}
}

// Handle processes one decoded event. Lifecycle anomalies are absorbed here;
// nothing an event can contain stops the stream.
func (r *Router) Handle(ev *protocol.Event) {
	switch ev.Kind {
	case protocol.EventCallStart:
		_, restarted := r.registry.Start(ev)
		if r.metrics != nil {
			if restarted {
				r.metrics.CallsRestarted.Inc()
			} else {
				r.metrics.CallsStarted.Inc()
			}
		}

	case protocol.EventAudio:
		r.handleAudio(ev)

	case protocol.EventCallEnd:
		info, ok := r.registry.End(ev.Talkgroup)
		if ok {
			// Whatever the call buffered ahead of the output clock dies
			// with it.
			if cleared := r.engine.Cut(ev.Talkgroup); cleared > 0 {
				r.logger.Debug("Cleared buffered audio for ended call",
					slog.Int64("talkgroup", ev.Talkgroup),
					slog.Int("cleared_frames", cleared),
				)
			}
		}
		if r.metrics != nil {
			if ok {
				r.metrics.RecordCallClosed(false, info.Duration.Seconds())
			} else {
				r.metrics.OrphanEnds.Inc()
			}
		}

	default:
		// ParsePacket rejects unknown kinds; this is a guard against
		// events built elsewhere.
		r.logger.Warn("Dropping event with unknown kind",
			slog.String("kind", ev.Kind),
			slog.Int64("talkgroup", ev.Talkgroup),
		)
	}

	if r.metrics != nil {
		r.metrics.ActiveCalls.Set(float64(r.registry.Len()))
	}
}

func (r *Router) handleAudio(ev *protocol.Event) {
	if len(ev.PCM) == 0 {
		return
	}

	// trunk-recorder emits tiny packets between voice bursts to hold the
	// stream open. They refresh the timeout clock but carry no usable
	// audio, and they must not synthesize a call on their own.
	if len(ev.PCM) < r.keepaliveFloor {
		r.registry.Touch(ev.Talkgroup)
		if r.metrics != nil {
			r.metrics.KeepalivePackets.Inc()
		}
		return
	}

	coord, missed := r.registry.Observe(ev)
	if missed && r.metrics != nil {
		r.metrics.MissedStarts.Inc()
	}

	samples := ev.Samples()
	dropped := r.engine.Mix(ev.Talkgroup, coord.Weights(), samples)
	if dropped > 0 {
		r.logger.Debug("Mix ring full, dropping audio",
			slog.Int64("talkgroup", ev.Talkgroup),
			slog.Int("dropped_frames", dropped),
		)
	}

	if r.metrics != nil {
		r.metrics.AudioEvents.Inc()
		r.metrics.SamplesMixed.Add(float64(len(samples) - dropped))
		if dropped > 0 {
			r.metrics.FramesDropped.Add(float64(dropped))
		}
	}
}
