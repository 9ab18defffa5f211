package call

import (
	"context"
	"log/slog"
	"time"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/metrics"
)

// AudioCutter removes a talkgroup's pending audio from the mix. Implemented
// by the mixer engine.
type AudioCutter interface {
	Cut(talkgroup int64) int
}

// Sweeper periodically closes calls that stopped producing events without a
// call_end. It only ever removes calls, never creates them.
type Sweeper struct {
	registry *Registry
	metrics  *metrics.Metrics
	cutter   AudioCutter
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a sweeper over the given registry. The timeout should
// comfortably exceed normal inter-syllable silence so pauses in a
// transmission do not close the call early. Timed-out calls have their
// buffered audio cut from the mix. metrics and cutter may be nil.
func NewSweeper(registry *Registry, m *metrics.Metrics, cutter AudioCutter, interval, timeout time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		metrics:  m,
		cutter:   cutter,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Timeout sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("timeout", s.timeout),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Timeout sweeper stopping")
			return nil
		case <-ticker.C:
			closed := s.registry.Sweep(time.Now(), s.timeout)
			for _, info := range closed {
				if s.cutter != nil {
					s.cutter.Cut(info.Talkgroup)
				}
				if s.metrics != nil {
					s.metrics.RecordCallClosed(true, info.Duration.Seconds())
				}
			}
			if s.metrics != nil {
				s.metrics.ActiveCalls.Set(float64(s.registry.Len()))
			}
		}
	}
}
