package mixer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/metrics"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/pan"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/protocol"
)

// lagReset is how far the pacer may fall behind its schedule before it gives
// up catching up and re-anchors the clock to now.
const lagReset = 100 * time.Millisecond

// Pacer drains the mix ring at a strict wall-clock cadence, one block per
// period, emitting silence when nothing is buffered. The downstream encoder
// counts on an exact byte rate; the pacer never skips a slot and never
// blocks on the input side.
type Pacer struct {
	engine      *Engine
	out         io.Writer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	blockFrames int
	period      time.Duration
}

// NewPacer creates a pacer emitting blockFrames frames every period into
// out. metrics may be nil.
func NewPacer(engine *Engine, out io.Writer, m *metrics.Metrics, logger *slog.Logger, blockFrames int, period time.Duration) *Pacer {
	return &Pacer{
		engine:      engine,
		out:         out,
		metrics:     m,
		logger:      logger,
		blockFrames: blockFrames,
		period:      period,
	}
}

// Run emits blocks until the context is cancelled or the sink fails. A sink
// write error is fatal: the output stream is the whole point of the process,
// so the error propagates up instead of being absorbed.
func (p *Pacer) Run(ctx context.Context) error {
	block := make([]int16, p.blockFrames*pan.Channels)
	raw := make([]byte, len(block)*protocol.SampleBytes)

	p.logger.Info("Output pacer started",
		slog.Int("block_frames", p.blockFrames),
		slog.Duration("period", p.period),
		slog.Int("block_bytes", len(raw)),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	next := time.Now()
	for {
		active, clipped := p.engine.ReadBlock(block)
		for i, s := range block {
			binary.LittleEndian.PutUint16(raw[i*protocol.SampleBytes:], uint16(s))
		}

		if _, err := p.out.Write(raw); err != nil {
			return fmt.Errorf("failed to write output block: %w", err)
		}

		if p.metrics != nil {
			p.metrics.BlocksEmitted.Inc()
			if !active {
				p.metrics.SilenceBlocks.Inc()
			}
			if clipped > 0 {
				p.metrics.SamplesClipped.Add(float64(clipped))
			}
		}

		next = next.Add(p.period)
		wait := time.Until(next)
		if wait < -lagReset {
			// More than a block behind realtime; catching up would burst
			// bytes into the encoder, so restart the clock from here.
			p.logger.Warn("Output pacer lagging, re-anchoring clock",
				slog.Duration("behind", -wait),
			)
			if p.metrics != nil {
				p.metrics.PacerLagResets.Inc()
			}
			next = time.Now()
			wait = 0
		}

		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				p.logger.Info("Output pacer stopping")
				return nil
			case <-timer.C:
			}
		} else {
			select {
			case <-ctx.Done():
				p.logger.Info("Output pacer stopping")
				return nil
			default:
			}
		}
	}
}
