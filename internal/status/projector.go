package status

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/call"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/metrics"
)

// Projector periodically rewrites a plain-text listing of the active
// talkgroups for the overlay renderer. It is a read-only consumer of the
// registry; a failed write is logged and ignored so the audio path never
// notices.
type Projector struct {
	registry *call.Registry
	metrics  *metrics.Metrics
	path     string
	interval time.Duration
	logger   *slog.Logger
}

// NewProjector creates a status file projector. metrics may be nil.
func NewProjector(registry *call.Registry, m *metrics.Metrics, path string, interval time.Duration, logger *slog.Logger) *Projector {
	return &Projector{
		registry: registry,
		metrics:  m,
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// Run rewrites the status file on a fixed interval until the context is
// cancelled, then leaves an "Offline" marker behind.
func (p *Projector) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Status projector started",
		slog.String("path", p.path),
		slog.Duration("interval", p.interval),
	)

	// First write up front so the overlay has something to read before the
	// first tick.
	p.write(Render(p.registry.Snapshot()))

	for {
		select {
		case <-ctx.Done():
			p.write("Offline")
			p.logger.Info("Status projector stopping")
			return nil
		case <-ticker.C:
			p.write(Render(p.registry.Snapshot()))
		}
	}
}

// Render formats the active-call listing in the layout the overlay expects.
func Render(infos []call.Info) string {
	if len(infos) == 0 {
		return "Monitoring... (0 active calls)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Calls: %d\n", len(infos))
	b.WriteString(strings.Repeat("-", 20))
	for _, info := range infos {
		fmt.Fprintf(&b, "\nTG %d (%s) - %s", info.Talkgroup, info.ShortName, info.Tag)
	}
	return b.String()
}

// write replaces the status file atomically so the overlay never reads a
// half-written listing.
func (p *Projector) write(content string) {
	tmp := p.path + ".tmp"
	err := os.WriteFile(tmp, []byte(content), 0644)
	if err == nil {
		err = os.Rename(tmp, p.path)
	}

	if err != nil {
		if p.metrics != nil {
			p.metrics.StatusWriteErrors.Inc()
		}
		p.logger.Error("Failed to write status file",
			slog.String("path", filepath.Clean(p.path)),
			slog.String("error", err.Error()),
		)
		return
	}

	if p.metrics != nil {
		p.metrics.StatusWrites.Inc()
	}
}
