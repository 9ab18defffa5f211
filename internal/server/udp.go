package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/config"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/engine"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/metrics"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/protocol"
)

// maxDatagram bounds a single simpleStream packet: JSON header plus one
// audio chunk is well under this.
const maxDatagram = 65536

// UDPServer receives simpleStream datagrams from trunk-recorder, decodes
// them, and hands the events to the router. Malformed packets are counted,
// logged, and dropped; the socket never stops reading.
type UDPServer struct {
	config  *config.ServerConfig
	logger  *slog.Logger
	router  *engine.Router
	metrics *metrics.Metrics

	// Basic counters, also surfaced by the monitoring API
	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	packetsDropped   uint64
	mu               sync.RWMutex
}

// NewUDPServer creates a UDP server. metrics may be nil.
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, router *engine.Router, m *metrics.Metrics) *UDPServer {
	return &UDPServer{
		config:  cfg,
		logger:  logger,
		router:  router,
		metrics: m,
	}
}

// Run listens for packets until the context is cancelled. The inbound path
// is decoupled from packet handling by bounded queues: when a queue is
// full the packet is dropped with a warning rather than blocking the socket.
//
// Each worker owns one queue and packets are pinned to a queue by talkgroup,
// so all events of one call pass through a single worker in arrival order.
// The wire format carries no sequence numbers; this is the only thing
// keeping consecutive chunks of a transmission from being mixed swapped.
func (s *UDPServer) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(s.config.ReadBuffer); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("read_buffer", s.config.ReadBuffer),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", addr.String()),
		slog.Int("read_buffer", s.config.ReadBuffer),
		slog.Int("workers", s.config.Workers),
	)

	queueCap := s.config.QueueSize / s.config.Workers
	if queueCap < 1 {
		queueCap = 1
	}
	packetChans := make([]chan []byte, s.config.Workers)
	for i := range packetChans {
		packetChans[i] = make(chan []byte, queueCap)
	}

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.packetWorker(workerID, packetChans[workerID])
		}(i)
	}

	s.receiveLoop(ctx, conn, packetChans)

	for _, ch := range packetChans {
		close(ch)
	}
	wg.Wait()

	stats := s.Statistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("packets_dropped", stats.PacketsDropped),
	)

	return nil
}

// receiveLoop reads datagrams until the context is cancelled. A short read
// deadline keeps the loop responsive to shutdown without a dedicated
// closer goroutine.
func (s *UDPServer) receiveLoop(ctx context.Context, conn *net.UDPConn, packetChans []chan []byte) {
	buffer := make([]byte, maxDatagram)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Receive loop stopping")
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		if n == 0 {
			continue
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.PacketsReceived.Inc()
			queued := 0
			for _, ch := range packetChans {
				queued += len(ch)
			}
			s.metrics.QueueSize.Set(float64(queued))
		}

		// The read buffer is reused; queue a copy.
		packet := make([]byte, n)
		copy(packet, buffer[:n])

		tg, err := protocol.PeekTalkgroup(packet)
		if err != nil {
			// ParsePacket would reject this packet too; count it here and
			// skip the queue.
			s.mu.Lock()
			s.parseErrors++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.ParseErrors.Inc()
			}
			s.logger.Warn("Failed to parse packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
				slog.String("error", err.Error()),
			)
			continue
		}

		packetChan := packetChans[int(uint64(tg)%uint64(len(packetChans)))]
		select {
		case packetChan <- packet:
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.PacketsDropped.Inc()
			}
			s.logger.Warn("Packet queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetWorker decodes queued packets and dispatches the events.
func (s *UDPServer) packetWorker(workerID int, packetChan <-chan []byte) {
	s.logger.Debug("Packet worker started", slog.Int("worker_id", workerID))

	for packet := range packetChan {
		event, err := protocol.ParsePacket(packet)
		if err != nil {
			s.mu.Lock()
			s.parseErrors++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.ParseErrors.Inc()
			}

			s.logger.Warn("Failed to parse packet",
				slog.Int("packet_size", len(packet)),
				slog.String("error", err.Error()),
				slog.Int("worker_id", workerID),
			)
			continue
		}

		s.router.Handle(event)

		s.mu.Lock()
		s.packetsProcessed++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.PacketsProcessed.Inc()
		}
	}

	s.logger.Debug("Packet worker stopped", slog.Int("worker_id", workerID))
}

// Statistics returns current server counters.
func (s *UDPServer) Statistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		PacketsDropped:   s.packetsDropped,
	}
}

// ServerStatistics represents UDP server counters for the monitoring API.
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	PacketsDropped   uint64 `json:"packets_dropped"`
}
