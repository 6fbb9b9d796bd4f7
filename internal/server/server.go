// Package server wires together the pipeline stages, the TCP acceptor,
// and the session registry, and owns their startup and shutdown.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"odin-tradefanout/internal/config"
	"odin-tradefanout/internal/market"
	"odin-tradefanout/internal/metrics"
	"odin-tradefanout/internal/pipeline"
	"odin-tradefanout/internal/producer"
	"odin-tradefanout/internal/ring"
	"odin-tradefanout/internal/session"
)

const (
	hotRingCapacity     = 8 * 1024 * 1024
	eventRingCapacity   = 2 * 1024 * 1024
	expirySweepInterval = 100 * time.Millisecond
	monitorInterval     = time.Second
	shutdownJoinTimeout = 500 * time.Millisecond
)

// Server owns the TCP acceptor, the pipeline stages, and the set of
// subscribed sessions. Construct with NewServer, then Start, then Stop
// for graceful shutdown.
type Server struct {
	cfg           config.ServerConfig
	registry      *market.Registry
	ingestFactory func(reset *producer.VWAPResetFlag) producer.IngestSource // nil when cfg.Emulate is true

	logger    *log.Logger
	collector *metrics.Collector
	sampler   *metrics.SystemSampler

	hot    *ring.Broadcast[market.MarketEvent]
	events *ring.Broadcast[market.WhaleEvent]

	hotDispatcher    *pipeline.HotDispatcher
	eventDispatcher  *pipeline.EventDispatcher
	pipelineCounters *pipeline.Counters
	producerCounters *producer.Counters
	resetFlag        producer.VWAPResetFlag
	latency          *pipeline.LatencySnapshot

	subscribersMu      sync.Mutex
	subscribers        map[string]*session.Session
	subscribersChanged atomic.Bool

	listener net.Listener

	metricsAddr string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer builds a Server over instruments. ingestFactory is consulted
// only when cfg.Emulate is false; it receives the server's own reset
// flag so a feed reconnect can clear VWAP analytics the same way an
// emulator restart would. metricsAddr, if non-empty, serves Prometheus
// metrics on that address (e.g. ":9090").
func NewServer(cfg config.ServerConfig, instruments []market.Instrument, ingestFactory func(*producer.VWAPResetFlag) producer.IngestSource, metricsAddr string) *Server {
	logger := log.New(os.Stdout, "[odin] ", log.LstdFlags|log.Lshortfile)
	registry := market.NewRegistry(instruments)
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:              cfg,
		registry:         registry,
		ingestFactory:    ingestFactory,
		logger:           logger,
		collector:        collector,
		sampler:          metrics.NewSystemSampler(),
		hot:              ring.NewBroadcast[market.MarketEvent](hotRingCapacity),
		events:           ring.NewBroadcast[market.WhaleEvent](eventRingCapacity),
		pipelineCounters: &pipeline.Counters{},
		producerCounters: &producer.Counters{},
		latency:          pipeline.NewLatencySnapshot(),
		subscribers:      make(map[string]*session.Session),
		metricsAddr:      metricsAddr,
		ctx:              ctx,
		cancel:           cancel,
	}

	s.hotDispatcher = pipeline.NewHotDispatcher(registry, s.hot, s.events, &s.resetFlag, s.latency, cfg.ExtendedVWAP, logger)
	s.hotDispatcher.SetMetricsHooks(collector.ObserveLatencyTicks, collector.WhalesTotal.Inc)
	s.eventDispatcher = pipeline.NewEventDispatcher(registry, s.events, &s.subscribersChanged, s.subscriberSnapshot, s.pipelineCounters, logger)

	return s
}

// Start binds the listener, spawns the pipeline and maintenance
// goroutines, and begins accepting connections. It returns once the
// listener is bound; accept runs in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("server: listen on port %d: %w", s.cfg.Port, err)
	}
	s.listener = ln
	s.logger.Printf("listening on %s (emulate=%v ext_vwap=%v)", ln.Addr(), s.cfg.Emulate, s.cfg.ExtendedVWAP)

	if s.metricsAddr != "" {
		s.startMetricsServer()
	}

	// The five pipeline threads each get a dedicated, pinned OS thread;
	// the accept loop is I/O-bound and shares the general scheduler.
	s.spawnPinned(0, s.runProducer)
	s.spawnPinned(1, func(ctx context.Context) {
		var backoff ring.Backoff
		s.hotDispatcher.Run(ctx, &backoff)
	})
	s.spawnPinned(2, func(ctx context.Context) {
		var backoff ring.Backoff
		s.eventDispatcher.Run(ctx, &backoff)
	})
	s.spawnPinned(3, s.runExpirySweep)
	s.spawnPinned(4, s.runMonitor)
	s.spawn(s.runAcceptLoop)

	return nil
}

func (s *Server) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// spawnPinned runs fn on a goroutine locked to its own OS thread and
// pinned to core (mod runtime.NumCPU()). Affinity failures are logged
// and otherwise ignored: a container without CAP_SYS_NICE or a non-Linux
// host still runs the pipeline, just without the core restriction.
func (s *Server) spawnPinned(core int, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer runtime.UnlockOSThread()
		if err := pinToCore(core); err != nil {
			s.logger.Printf("server: pin to core %d failed: %v", core, err)
		}
		fn(s.ctx)
	}()
}

func (s *Server) runProducer(ctx context.Context) {
	if s.cfg.Emulate {
		var backoff ring.Backoff
		producer.NewEmulator(s.registry, emulatorSeed()).Run(ctx, s.hot, &backoff, s.producerCounters)
		return
	}
	if s.ingestFactory == nil {
		s.logger.Printf("server: ingest mode selected but no ingest source configured")
		return
	}
	ingest := s.ingestFactory(&s.resetFlag)
	if err := producer.RunIngest(ctx, ingest, s.registry, s.hot, s.producerCounters, s.logger); err != nil && ctx.Err() == nil {
		s.logger.Printf("ingest exited: %v", err)
	}
}

func (s *Server) runAcceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("accept error: %v", err)
			continue
		}
		sess := session.New(conn, s.registry, s.logger, s.registerSession, s.unregisterSession)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Serve()
		}()
	}
}

func (s *Server) registerSession(sess *session.Session) {
	s.subscribersMu.Lock()
	s.subscribers[sess.ID()] = sess
	s.subscribersMu.Unlock()
	s.subscribersChanged.Store(true)
	s.collector.SessionsActive.Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		session.NewWriter(sess).Run()
	}()
}

func (s *Server) unregisterSession(sess *session.Session) {
	s.subscribersMu.Lock()
	_, existed := s.subscribers[sess.ID()]
	delete(s.subscribers, sess.ID())
	s.subscribersMu.Unlock()
	if existed {
		s.subscribersChanged.Store(true)
		s.collector.SessionsActive.Dec()
	}
}

func (s *Server) subscriberSnapshot() []pipeline.SessionTarget {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	out := make([]pipeline.SessionTarget, 0, len(s.subscribers))
	for _, sess := range s.subscribers {
		out = append(out, sess)
	}
	return out
}

// runExpirySweep prunes any session that closed without completing its
// own unregister, a safety net running on a 100ms maintenance cadence.
func (s *Server) runExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.subscribersMu.Lock()
			changed := false
			for id, sess := range s.subscribers {
				if sess.Closing() {
					delete(s.subscribers, id)
					changed = true
				}
			}
			s.subscribersMu.Unlock()
			if changed {
				s.subscribersChanged.Store(true)
			}
		}
	}
}

func (s *Server) runMonitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	var lastHead, lastEventDrops, lastOverloads, lastProducerDrops uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampler.Sample()
			s.sampler.PublishTo(s.collector)

			head := s.hot.Head()
			throughput := head - lastHead
			lastHead = head
			s.collector.ThroughputEvents.Add(float64(throughput))

			if eventDrops := s.pipelineCounters.EventDropped.Load(); eventDrops > lastEventDrops {
				s.collector.DropsTotal.WithLabelValues("event_dispatcher").Add(float64(eventDrops - lastEventDrops))
				lastEventDrops = eventDrops
			}
			if overloads := s.pipelineCounters.EventOverloads.Load(); overloads > lastOverloads {
				s.collector.OverloadsTotal.WithLabelValues("event_dispatcher").Add(float64(overloads - lastOverloads))
				lastOverloads = overloads
			}
			if producerDrops := s.producerCounters.Dropped.Load(); producerDrops > lastProducerDrops {
				s.collector.DropsTotal.WithLabelValues("producer").Add(float64(producerDrops - lastProducerDrops))
				lastProducerDrops = producerDrops
			}

			s.subscribersMu.Lock()
			sessions := len(s.subscribers)
			s.subscribersMu.Unlock()

			if hist, ok := s.latency.Read(); ok {
				p50 := hist.Percentile(0.50)
				p99 := hist.Percentile(0.99)
				p999 := hist.Percentile(0.999)
				s.logger.Printf("throughput=%d/s p50=%dns p99=%dns p99.9=%dns sessions=%d",
					throughput, p50, p99, p999, sessions)
			} else {
				s.logger.Printf("throughput=%d/s sessions=%d", throughput, sessions)
			}
		}
	}
}

func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: s.metricsAddr, Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownJoinTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("metrics server error: %v", err)
		}
	}()
}

// Stop cancels every pipeline goroutine, closes the listener and any
// still-open sessions, and waits up to 5s for everything to join,
// logging if that fallback expires.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.subscribersMu.Lock()
	open := make([]*session.Session, 0, len(s.subscribers))
	for _, sess := range s.subscribers {
		open = append(open, sess)
	}
	s.subscribersMu.Unlock()
	// Close outside the lock: each Close calls back into
	// unregisterSession, which takes subscribersMu itself.
	for _, sess := range open {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Printf("server: shutdown timed out waiting for goroutines")
	}
}

func emulatorSeed() uint32 {
	return uint32(time.Now().UnixNano()) | 1
}
