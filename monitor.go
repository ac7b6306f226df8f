package wirehttp

import (
	"os"
	"sync"
	"time"
)

// monitoredConn is the minimal view the throughput Monitor needs of a
// live connection worker: its current state, its read/write throughput
// counters, and a way to force-close it.
type monitoredConn struct {
	state func() WorkerState
	since func() time.Time
	read  *throughputCounter
	write *throughputCounter
	evict func(reason string)
}

// monitor is an ifrit.Runner implementing spec.md §4.6's throughput
// watchdog: on a fixed tick it computes every registered connection's
// bytes/sec since it entered its current state and evicts any whose rate
// has fallen below the configured floor while it is actively reading or
// writing, or whose handler has run past the processing timeout.
type monitor struct {
	interval           time.Duration
	minReadThroughput  int64 // bytes/sec; <0 disables
	minWriteThroughput int64
	readCalcDelay      time.Duration
	writeCalcDelay     time.Duration
	processingTimeout  time.Duration

	mu    sync.Mutex
	conns map[*monitoredConn]struct{}

	metrics MetricsSink
	logger  interface {
		Warnf(format string, args ...interface{})
	}
}

func newMonitor(cfg *ServerConfig) *monitor {
	return &monitor{
		interval:           cfg.MonitorInterval,
		minReadThroughput:  cfg.MinReadThroughput,
		minWriteThroughput: cfg.MinWriteThroughput,
		readCalcDelay:      cfg.ReadThroughputCalculationDelay,
		writeCalcDelay:     cfg.WriteThroughputCalculationDelay,
		processingTimeout:  cfg.ProcessingTimeout,
		conns:              make(map[*monitoredConn]struct{}),
		metrics:            cfg.Metrics,
		logger:             cfg.Logger,
	}
}

func (m *monitor) register(c *monitoredConn) {
	m.mu.Lock()
	m.conns[c] = struct{}{}
	m.mu.Unlock()
}

func (m *monitor) unregister(c *monitoredConn) {
	m.mu.Lock()
	delete(m.conns, c)
	m.mu.Unlock()
}

// Run implements ifrit.Runner, matching the Listener's lifecycle pattern
// (spec.md §4.6: the monitor runs for the server's whole lifetime,
// independent of any single connection).
func (m *monitor) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	close(ready)

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-signals:
			return nil
		}
	}
}

func (m *monitor) tick() {
	m.mu.Lock()
	snapshot := make([]*monitoredConn, 0, len(m.conns))
	for c := range m.conns {
		snapshot = append(snapshot, c)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, c := range snapshot {
		state := c.state()

		if state == StateProcess {
			// spec.md §4.6: "Process: if now - last_used > processing_timeout_ms,
			// mark as bad." This is the one state the monitor judges by
			// elapsed wall-clock rather than throughput, since there is no
			// socket read/write in flight to carry a deadline while the
			// handler runs (spec.md §5).
			if m.processingTimeout > 0 && now.Sub(c.since()) > m.processingTimeout {
				m.evict(c, "processing_timeout")
			}
			continue
		}

		if state != StateRead && state != StateWrite {
			// throughput is only meaningful while a socket operation is
			// actually in flight; KeepAlive has no bytes moving (its
			// timeout is governed by socket-level SO_TIMEOUT instead).
			continue
		}

		elapsedInState := now.Sub(c.since())

		// Read/write throughput is "infinite" (i.e. passing) until the
		// configured warm-up window has elapsed since the worker entered
		// this state (spec.md §4.6/§3: "undefined ... until its window
		// has elapsed"). Rate is measured cumulatively since state entry,
		// not per-tick, so a connection evicted on its first eligible
		// tick is judged against its whole time in the state rather than
		// just the last interval.
		if state == StateRead && m.minReadThroughput >= 0 && elapsedInState >= m.readCalcDelay {
			if rate(c.read.load(), elapsedInState) < float64(m.minReadThroughput) {
				m.evict(c, "read_throughput_below_floor")
				continue
			}
		}
		if state == StateWrite && m.minWriteThroughput >= 0 && elapsedInState >= m.writeCalcDelay {
			if rate(c.write.load(), elapsedInState) < float64(m.minWriteThroughput) {
				m.evict(c, "write_throughput_below_floor")
				continue
			}
		}
	}
}

func (m *monitor) evict(c *monitoredConn, reason string) {
	if m.logger != nil {
		m.logger.Warnf("wirehttp: evicting slow peer: %s", reason)
	}
	if m.metrics != nil {
		m.metrics.ConnEvicted(reason)
	}
	c.evict(reason)
}
