package wirehttp

import (
	"testing"
	"time"
)

// fakeConn is a monitoredConn stand-in whose state/since are fixed and
// whose evict call is observable, letting the monitor's eviction decision
// be tested without a real socket or ticker.
func fakeConn(state WorkerState, since time.Time, readBytes, writeBytes int64) (*monitoredConn, *bool) {
	evicted := new(bool)
	rc := &throughputCounter{bytes: readBytes}
	wc := &throughputCounter{bytes: writeBytes}
	c := &monitoredConn{
		state: func() WorkerState { return state },
		since: func() time.Time { return since },
		read:  rc,
		write: wc,
		evict: func(string) { *evicted = true },
	}
	return c, evicted
}

func TestMonitorEvictsSlowReaderPastCalcDelay(t *testing.T) {
	m := &monitor{
		minReadThroughput: 1000, // bytes/sec
		readCalcDelay:     1 * time.Second,
	}
	// 100 bytes over 2 seconds = 50 B/s, well under the 1000 B/s floor,
	// and the calc delay has already elapsed.
	c, evicted := fakeConn(StateRead, time.Now().Add(-2*time.Second), 100, 0)
	m.conns = map[*monitoredConn]struct{}{c: {}}
	m.tick()
	if !*evicted {
		t.Fatal("expected slow reader to be evicted")
	}
}

func TestMonitorDoesNotEvictBeforeCalcDelayElapses(t *testing.T) {
	m := &monitor{
		minReadThroughput: 1000,
		readCalcDelay:     10 * time.Second,
	}
	// Same pathological rate, but still inside the warm-up window.
	c, evicted := fakeConn(StateRead, time.Now().Add(-1*time.Second), 1, 0)
	m.conns = map[*monitoredConn]struct{}{c: {}}
	m.tick()
	if *evicted {
		t.Fatal("connection should not be evicted before its calculation delay elapses")
	}
}

func TestMonitorDoesNotEvictHealthyThroughput(t *testing.T) {
	m := &monitor{
		minWriteThroughput: 100,
		writeCalcDelay:     time.Second,
	}
	c, evicted := fakeConn(StateWrite, time.Now().Add(-2*time.Second), 0, 10_000)
	m.conns = map[*monitoredConn]struct{}{c: {}}
	m.tick()
	if *evicted {
		t.Fatal("healthy writer should not be evicted")
	}
}

func TestMonitorIgnoresThroughputWhenFloorDisabled(t *testing.T) {
	m := &monitor{
		minReadThroughput: -1,
		readCalcDelay:     0,
	}
	c, evicted := fakeConn(StateRead, time.Now().Add(-time.Hour), 0, 0)
	m.conns = map[*monitoredConn]struct{}{c: {}}
	m.tick()
	if *evicted {
		t.Fatal("a disabled floor (-1) must never evict")
	}
}

func TestMonitorEvictsStuckHandlerPastProcessingTimeout(t *testing.T) {
	m := &monitor{processingTimeout: 5 * time.Second}
	c, evicted := fakeConn(StateProcess, time.Now().Add(-10*time.Second), 0, 0)
	m.conns = map[*monitoredConn]struct{}{c: {}}
	m.tick()
	if !*evicted {
		t.Fatal("expected a handler stuck past processing_timeout to be evicted")
	}
}

func TestMonitorDoesNotEvictActiveHandler(t *testing.T) {
	m := &monitor{processingTimeout: 5 * time.Second}
	c, evicted := fakeConn(StateProcess, time.Now().Add(-1*time.Second), 0, 0)
	m.conns = map[*monitoredConn]struct{}{c: {}}
	m.tick()
	if *evicted {
		t.Fatal("a handler still within its processing_timeout budget must not be evicted")
	}
}

func TestMonitorNeverEvictsKeepAlive(t *testing.T) {
	m := &monitor{processingTimeout: time.Nanosecond, minReadThroughput: 1000000, minWriteThroughput: 1000000}
	c, evicted := fakeConn(StateKeepAlive, time.Now().Add(-time.Hour), 0, 0)
	m.conns = map[*monitoredConn]struct{}{c: {}}
	m.tick()
	if *evicted {
		t.Fatal("spec.md §4.6: KeepAlive has no monitor-driven action")
	}
}
