package wirehttp

import (
	"os"
	"sync"

	"github.com/tedsuo/ifrit"
)

// Server wires one or more Listeners, a shared ServerConfig, a Handler,
// and the throughput Monitor into a single ifrit.Runner (spec.md §4's
// component graph). A host program starts it the same way it would start
// any other ifrit.Runner — Invoke it and wait on its Process, or simply
// call Run directly with an os.Signal channel and a ready channel.
type Server struct {
	cfg      *ServerConfig
	handler  Handler
	monitor  *monitor
	bufPool  *bufferPool
	listeners []*listener
}

var _ ifrit.Runner = (*Server)(nil)

// NewServer builds a Server that will bind one listener per entry in
// listenerConfigs, all sharing cfg and handler. TLS certificates named by
// any TLS listener config are NOT loaded here — call
// ListenerConfig.LoadTLSConfig before constructing the Server, matching
// spec.md §1's framing of certificate loading as an external concern.
func NewServer(cfg *ServerConfig, handler Handler, listenerConfigs ...*ListenerConfig) *Server {
	mon := newMonitor(cfg)
	bufPool := newBufferPool(cfg.RequestBufferSize, cfg.ResponseBufferSize)

	s := &Server{cfg: cfg, handler: handler, monitor: mon, bufPool: bufPool}
	for _, lc := range listenerConfigs {
		s.listeners = append(s.listeners, newListener(lc, cfg, handler, mon, bufPool))
	}
	return s
}

// Run implements ifrit.Runner: it starts the monitor and every listener
// concurrently, signals ready once all of them report ready, and
// propagates shutdown signals to each child, returning once they've all
// exited.
func (s *Server) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	children := make([]ifrit.Runner, 0, len(s.listeners)+1)
	children = append(children, s.monitor)
	for _, l := range s.listeners {
		children = append(children, l)
	}

	childSignals := make([]chan os.Signal, len(children))
	childReady := make([]chan struct{}, len(children))
	childErr := make([]chan error, len(children))

	for i, c := range children {
		childSignals[i] = make(chan os.Signal, 1)
		childReady[i] = make(chan struct{})
		childErr[i] = make(chan error, 1)
		go func(c ifrit.Runner, sigs chan os.Signal, rdy chan struct{}, errc chan error) {
			errc <- c.Run(sigs, rdy)
		}(c, childSignals[i], childReady[i], childErr[i])
	}

	for _, rdy := range childReady {
		<-rdy
	}
	close(ready)

	firstErr := make(chan error, 1)
	var once sync.Once

	done := make(chan struct{})
	go func() {
		for _, errc := range childErr {
			if err := <-errc; err != nil {
				once.Do(func() { firstErr <- err })
			}
		}
		close(done)
	}()

	select {
	case sig := <-signals:
		for _, cs := range childSignals {
			cs <- sig
		}
		<-done
	case err := <-firstErr:
		for _, cs := range childSignals {
			select {
			case cs <- os.Interrupt:
			default:
			}
		}
		<-done
		return err
	}
	return nil
}
