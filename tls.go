package wirehttp

import (
	"crypto/tls"
	"net"
	"time"
)

// newTLSListener wraps ln for TLS termination, first enabling TCP
// keep-alives on accepted connections — the same tcpKeepAliveListener
// technique net/http.Server.ListenAndServe uses, reused here per
// spec.md §4.1.
func newTLSListener(ln net.Listener, cfg *tls.Config) net.Listener {
	if tcpLn, ok := ln.(*net.TCPListener); ok {
		ln = tcpKeepAliveListener{tcpLn}
	}
	return tls.NewListener(ln, cfg)
}

type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
