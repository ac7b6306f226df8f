// Package metrics provides a concrete MetricsSink for github.com/arl/wirehttp,
// grounded on nabbar-golib's go.mod commitment to prometheus/client_golang
// (the only repo in the corpus naming a metrics library directly).
package metrics

// Sink mirrors wirehttp.MetricsSink's method set so this package doesn't
// need to import the root package just to accept its interface; Go's
// structural typing lets a *Collector satisfy wirehttp.MetricsSink
// wherever it's passed as one.
type Sink interface {
	ConnAccepted()
	ConnClosed()
	RequestCompleted(status int)
	ConnEvicted(reason string)
}
