// Package wirehttp implements an HTTP/1.1 server core: a byte-precise
// preamble parser, fixed-length and chunked body readers, a
// content-length/chunked response writer with optional gzip/deflate
// compression, and a throughput-based connection monitor, wired together
// behind a small Handler interface. TLS, request routing, and multipart
// decoding are deliberately left to the embedding application.
package wirehttp
