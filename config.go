package wirehttp

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default sizes/durations, mirroring spec.md §6's table and the teacher's
// DefaultMaxHeaderBytes-style constants in types_server.go.
const (
	DefaultRequestBufferSize   = 8192
	DefaultResponseBufferSize  = 0
	DefaultMaxRequestHeaderSize = 1 << 20
	DefaultMaxChunkSize        = 32 << 10
	DefaultMaxBytesToDrain     = 256 << 10

	DefaultInitialReadTimeout  = 10 * time.Second
	DefaultKeepAliveTimeout    = 60 * time.Second
	DefaultProcessingTimeout   = 30 * time.Second
	DefaultShutdownTimeout     = 5 * time.Second

	DefaultMonitorInterval = 2 * time.Second

	// wildcardContentType is the map key spec.md §6 calls "wildcard `*`
	// for default" in max_request_body_size.
	wildcardContentType = "*"
)

var validate = validator.New()

// ListenerConfig binds one accept socket: address, port, and (optionally)
// TLS material. Immutable after the server starts (spec.md §3).
type ListenerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	Port int    `mapstructure:"port" validate:"min=0,max=65535"`

	TLS         bool   `mapstructure:"tls"`
	CertPEMPath string `mapstructure:"cert_pem_path" validate:"required_if=TLS true"`
	KeyPEMPath  string `mapstructure:"key_pem_path" validate:"required_if=TLS true"`

	// tlsConfig, once loaded, carries the parsed certificate chain and
	// private key (see LoadTLSConfig). Left nil for plaintext listeners.
	tlsConfig *tls.Config
}

// Scheme returns "https" if this listener terminates TLS, else "http",
// per spec.md §6 ("the default protocol version is 'https' on that
// listener").
func (lc *ListenerConfig) Scheme() string {
	if lc.TLS {
		return "https"
	}
	return "http"
}

// LoadTLSConfig reads the configured certificate chain and private key and
// attaches a *tls.Config to lc. Certificate loading itself is an external
// collaborator per spec.md §1 ("TLS certificate loading" is named but not
// specified) — this is the thinnest possible bridge to crypto/tls, not a
// certificate management layer.
func (lc *ListenerConfig) LoadTLSConfig() error {
	if !lc.TLS {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(lc.CertPEMPath, lc.KeyPEMPath)
	if err != nil {
		return fmt.Errorf("wirehttp: loading TLS key pair: %w", err)
	}
	lc.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return nil
}

// ServerConfig is process-wide immutable configuration (spec.md §3/§6).
// All durations are in their native time.Duration form; all sizes in
// bytes.
type ServerConfig struct {
	RequestBufferSize    int `mapstructure:"request_buffer_size" validate:"gte=0"`
	ResponseBufferSize   int `mapstructure:"response_buffer_size" validate:"gte=0"`
	MaxRequestHeaderSize int `mapstructure:"max_request_header_size"` // -1 disables
	MaxChunkSize         int `mapstructure:"max_chunk_size" validate:"gt=0"`
	MaxBytesToDrain      int `mapstructure:"max_bytes_to_drain" validate:"gt=0"`

	// MaxRequestBodySize maps content-type (or "*" for the default) to a
	// byte cap; -1 disables the entry.
	MaxRequestBodySize map[string]int64 `mapstructure:"max_request_body_size"`

	InitialReadTimeout time.Duration `mapstructure:"initial_read_timeout"`
	KeepAliveTimeout   time.Duration `mapstructure:"keep_alive_timeout"`
	ProcessingTimeout  time.Duration `mapstructure:"processing_timeout"`

	MinReadThroughput                 int64         `mapstructure:"min_read_throughput"`
	MinWriteThroughput                int64         `mapstructure:"min_write_throughput"`
	ReadThroughputCalculationDelay    time.Duration `mapstructure:"read_throughput_calculation_delay"`
	WriteThroughputCalculationDelay   time.Duration `mapstructure:"write_throughput_calculation_delay"`
	MonitorInterval                   time.Duration `mapstructure:"monitor_interval"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Multipart is opaque to the core; forwarded verbatim to whatever
	// multipart decoder the handler chooses to use (spec.md §6:
	// "multipart.* Opaque to the core; forwarded to the multipart
	// collaborator").
	Multipart map[string]interface{} `mapstructure:"multipart"`

	// Logger is the "LoggerFactory value passed through ServerConfig"
	// spec.md §9's design note calls for, replacing any process-wide
	// mutable logger handle. DefaultServerConfig sets it to
	// logrus.StandardLogger(), and LoadServerConfig replaces a nil value
	// with it; with a nil Logger the worker and monitor do not log.
	Logger logrus.FieldLogger `mapstructure:"-"`

	// ExpectContinue validates Expect: 100-continue requests (§6). A nil
	// value uses DefaultExpectContinueValidator (always 100).
	ExpectContinue ExpectContinueValidator `mapstructure:"-"`

	// Metrics receives accept/eviction/status instrumentation if set
	// (spec.md §1: "metrics/instrumentation callbacks" is an external
	// collaborator named but not specified by the core).
	Metrics MetricsSink `mapstructure:"-"`
}

// MetricsSink is the instrumentation seam spec.md §1 names but leaves
// unspecified; see package metrics for a concrete Prometheus-backed
// implementation.
type MetricsSink interface {
	ConnAccepted()
	ConnClosed()
	RequestCompleted(status int)
	ConnEvicted(reason string)
}

// noopMetrics is used when ServerConfig.Metrics is nil.
type noopMetrics struct{}

func (noopMetrics) ConnAccepted()             {}
func (noopMetrics) ConnClosed()                {}
func (noopMetrics) RequestCompleted(int)       {}
func (noopMetrics) ConnEvicted(string)         {}

// DefaultServerConfig returns a ServerConfig populated with spec.md §6's
// documented defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		RequestBufferSize:    DefaultRequestBufferSize,
		ResponseBufferSize:   DefaultResponseBufferSize,
		MaxRequestHeaderSize: DefaultMaxRequestHeaderSize,
		MaxChunkSize:         DefaultMaxChunkSize,
		MaxBytesToDrain:      DefaultMaxBytesToDrain,
		MaxRequestBodySize:   map[string]int64{wildcardContentType: -1},
		InitialReadTimeout:   DefaultInitialReadTimeout,
		KeepAliveTimeout:     DefaultKeepAliveTimeout,
		ProcessingTimeout:    DefaultProcessingTimeout,
		MinReadThroughput:    -1,
		MinWriteThroughput:   -1,
		MonitorInterval:      DefaultMonitorInterval,
		ShutdownTimeout:      DefaultShutdownTimeout,
		Logger:               logrus.StandardLogger(),
		ExpectContinue:       DefaultExpectContinueValidator{},
		Metrics:              noopMetrics{},
	}
}

// LoadServerConfig decodes process configuration from v (a *viper.Viper
// the host program populated from file/env/flags) into a ServerConfig
// seeded with defaults, then validates it. Mirrors nabbar-golib's
// httpserver/config.go pattern of decode-then-validate with
// go-playground/validator.
func LoadServerConfig(v *viper.Viper) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if v != nil {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("wirehttp: decoding server config: %w", err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) normalize() error {
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.ExpectContinue == nil {
		c.ExpectContinue = DefaultExpectContinueValidator{}
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	if c.MaxRequestBodySize == nil {
		c.MaxRequestBodySize = map[string]int64{wildcardContentType: -1}
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.MaxBytesToDrain <= 0 {
		c.MaxBytesToDrain = DefaultMaxBytesToDrain
	}
	if c.RequestBufferSize <= 0 {
		c.RequestBufferSize = DefaultRequestBufferSize
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("wirehttp: invalid server config: %w", err)
	}
	return nil
}

// maxBodyFor resolves the content-type cap, falling back to the wildcard
// entry, per spec.md §6.
func (c *ServerConfig) maxBodyFor(contentType string) int64 {
	if v, ok := c.MaxRequestBodySize[contentType]; ok {
		return v
	}
	if v, ok := c.MaxRequestBodySize[wildcardContentType]; ok {
		return v
	}
	return -1
}
