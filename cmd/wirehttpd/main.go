// Command wirehttpd is a minimal host program demonstrating how an
// application embeds wirehttp: load configuration with viper, wire up
// logrus, register a demo handler, and run the server as an
// ifrit.Runner until an interrupt.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/arl/wirehttp"
	"github.com/arl/wirehttp/metrics"
)

type echoHandler struct {
	logger logrus.FieldLogger
}

func (h echoHandler) ServeHTTP(w *wirehttp.ResponseWriter, resp *wirehttp.Response, req *wirehttp.Request) {
	h.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.Path,
		"conn":   req.ConnID,
	}).Info("request")

	body := []byte(fmt.Sprintf("%s %s %s\n", req.Method, req.Path, req.Protocol))
	resp.SetContentLength(int64(len(body)))
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(body)
}

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	v := viper.New()
	v.SetConfigName("wirehttpd")
	v.AddConfigPath(".")
	v.SetEnvPrefix("WIREHTTPD")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.WithError(err).Fatal("reading config")
		}
	}

	cfg, err := wirehttp.LoadServerConfig(v)
	if err != nil {
		logger.WithError(err).Fatal("loading server config")
	}
	cfg.Logger = logger
	cfg.Metrics = metrics.NewCollector(nil)

	lc := &wirehttp.ListenerConfig{Addr: "0.0.0.0", Port: 8080}
	if v.GetBool("tls") {
		lc.TLS = true
		lc.CertPEMPath = v.GetString("cert_pem_path")
		lc.KeyPEMPath = v.GetString("key_pem_path")
		if err := lc.LoadTLSConfig(); err != nil {
			logger.WithError(err).Fatal("loading TLS config")
		}
	}

	srv := wirehttp.NewServer(cfg, echoHandler{logger: logger}, lc)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	ready := make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(signals, ready) }()

	<-ready
	logger.Info("wirehttpd listening")

	if err := <-errc; err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}
