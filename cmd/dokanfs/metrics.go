package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/godokan/go-dokan/config"
	"github.com/godokan/go-dokan/metrics"
	promfs "github.com/godokan/go-dokan/metrics/prometheus"
)

const metricsNamespace = "dokanfs"

// metricsServer exposes the callback metrics over HTTP.
type metricsServer struct {
	server   *http.Server
	listener net.Listener
	done     chan error
}

// startMetrics returns the recorder for the bridge, and the
// server when the endpoint is enabled.
func startMetrics(cfg config.MetricsConfig, logger *logrus.Logger) (metrics.Metrics, *metricsServer, error) {
	if !cfg.Enabled {
		return metrics.Noop(), nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := promfs.New(reg, metricsNamespace)

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "listen %q", cfg.Listen)
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promfs.Handler(reg))
	s := &metricsServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		done:     make(chan error, 1),
	}
	go func() {
		err := s.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	logger.WithField("addr", listener.Addr().String()).
		WithField("path", cfg.Path).Info("Serving metrics")
	return recorder, s, nil
}

// Addr is the bound address of the listener.
func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server and returns the error that
// ended the serve loop, if any.
func (s *metricsServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown metrics server")
	}
	return <-s.done
}
