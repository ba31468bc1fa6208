package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Port    int
	Path    string
}

var (
	shotsSentDesc = prometheus.NewDesc(
		"lasertag_shots_sent_total", "Total IR transmissions sent", nil, nil)
	pulsesEmittedDesc = prometheus.NewDesc(
		"lasertag_pulses_emitted_total", "Total pulses handed to the emitter", nil, nil)
	capturesDesc = prometheus.NewDesc(
		"lasertag_captures_total", "Total pulse captures processed", nil, nil)
	framesDecodedDesc = prometheus.NewDesc(
		"lasertag_frames_decoded_total", "Total structurally valid frames", nil, nil)
	decodeFailuresDesc = prometheus.NewDesc(
		"lasertag_decode_failures_total", "Decode failures by kind", []string{"kind"}, nil)
	checksumMismatchDesc = prometheus.NewDesc(
		"lasertag_checksum_mismatches_total", "Frames failing checksum or reserved bit checks", nil, nil)
	framesDroppedDesc = prometheus.NewDesc(
		"lasertag_frames_dropped_total", "Frames discarded after failing verification", nil, nil)
	hitsDesc = prometheus.NewDesc(
		"lasertag_hits_total", "Delivered hits by team code", []string{"team"}, nil)
	lastHitDesc = prometheus.NewDesc(
		"lasertag_last_hit_timestamp_seconds", "Unix time of the last delivered hit", nil, nil)
)

// PrometheusExporter adapts a Collector to the prometheus.Collector interface
type PrometheusExporter struct {
	collector *Collector
}

// NewPrometheusExporter creates a new exporter
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{collector: collector}
}

// Describe implements prometheus.Collector
func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- shotsSentDesc
	ch <- pulsesEmittedDesc
	ch <- capturesDesc
	ch <- framesDecodedDesc
	ch <- decodeFailuresDesc
	ch <- checksumMismatchDesc
	ch <- framesDroppedDesc
	ch <- hitsDesc
	ch <- lastHitDesc
}

// Collect implements prometheus.Collector
func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	c := e.collector

	ch <- prometheus.MustNewConstMetric(shotsSentDesc, prometheus.CounterValue, float64(c.GetShotsSent()))
	ch <- prometheus.MustNewConstMetric(pulsesEmittedDesc, prometheus.CounterValue, float64(c.GetPulsesEmitted()))
	ch <- prometheus.MustNewConstMetric(capturesDesc, prometheus.CounterValue, float64(c.GetCapturesReceived()))
	ch <- prometheus.MustNewConstMetric(framesDecodedDesc, prometheus.CounterValue, float64(c.GetFramesDecoded()))
	for kind, n := range c.GetDecodeFailures() {
		ch <- prometheus.MustNewConstMetric(decodeFailuresDesc, prometheus.CounterValue, float64(n), kind)
	}
	ch <- prometheus.MustNewConstMetric(checksumMismatchDesc, prometheus.CounterValue, float64(c.GetChecksumMismatches()))
	ch <- prometheus.MustNewConstMetric(framesDroppedDesc, prometheus.CounterValue, float64(c.GetFramesDropped()))
	for team, n := range c.GetHitsByTeam() {
		ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(n), strconv.Itoa(int(team)))
	}
	ch <- prometheus.MustNewConstMetric(lastHitDesc, prometheus.GaugeValue, float64(c.GetLastHitUnixMillis())/1000)
}

// NewHandler returns an HTTP handler serving the collector in the
// Prometheus exposition format from a private registry
func NewHandler(collector *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewPrometheusExporter(collector))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// PrometheusServer is an HTTP server for Prometheus metrics
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}

	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start starts the Prometheus metrics server and blocks until ctx is done
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.config.Path, NewHandler(s.collector))

	// Use a listener to get the actual port (useful for testing with port 0)
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("Starting Prometheus metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down Prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}
