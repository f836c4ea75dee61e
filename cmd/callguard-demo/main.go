package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mehmetyiter/callguard/internal/breaker"
	"github.com/mehmetyiter/callguard/pkg/client"
	"github.com/mehmetyiter/callguard/pkg/logging"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry := breaker.NewRegistry(
		breaker.WithLogger(logger),
		breaker.WithMetrics(breaker.NewMetrics("demo")),
	)
	defer registry.Close()

	// Local downstream whose health degrades and recovers over time.
	downstream := newFlakyDownstream()
	server := &http.Server{Addr: "127.0.0.1:8089", Handler: downstream}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("downstream server failed", zap.Error(err))
		}
	}()
	defer server.Shutdown(context.Background())

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server listening", zap.String("address", cfg.MetricsAddress))
		if err := http.ListenAndServe(cfg.MetricsAddress, nil); err != nil {
			logger.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	httpClient, err := client.NewHTTPClient(registry, "demo-service", breaker.PredictiveConfig{
		Config: breaker.Config{
			Timeout:          cfg.Guard.Timeout,
			FailureThreshold: cfg.Guard.FailureThreshold,
			SuccessThreshold: cfg.Guard.SuccessThreshold,
			MonitoringWindow: cfg.Guard.MonitoringWindow,
			VolumeThreshold:  cfg.Guard.VolumeThreshold,
		},
		PredictionWindow:        cfg.Prediction.Window,
		PredictionSamples:       cfg.Prediction.Samples,
		PreemptiveOpenThreshold: cfg.Prediction.PreemptiveOpen,
		EvaluationInterval:      cfg.Prediction.EvaluationInterval,
		AdaptiveThresholds:      cfg.Prediction.AdaptiveThresholds,
	})
	if err != nil {
		logger.Fatal("client setup failed", zap.Error(err))
	}

	// Periodic registry stats report.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.StatsSchedule, func() {
		reportStats(logger, registry)
	}); err != nil {
		logger.Fatal("stats schedule invalid", zap.String("schedule", cfg.StatsSchedule), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting demo traffic",
		zap.String("downstream", "http://127.0.0.1:8089"),
		zap.String("metrics", cfg.MetricsAddress),
	)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for i := 1; ; i++ {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
		}

		resp, err := httpClient.Get(ctx, "http://127.0.0.1:8089/work")

		switch {
		case errors.Is(err, breaker.ErrBreakerOpen):
			logger.Warn("call rejected: breaker open", zap.Int("call", i))
		case errors.Is(err, breaker.ErrPredictiveBlock):
			logger.Warn("call rejected: preemptive open", zap.Int("call", i))
		case err != nil:
			logger.Error("call failed", zap.Int("call", i), zap.Error(err))
			if resp != nil {
				resp.Body.Close()
			}
		default:
			logger.Debug("call succeeded", zap.Int("call", i), zap.Int("status", resp.StatusCode))
			resp.Body.Close()
		}
	}
}

// reportStats logs the registry-wide view the way a health reporter
// would consume it.
func reportStats(logger *zap.Logger, registry *breaker.Registry) {
	stats := registry.Stats()
	health := registry.HealthStatus()

	logger.Info("registry stats",
		zap.Uint64("requests", stats.Requests),
		zap.Uint64("successes", stats.Successes),
		zap.Uint64("failures", stats.Failures),
		zap.Uint64("rejections", stats.Rejections),
		zap.Bool("healthy", health.Healthy),
		zap.Int("open", stats.Summary[breaker.StateOpen]),
		zap.Int("half_open", stats.Summary[breaker.StateHalfOpen]),
		zap.Int("closed", stats.Summary[breaker.StateClosed]),
	)
}

// flakyDownstream simulates a dependency whose health moves through
// phases: healthy, slow and failing, then recovering.
type flakyDownstream struct {
	start time.Time
}

func newFlakyDownstream() *flakyDownstream {
	return &flakyDownstream{start: time.Now()}
}

func (d *flakyDownstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	phase := int(time.Since(d.start)/(30*time.Second)) % 3

	switch phase {
	case 1: // degrading: latency climbs, failures spike
		time.Sleep(time.Duration(rand.Intn(400)+100) * time.Millisecond)
		if rand.Float64() < 0.7 {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
	case 2: // recovering
		time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
		if rand.Float64() < 0.2 {
			http.Error(w, "still shaky", http.StatusInternalServerError)
			return
		}
	default: // healthy
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
