package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/entropy"
	"github.com/radieske/riskbridge/internal/shared/config"
	"github.com/radieske/riskbridge/internal/shared/kafka"
	"github.com/radieske/riskbridge/internal/shared/logger"
	"github.com/radieske/riskbridge/internal/shared/metrics"
)

// Provedor de aleatoriedade simulado: atende os pedidos de todas as chains.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New("entropy-simulator", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if !cfg.KafkaEnabled() {
		log.Fatal("entropy simulator requires KAFKA_BROKERS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	reader := kafka.NewReader(cfg.Brokers(), cfg.TopicEntropyRequests, "entropy-simulator")
	defer reader.Close()
	writer := kafka.NewWriter(cfg.Brokers(), cfg.TopicEntropyFulfilled)
	defer writer.Close()

	sim := &entropy.Simulator{
		Log:           log,
		Writer:        writer,
		Name:          "entropy-simulator",
		Delay:         cfg.EntropyDelay,
		DuplicateRate: cfg.DuplicateRate,
		OnFulfilled:   m.EntropyFulfillments.Inc,
		OnError:       m.ErrorsFor("entropy-simulator"),
	}

	srv := metrics.StartMetricsServer(log, cfg.MetricsPort)
	log.Info("entropy simulator running",
		zap.String("metrics", srv.Addr),
		zap.Duration("delay", cfg.EntropyDelay),
		zap.Float64("duplicateRate", cfg.DuplicateRate),
	)

	if err := sim.Run(ctx, reader); err != nil && ctx.Err() == nil {
		log.Fatal("simulator stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
