package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	gateway "github.com/radieske/riskbridge/internal/api-gateway"
	"github.com/radieske/riskbridge/internal/shared/config"
	"github.com/radieske/riskbridge/internal/shared/logger"
	"github.com/radieske/riskbridge/internal/shared/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New("api-gateway", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// targets (CHAIN_NODES)
	gw, err := gateway.New(log, cfg.ChainNodes)
	if err != nil {
		log.Fatal("gateway config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: gw.Router()}
	go func() {
		log.Info("api-gateway listening", zap.String("addr", srv.Addr), zap.Int("chains", len(cfg.ChainNodes)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("gateway failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
