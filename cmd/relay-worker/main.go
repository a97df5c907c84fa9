package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/relay"
	"github.com/radieske/riskbridge/internal/remote"
	"github.com/radieske/riskbridge/internal/shared/config"
	"github.com/radieske/riskbridge/internal/shared/kafka"
	"github.com/radieske/riskbridge/internal/shared/logger"
	"github.com/radieske/riskbridge/internal/shared/metrics"
	"github.com/radieske/riskbridge/pkg/contracts/topics"
)

// Rede de relay simulada: move pacotes de relay_outbound para relay_inbound_<destino>.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New("relay-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if !cfg.KafkaEnabled() {
		log.Fatal("relay worker requires KAFKA_BROKERS")
	}

	// endereço que o relay atesta como remetente de cada chain
	senders := make(map[uint32]common.Hash, len(cfg.RelaySenders))
	for chain, raw := range cfg.RelaySenders {
		h, err := remote.ParseRemote(raw)
		if err != nil {
			log.Fatal("invalid RELAY_SENDERS entry", zap.Uint32("chainId", chain), zap.Error(err))
		}
		senders[chain] = h
	}
	if len(senders) == 0 {
		log.Warn("no relay senders configured: every packet goes to the DLQ")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	reader := kafka.NewReader(cfg.Brokers(), cfg.TopicRelayOutbound, "relay-worker")
	defer reader.Close()

	// cada mensagem vai para o tópico da chain de destino
	writer := kafka.NewRoutingWriter(cfg.Brokers())
	defer writer.Close()
	dlq := kafka.NewWriter(cfg.Brokers(), topics.RelayOutboundDLQ)
	defer dlq.Close()

	fwd := &relay.Forwarder{
		Log:           log,
		Writer:        writer,
		DLQ:           dlq,
		Senders:       senders,
		Retries:       3,
		Backoff:       500 * time.Millisecond,
		DuplicateRate: cfg.DuplicateRate,
		OnForwarded:   func() { m.RelayMessages.WithLabelValues("forwarded").Inc() },
		OnError:       m.ErrorsFor("relay-worker"),
	}

	srv := metrics.StartMetricsServer(log, cfg.MetricsPort)
	log.Info("relay worker running", zap.String("metrics", srv.Addr), zap.Int("chains", len(senders)))

	if err := fwd.Run(ctx, reader); err != nil && ctx.Err() == nil {
		log.Fatal("relay worker stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
