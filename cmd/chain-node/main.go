package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/chain-node/ws"
	httpapi "github.com/radieske/riskbridge/internal/chain-node/http"
	"github.com/radieske/riskbridge/internal/engine"
	"github.com/radieske/riskbridge/internal/entropy"
	"github.com/radieske/riskbridge/internal/events"
	"github.com/radieske/riskbridge/internal/ledger"
	"github.com/radieske/riskbridge/internal/relay"
	"github.com/radieske/riskbridge/internal/remote"
	"github.com/radieske/riskbridge/internal/shared/cache"
	"github.com/radieske/riskbridge/internal/shared/config"
	"github.com/radieske/riskbridge/internal/shared/db"
	"github.com/radieske/riskbridge/internal/shared/kafka"
	"github.com/radieske/riskbridge/internal/shared/logger"
	"github.com/radieske/riskbridge/internal/shared/metrics"
	"github.com/radieske/riskbridge/internal/token"
	"github.com/radieske/riskbridge/pkg/contracts/topics"
)

// faucetToken é o token simulado com as operações de faucet
type faucetToken interface {
	ledger.Token
	httpapi.Faucet
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}

	log, err := logger.New("chain-node", cfg.Env, zap.Uint32("chainId", cfg.ChainID))
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()
	log.Info("starting service", zap.String("chain", cfg.ChainName), zap.Bool("kafka", cfg.KafkaEnabled()))

	if !common.IsHexAddress(cfg.LocalAddress) {
		log.Fatal("invalid LOCAL_ADDRESS", zap.String("value", cfg.LocalAddress))
	}
	custody := common.HexToAddress(cfg.LocalAddress)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Redis: token simulado, trusted remotes e broadcast para o hub
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("redis connected")

	// Postgres é opcional: LEDGER_STORE=memory roda sem persistência
	var (
		pg    *sql.DB
		store ledger.Store = ledger.NewMemoryStore()
	)
	if cfg.LedgerStore == "postgres" {
		pg, err = db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := db.Migrate(ctx, pg); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		store = ledger.NewPostgresStore(pg)
		log.Info("postgres connected")
	}

	var tok faucetToken = token.NewMemory()
	if cfg.TokenBackend == "redis" {
		tok = token.NewRedis(rdb, cfg.ChainID)
	}

	hub := ws.NewHub(func(r *http.Request) bool { return true })

	pub := events.Multi{events.LogPublisher{Log: log}, m.FactCounter()}
	var writers []*kafka.Writer
	newWriter := func(topic string) *kafka.Writer {
		w := kafka.NewWriter(cfg.Brokers(), topic)
		writers = append(writers, w)
		return w
	}
	defer func() {
		for _, w := range writers {
			_ = w.Close()
		}
	}()

	if cfg.KafkaEnabled() {
		pub = append(pub, events.NewKafkaPublisher(newWriter(cfg.TopicLedgerEvents), cfg.ChainID))
	}
	// com canal configurado o hub recebe os fatos pelo Pub/Sub; senão direto
	if cfg.RedisPubSubChannel != "" {
		pub = append(pub, events.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel, cfg.ChainID))
		go ws.StartRedisSubscriber(ctx, log, rdb, cfg.RedisPubSubChannel, cfg.ChainID, hub)
	} else {
		pub = append(pub, hub.Publisher(cfg.ChainID))
	}

	led := ledger.New(log, store, tok, custody, pub, cfg.ChainID)

	// Entropia
	fee, err := entropy.ParseFee(cfg.EntropyFee)
	if err != nil {
		log.Fatal("invalid ENTROPY_FEE", zap.Error(err))
	}
	var provider entropy.Provider
	var local *entropy.LocalProvider
	if cfg.KafkaEnabled() && cfg.EntropyProvider == "kafka" {
		provider = entropy.NewKafkaProvider(newWriter(cfg.TopicEntropyRequests))
	} else {
		local = entropy.NewLocalProvider(log, cfg.EntropyDelay)
		provider = local
	}
	rng := entropy.NewClient(log, cfg.ChainID, fee, provider)
	if local != nil {
		local.Bind(rng)
	}

	eng := engine.New(log, led, rng, pub)

	// Trusted remotes
	registry := remote.New(log, remote.NewRedisStore(rdb, cfg.ChainID), pub)
	if err := registry.Load(ctx); err != nil {
		log.Fatal("load trusted remotes", zap.Error(err))
	}

	// Relay: sem Kafka não há transporte e apostas cross-chain são recusadas
	var transport relay.Transport
	if cfg.KafkaEnabled() {
		transport = relay.NewKafkaTransport(newWriter(cfg.TopicRelayOutbound))
	} else {
		log.Warn("kafka disabled: cross-chain settlement unavailable")
	}
	adapter := relay.NewAdapter(log, cfg.ChainID, eng, led, registry, transport, pub)
	adapter.OnResult = func(result string) { m.RelayMessages.WithLabelValues(result).Inc() }
	eng.SetSettler(adapter)
	rng.SetHandler(eng.OnRandomnessFulfilled)

	restored, err := eng.Restore(ctx)
	if err != nil {
		log.Fatal("restore pending bets", zap.Error(err))
	}
	log.Info("pending bets restored", zap.Int("count", restored))

	if cfg.KafkaEnabled() {
		group := fmt.Sprintf("chain-node-%d", cfg.ChainID)

		if cfg.EntropyProvider == "kafka" {
			er := kafka.NewReader(cfg.Brokers(), cfg.TopicEntropyFulfilled, group)
			defer er.Close()
			ec := &entropy.Consumer{
				Log:         log.Named("entropy"),
				Reader:      er,
				Client:      rng,
				ChainID:     cfg.ChainID,
				Retries:     3,
				OnFulfilled: m.EntropyFulfillments.Inc,
				OnError:     m.ErrorsFor("entropy"),
			}
			go runConsumer(ctx, log, "entropy", ec.Run)
		}

		rr := kafka.NewReader(cfg.Brokers(), topics.RelayInbound(cfg.ChainID), group)
		defer rr.Close()
		rc := &relay.Consumer{
			Log:      log.Named("relay"),
			Reader:   rr,
			Receiver: adapter,
			DLQ:      newWriter(cfg.TopicRelayInboundDLQ),
			Retries:  3,
			Backoff:  500 * time.Millisecond,
			OnError:  m.ErrorsFor("relay"),
		}
		go runConsumer(ctx, log, "relay", rc.Run)
	}

	go eng.RunExpiry(ctx, cfg.ExpirySweepEvery, cfg.BetPendingTTL)

	api := &httpapi.Server{
		Log:        log.Named("http"),
		Ledger:     led,
		Bets:       eng,
		CrossChain: adapter,
		Remotes:    registry,
		JWTSecret:  cfg.JWTSecret,
		PendingTTL: cfg.BetPendingTTL,
		WS:         hub.HandleWS,
	}
	if cfg.FaucetEnabled() {
		api.Faucet = tok
	}

	checks := []metrics.Check{{Name: "redis", Fn: cache.Check(rdb)}}
	if pg != nil {
		checks = append(checks, metrics.Check{Name: "postgres", Fn: pg.PingContext})
	}
	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, checks...)

	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// runConsumer roda o loop até ctx terminar; erro fora do shutdown derruba o processo
func runConsumer(ctx context.Context, log *zap.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("consumer stopped", zap.String("consumer", name), zap.Error(err))
	}
}
