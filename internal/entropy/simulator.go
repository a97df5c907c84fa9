package entropy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// Simulator é o provedor de aleatoriedade de desenvolvimento.
// Responde cada EntropyRequested com um EntropyFulfilled após Delay.
type Simulator struct {
	Log    *zap.Logger
	Writer MessageWriter // entropy_fulfilled
	Name   string

	Delay         time.Duration
	DuplicateRate float64            // chance de reentregar o mesmo callback
	Rand          func() float64     // opcional (testes)
	Secret        func() common.Hash // opcional (testes); padrão RandomHash

	OnFulfilled func()
	OnError     func(string)
}

func (s *Simulator) fail(phase string) {
	if s.OnError != nil {
		s.OnError(phase)
	}
}

// MessageSource é o subconjunto de *kafka.Reader usado pelo simulador.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Run consome entropy_requests até ctx ser cancelado.
// Cada pedido espera o Delay na própria goroutine e o offset só é confirmado
// depois da publicação. No shutdown para de ler e espera os pedidos em voo.
func (s *Simulator) Run(ctx context.Context, src MessageSource) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	// pedidos já lidos terminam mesmo com ctx cancelado
	drain := context.WithoutCancel(ctx)
	for {
		m, err := src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Log.Warn("kafka fetch failed", zap.Error(err))
			s.fail("read")
			time.Sleep(time.Second)
			continue
		}

		wg.Add(1)
		go func(m kafka.Message) {
			defer wg.Done()
			time.Sleep(s.Delay)
			if err := s.Handle(drain, m.Value); err != nil {
				s.Log.Error("fulfill request", zap.Error(err))
			}
			if err := src.CommitMessages(drain, m); err != nil {
				s.Log.Warn("commit offset", zap.Error(err))
				s.fail("commit")
			}
		}(m)
	}
}

// Handle responde um pedido imediatamente.
func (s *Simulator) Handle(ctx context.Context, value []byte) error {
	var req cevents.EntropyRequested
	if err := json.Unmarshal(value, &req); err != nil {
		s.fail("decode")
		return fmt.Errorf("decode request: %w", err)
	}
	if !isHash(req.RequestID) || !isHash(req.UserSeed) {
		s.fail("decode")
		return fmt.Errorf("malformed request %q", req.RequestID)
	}

	b, err := json.Marshal(cevents.EntropyFulfilled{
		RequestID:   req.RequestID,
		ChainID:     req.ChainID,
		RandomValue: s.randomFor(common.HexToHash(req.UserSeed)).Hex(),
		Provider:    s.Name,
		TsUnixMs:    time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	deliveries := 1
	if s.DuplicateRate > 0 && s.random() < s.DuplicateRate {
		deliveries = 2
	}
	msg := kafka.Message{Key: []byte(req.RequestID), Value: b, Time: time.Now()}
	for i := 0; i < deliveries; i++ {
		if err := s.Writer.WriteMessages(ctx, msg); err != nil {
			s.fail("write")
			return fmt.Errorf("publish fulfillment: %w", err)
		}
	}
	if s.OnFulfilled != nil {
		s.OnFulfilled()
	}
	s.Log.Debug("request fulfilled",
		zap.String("requestId", req.RequestID),
		zap.Uint32("chainId", req.ChainID),
		zap.Int("deliveries", deliveries),
	)
	return nil
}

// randomFor combina a semente do usuário com o segredo do provedor:
// nenhum dos dois lados controla sozinho o resultado.
func (s *Simulator) randomFor(userSeed common.Hash) common.Hash {
	secret := RandomHash()
	if s.Secret != nil {
		secret = s.Secret()
	}
	return crypto.Keccak256Hash(userSeed.Bytes(), secret.Bytes())
}

func (s *Simulator) random() float64 {
	if s.Rand != nil {
		return s.Rand()
	}
	return rand.Float64()
}
