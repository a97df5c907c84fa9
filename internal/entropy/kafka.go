package entropy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaProvider publica os pedidos em entropy_requests para o provedor externo.
type KafkaProvider struct {
	Writer MessageWriter
}

func NewKafkaProvider(w MessageWriter) *KafkaProvider { return &KafkaProvider{Writer: w} }

func (p *KafkaProvider) Request(ctx context.Context, req Request) error {
	b, err := json.Marshal(cevents.EntropyRequested{
		RequestID: req.ID.Hex(),
		ChainID:   req.ChainID,
		User:      req.User.Hex(),
		UserSeed:  req.UserSeed.Hex(),
		Sequence:  req.Sequence,
		FeePaid:   req.FeePaid.String(),
		TsUnixMs:  req.At.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(req.ID.Hex()), Value: b, Time: time.Now()})
}

// Fulfiller é o lado do cliente que recebe callbacks (Client.Fulfill).
type Fulfiller interface {
	Fulfill(ctx context.Context, requestID, randomValue common.Hash) error
}

// Consumer lê entropy_fulfilled e entrega os resultados desta chain ao cliente.
type Consumer struct {
	Log     *zap.Logger
	Reader  *kafka.Reader
	Client  Fulfiller
	ChainID uint32
	Retries int

	OnFulfilled func()       // métricas
	OnError     func(string) // métricas por fase
}

func (c *Consumer) fail(phase string) {
	if c.OnError != nil {
		c.OnError(phase)
	}
}

// Run é o loop de consumo; termina quando ctx é cancelado.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		c.Handle(ctx, m.Value)
	}
}

// Handle processa uma mensagem; exposto para os testes.
func (c *Consumer) Handle(ctx context.Context, value []byte) {
	var ev cevents.EntropyFulfilled
	if err := json.Unmarshal(value, &ev); err != nil {
		c.Log.Warn("invalid fulfillment", zap.Error(err))
		c.fail("decode")
		return
	}
	if ev.ChainID != c.ChainID {
		return // outra chain
	}
	if !isHash(ev.RequestID) || !isHash(ev.RandomValue) {
		c.Log.Warn("malformed fulfillment", zap.String("requestId", ev.RequestID))
		c.fail("decode")
		return
	}

	id, rnd := common.HexToHash(ev.RequestID), common.HexToHash(ev.RandomValue)
	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(300*attempt) * time.Millisecond)
		}
		if err = c.Client.Fulfill(ctx, id, rnd); err == nil || errors.Is(err, ErrUnknownRequest) {
			break
		}
	}

	switch {
	case err == nil:
		if c.OnFulfilled != nil {
			c.OnFulfilled()
		}
	case errors.Is(err, ErrUnknownRequest):
		c.Log.Debug("fulfillment for unknown request ignored", zap.String("requestId", ev.RequestID))
	default:
		// o pedido continua pendente; um callback repetido ou a expiração resolvem
		c.Log.Error("fulfillment failed", zap.String("requestId", ev.RequestID), zap.Error(err))
		c.fail("fulfill")
	}
}

func isHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}
