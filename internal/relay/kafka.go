package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// MessageWriter é o subconjunto de *kafka.Writer usado aqui.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaTransport publica as liquidações em relay_outbound; o relay-worker leva adiante.
type KafkaTransport struct {
	Writer MessageWriter
}

func NewKafkaTransport(w MessageWriter) *KafkaTransport { return &KafkaTransport{Writer: w} }

func (t *KafkaTransport) Send(ctx context.Context, msg Message) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	pkt := cevents.RelayPacket{
		ID:               uuid.NewString(),
		SourceChain:      msg.SourceChain,
		DestinationChain: msg.DestinationChain,
		Message:          body,
		TsUnixMs:         time.Now().UnixMilli(),
	}
	b, err := json.Marshal(pkt)
	if err != nil {
		return err
	}
	return t.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.RequestID.Hex()), Value: b, Time: time.Now()})
}

// Consumer lê relay_inbound_<chain> e entrega os pacotes ao adaptador.
// Pacotes rejeitados vão para a DLQ; falhas de infraestrutura são tentadas de novo.
type Consumer struct {
	Log      *zap.Logger
	Reader   *kafka.Reader
	Receiver Receiver
	DLQ      MessageWriter // opcional
	Retries  int
	Backoff  time.Duration

	OnError func(string) // métricas por fase
}

func (c *Consumer) fail(phase string) {
	if c.OnError != nil {
		c.OnError(phase)
	}
}

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

// Handle processa um pacote.
func (c *Consumer) Handle(ctx context.Context, value []byte) {
	var pkt cevents.RelayPacket
	if err := json.Unmarshal(value, &pkt); err != nil {
		c.Log.Warn("invalid relay packet", zap.Error(err))
		c.fail("decode")
		c.deadLetter(ctx, "", value, "decode")
		return
	}
	msg, err := Decode(pkt.Message)
	if err != nil {
		c.Log.Warn("invalid relay message", zap.String("packet", pkt.ID), zap.Error(err))
		c.fail("decode")
		c.deadLetter(ctx, pkt.ID, value, "decode")
		return
	}
	sender := common.HexToHash(pkt.Sender)

	for attempt := 0; ; attempt++ {
		err = c.Receiver.OnMessageReceived(ctx, pkt.SourceChain, sender, msg)
		if err == nil {
			return
		}
		if rejected(err) || attempt >= c.Retries || ctx.Err() != nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * c.Backoff)
	}

	c.Log.Error("relay message not applied", zap.String("packet", pkt.ID), zap.String("requestId", msg.RequestID.Hex()), zap.Error(err))
	if rejected(err) {
		c.fail("rejected")
		c.deadLetter(ctx, pkt.ID, value, err.Error())
		return
	}
	c.fail("apply")
	c.deadLetter(ctx, pkt.ID, value, "apply: "+err.Error())
}

func rejected(err error) bool {
	return errors.Is(err, ErrUntrustedRemote) || errors.Is(err, ErrWrongDestination) || errors.Is(err, ErrInvalidMessage)
}

func (c *Consumer) deadLetter(ctx context.Context, key string, value []byte, reason string) {
	if c.DLQ == nil {
		return
	}
	err := c.DLQ.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "reason", Value: []byte(reason)}},
		Time:    time.Now(),
	})
	if err != nil {
		c.Log.Warn("dlq write failed", zap.Error(err))
	}
}
