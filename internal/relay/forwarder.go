package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
	"github.com/radieske/riskbridge/pkg/contracts/topics"
)

var ErrUnknownSource = errors.New("no sender registered for source chain")

// Forwarder faz o papel da rede de relay: lê relay_outbound, carimba o remetente
// da chain de origem e publica em relay_inbound_<destino>.
// O Writer não pode ter Topic fixo: cada mensagem leva o seu.
type Forwarder struct {
	Log           *zap.Logger
	Writer        MessageWriter
	DLQ           MessageWriter // opcional
	Senders       map[uint32]common.Hash
	Retries       int
	Backoff       time.Duration
	DuplicateRate float64
	Rand          func() float64

	OnForwarded func()
	OnError     func(string)
}

func (f *Forwarder) fail(phase string) {
	if f.OnError != nil {
		f.OnError(phase)
	}
}

// Run consome do reader até ctx ser cancelado.
func (f *Forwarder) Run(ctx context.Context, r *kafka.Reader) error {
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.Log.Warn("kafka read failed", zap.Error(err))
			f.fail("read")
			time.Sleep(time.Second)
			continue
		}
		if err := f.Forward(ctx, m.Value); err != nil {
			f.Log.Error("forward packet", zap.Error(err))
		}
	}
}

// Forward trata um pacote de relay_outbound.
func (f *Forwarder) Forward(ctx context.Context, value []byte) error {
	var pkt cevents.RelayPacket
	if err := json.Unmarshal(value, &pkt); err != nil {
		f.fail("decode")
		f.deadLetter(ctx, "", value, "decode")
		return fmt.Errorf("decode packet: %w", err)
	}

	sender, ok := f.Senders[pkt.SourceChain]
	if !ok {
		f.fail("sender")
		f.deadLetter(ctx, pkt.ID, value, "unknown source")
		return fmt.Errorf("%w: %d", ErrUnknownSource, pkt.SourceChain)
	}
	pkt.Sender = sender.Hex()

	deliveries := 1
	if f.DuplicateRate > 0 && f.random() < f.DuplicateRate {
		deliveries = 2 // reentrega proposital: o destino precisa ser idempotente
	}

	for i := 0; i < deliveries; i++ {
		pkt.Attempt = i + 1
		b, err := json.Marshal(pkt)
		if err != nil {
			return err
		}
		msg := kafka.Message{
			Topic: topics.RelayInbound(pkt.DestinationChain),
			Key:   []byte(pkt.ID),
			Value: b,
			Time:  time.Now(),
		}
		if err := f.write(ctx, msg); err != nil {
			f.fail("write")
			f.deadLetter(ctx, pkt.ID, value, "write: "+err.Error())
			return err
		}
	}

	if f.OnForwarded != nil {
		f.OnForwarded()
	}
	f.Log.Info("packet forwarded",
		zap.String("packet", pkt.ID),
		zap.Uint32("source", pkt.SourceChain),
		zap.Uint32("destination", pkt.DestinationChain),
		zap.Int("deliveries", deliveries),
	)
	return nil
}

// write tenta de novo com backoff linear antes de desistir.
func (f *Forwarder) write(ctx context.Context, msg kafka.Message) error {
	err := f.Writer.WriteMessages(ctx, msg)
	for i := 0; err != nil && i < f.Retries; i++ {
		time.Sleep(time.Duration(i+1) * f.Backoff)
		err = f.Writer.WriteMessages(ctx, msg)
	}
	return err
}

func (f *Forwarder) random() float64 {
	if f.Rand != nil {
		return f.Rand()
	}
	return rand.Float64()
}

func (f *Forwarder) deadLetter(ctx context.Context, key string, value []byte, reason string) {
	if f.DLQ == nil {
		return
	}
	if err := f.DLQ.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "reason", Value: []byte(reason)}},
		Time:    time.Now(),
	}); err != nil {
		f.Log.Warn("dlq write failed", zap.Error(err))
	}
}
