package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// KafkaPublisher publica os fatos do ledger no tópico ledger_events.
// A chave da mensagem é o usuário, mantendo a ordem por usuário na partição.
type KafkaPublisher struct {
	Writer  *kafka.Writer
	ChainID uint32
}

func NewKafkaPublisher(w *kafka.Writer, chainID uint32) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, ChainID: chainID}
}

func (p *KafkaPublisher) Publish(ctx context.Context, f cevents.Fact) error {
	env, err := cevents.Wrap(p.ChainID, f)
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.User),
		Value: b,
		Time:  time.Now(),
	})
}
