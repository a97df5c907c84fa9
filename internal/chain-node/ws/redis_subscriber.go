package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de broadcast do ledger e repassa os
// envelopes desta chain para os clientes WebSocket conectados ao Hub
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, chainID uint32, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				var env cevents.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Warn("ws subscriber unmarshal", zap.Error(err))
					continue
				}
				if env.ChainID != chainID {
					continue
				}
				hub.Broadcast(env)
			}
		}
	}()
}
