package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// RedisBroadcaster publica os fatos no Redis Pub/Sub (consumido pelo hub WebSocket)
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
	chainID uint32
}

func NewRedisBroadcaster(r *redis.Client, channel string, chainID uint32) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel, chainID: chainID}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, f cevents.Fact) error {
	env, err := cevents.Wrap(b.chainID, f)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
