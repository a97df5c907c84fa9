package remote

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// RedisStore guarda os remotes num hash por chain local: trusted_remotes:<chainId>.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

func NewRedisStore(c *redis.Client, localChain uint32) *RedisStore {
	return &RedisStore{Client: c, Key: fmt.Sprintf("trusted_remotes:%d", localChain)}
}

func (s *RedisStore) Save(ctx context.Context, chainID uint32, remote common.Hash) error {
	return s.Client.HSet(ctx, s.Key, strconv.FormatUint(uint64(chainID), 10), remote.Hex()).Err()
}

func (s *RedisStore) LoadAll(ctx context.Context) (map[uint32]common.Hash, error) {
	raw, err := s.Client.HGetAll(ctx, s.Key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]common.Hash, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad chain id %q: %w", k, err)
		}
		out[uint32(id)] = common.HexToHash(v)
	}
	return out, nil
}
