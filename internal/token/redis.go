package token

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// Redis guarda saldos e allowances do token simulado no Redis, um namespace por chain.
// As transferências rodam em scripts Lua para serem atômicas.
// Valores acima de MaxInt64 não são suportados (INCRBY é assinado).
type Redis struct {
	Client *redis.Client
	Prefix string
}

func NewRedis(c *redis.Client, chainID uint32) *Redis {
	return &Redis{Client: c, Prefix: fmt.Sprintf("token:%d", chainID)}
}

func (r *Redis) balanceKey(a common.Address) string {
	return r.Prefix + ":balance:" + strings.ToLower(a.Hex())
}

func (r *Redis) allowanceKey(owner, spender common.Address) string {
	return r.Prefix + ":allowance:" + strings.ToLower(owner.Hex()) + ":" + strings.ToLower(spender.Hex())
}

// KEYS[1]=from KEYS[2]=to ARGV[1]=amount
var transferScript = redis.NewScript(`
local bal = tonumber(redis.call("GET", KEYS[1]) or "0")
local amt = tonumber(ARGV[1])
if bal < amt then return -1 end
if KEYS[1] ~= KEYS[2] then
  redis.call("DECRBY", KEYS[1], amt)
  redis.call("INCRBY", KEYS[2], amt)
end
return 1
`)

// KEYS[1]=allowance KEYS[2]=from KEYS[3]=to ARGV[1]=amount
var transferFromScript = redis.NewScript(`
local alw = tonumber(redis.call("GET", KEYS[1]) or "0")
local amt = tonumber(ARGV[1])
if alw < amt then return -2 end
local bal = tonumber(redis.call("GET", KEYS[2]) or "0")
if bal < amt then return -1 end
redis.call("DECRBY", KEYS[1], amt)
if KEYS[2] ~= KEYS[3] then
  redis.call("DECRBY", KEYS[2], amt)
  redis.call("INCRBY", KEYS[3], amt)
end
return 1
`)

func checkAmount(amount uint64) error {
	if amount > math.MaxInt64 {
		return ErrInvalidAmount
	}
	return nil
}

func scriptResult(code int64) error {
	switch code {
	case -1:
		return ErrInsufficientFunds
	case -2:
		return ErrInsufficientAllowance
	}
	return nil
}

func (r *Redis) Mint(ctx context.Context, to common.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return r.Client.IncrBy(ctx, r.balanceKey(to), int64(amount)).Err()
}

func (r *Redis) Approve(ctx context.Context, owner, spender common.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return r.Client.Set(ctx, r.allowanceKey(owner, spender), int64(amount), 0).Err()
}

func (r *Redis) get(ctx context.Context, key string) (uint64, error) {
	v, err := r.Client.Get(ctx, key).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

func (r *Redis) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	return r.get(ctx, r.balanceKey(owner))
}

func (r *Redis) Allowance(ctx context.Context, owner, spender common.Address) (uint64, error) {
	return r.get(ctx, r.allowanceKey(owner, spender))
}

func (r *Redis) TransferFrom(ctx context.Context, spender, from, to common.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	code, err := transferFromScript.Run(ctx, r.Client,
		[]string{r.allowanceKey(from, spender), r.balanceKey(from), r.balanceKey(to)}, int64(amount)).Int64()
	if err != nil {
		return fmt.Errorf("token transferFrom: %w", err)
	}
	return scriptResult(code)
}

func (r *Redis) Transfer(ctx context.Context, from, to common.Address, amount uint64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	code, err := transferScript.Run(ctx, r.Client,
		[]string{r.balanceKey(from), r.balanceKey(to)}, int64(amount)).Int64()
	if err != nil {
		return fmt.Errorf("token transfer: %w", err)
	}
	return scriptResult(code)
}
