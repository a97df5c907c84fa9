package entropy

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

var user = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func fee(t *testing.T) *big.Int {
	t.Helper()
	f, err := ParseFee(DefaultFee)
	require.NoError(t, err)
	return f
}

func TestParseFee(t *testing.T) {
	f, err := ParseFee("0.001")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000", f.String())

	_, err = ParseFee("-1")
	assert.Error(t, err)
	_, err = ParseFee("abc")
	assert.Error(t, err)
	_, err = ParseFee("0.0000000000000000001")
	assert.Error(t, err)
}

func TestFeeGate(t *testing.T) {
	q := &QueueProvider{}
	c := NewClient(zap.NewNop(), 40245, fee(t), q)

	below := new(big.Int).Sub(c.Fee(), big.NewInt(1))
	_, err := c.RequestRandomness(context.Background(), user, common.Hash{}, below)
	assert.ErrorIs(t, err, ErrInsufficientFee)
	_, err = c.RequestRandomness(context.Background(), user, common.Hash{}, nil)
	assert.ErrorIs(t, err, ErrInsufficientFee)
	assert.Empty(t, q.Requests())

	id, err := c.RequestRandomness(context.Background(), user, common.Hash{}, c.Fee())
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, id)
	assert.Equal(t, 1, c.Outstanding())

	reqs := q.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, id, reqs[0].ID)
	assert.Equal(t, uint64(1), reqs[0].Sequence)
}

func TestRequestIDsAreUnique(t *testing.T) {
	c := NewClient(zap.NewNop(), 40245, fee(t), &QueueProvider{})
	seen := map[common.Hash]bool{}
	for i := 0; i < 50; i++ {
		id, err := c.RequestRandomness(context.Background(), user, common.Hash{}, c.Fee())
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestFulfillDeliversAtMostOnce(t *testing.T) {
	ctx := context.Background()
	c := NewClient(zap.NewNop(), 40245, fee(t), &QueueProvider{})
	var calls int32
	c.SetHandler(func(context.Context, Request, common.Hash) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	id, err := c.RequestRandomness(ctx, user, common.Hash{}, c.Fee())
	require.NoError(t, err)

	require.NoError(t, c.Fulfill(ctx, id, common.HexToHash("0x01")))
	assert.ErrorIs(t, c.Fulfill(ctx, id, common.HexToHash("0x01")), ErrUnknownRequest)
	assert.ErrorIs(t, c.Fulfill(ctx, common.HexToHash("0xdead"), common.Hash{}), ErrUnknownRequest)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Zero(t, c.Outstanding())
}

func TestFulfillKeepsRequestWhenHandlerFails(t *testing.T) {
	ctx := context.Background()
	c := NewClient(zap.NewNop(), 40245, fee(t), &QueueProvider{})
	boom := errors.New("boom")
	fail := true
	c.SetHandler(func(context.Context, Request, common.Hash) error {
		if fail {
			return boom
		}
		return nil
	})

	id, err := c.RequestRandomness(ctx, user, common.Hash{}, c.Fee())
	require.NoError(t, err)

	assert.ErrorIs(t, c.Fulfill(ctx, id, common.Hash{}), boom)
	assert.Equal(t, 1, c.Outstanding())

	fail = false
	assert.NoError(t, c.Fulfill(ctx, id, common.Hash{}))
	assert.Zero(t, c.Outstanding())
}

func TestProviderFailureAbandonsRequest(t *testing.T) {
	q := &QueueProvider{Err: errors.New("broker down")}
	c := NewClient(zap.NewNop(), 40245, fee(t), q)
	_, err := c.RequestRandomness(context.Background(), user, common.Hash{}, c.Fee())
	assert.Error(t, err)
	assert.Zero(t, c.Outstanding())
}

func TestLocalProviderFulfillsAsync(t *testing.T) {
	p := NewLocalProvider(zap.NewNop(), 5*time.Millisecond)
	p.Random = func() common.Hash { return common.HexToHash("0x2a") }
	c := NewClient(zap.NewNop(), 40245, fee(t), p)
	p.Bind(c)

	got := make(chan common.Hash, 1)
	c.SetHandler(func(_ context.Context, _ Request, rnd common.Hash) error {
		got <- rnd
		return nil
	})

	_, err := c.RequestRandomness(context.Background(), user, common.Hash{}, c.Fee())
	require.NoError(t, err)

	select {
	case rnd := <-got:
		assert.Equal(t, common.HexToHash("0x2a"), rnd)
	case <-time.After(time.Second):
		t.Fatal("fulfillment not delivered")
	}
}

func TestConsumerHandle(t *testing.T) {
	ctx := context.Background()
	c := NewClient(zap.NewNop(), 40245, fee(t), &QueueProvider{})
	var delivered int32
	c.SetHandler(func(context.Context, Request, common.Hash) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})
	id, err := c.RequestRandomness(ctx, user, common.Hash{}, c.Fee())
	require.NoError(t, err)

	var fulfilled int32
	var errs []string
	cons := &Consumer{
		Log: zap.NewNop(), Client: c, ChainID: 40245,
		OnFulfilled: func() { atomic.AddInt32(&fulfilled, 1) },
		OnError:     func(phase string) { errs = append(errs, phase) },
	}

	msg := func(chain uint32, reqID string) []byte {
		b, _ := json.Marshal(cevents.EntropyFulfilled{RequestID: reqID, ChainID: chain, RandomValue: common.HexToHash("0x07").Hex()})
		return b
	}

	cons.Handle(ctx, msg(40231, id.Hex())) // outra chain: ignora
	assert.Equal(t, 1, c.Outstanding())

	cons.Handle(ctx, msg(40245, id.Hex()))
	cons.Handle(ctx, msg(40245, id.Hex())) // duplicado
	cons.Handle(ctx, []byte("{"))
	cons.Handle(ctx, msg(40245, "0x1234"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fulfilled))
	assert.Equal(t, []string{"decode", "decode"}, errs)
}
