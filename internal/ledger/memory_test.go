package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.Update(ctx, alice, func(tx Tx) error {
		tx.Account().Balance = 99
		require.NoError(t, tx.RecordSettlement("k1"))
		require.NoError(t, tx.Journal(Entry{User: alice, Op: OpDeposit, Amount: 99}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err := s.Get(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)
	assert.Empty(t, s.AllEntries())

	require.NoError(t, s.Update(ctx, alice, func(tx Tx) error {
		applied, err := tx.SettlementApplied("k1")
		require.NoError(t, err)
		assert.False(t, applied)
		return nil
	}))
}

func TestMemoryStoreSettlementVisibleInsideTx(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Update(context.Background(), alice, func(tx Tx) error {
		require.NoError(t, tx.RecordSettlement("k"))
		applied, err := tx.SettlementApplied("k")
		require.NoError(t, err)
		assert.True(t, applied)
		return nil
	}))
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Update(ctx, alice, func(tx Tx) error {
		tx.Account().PendingBet = &Bet{Owner: alice, Stake: 5, Status: BetPending}
		return nil
	}))

	acc, _ := s.Get(ctx, alice)
	acc.PendingBet.Stake = 500

	again, _ := s.Get(ctx, alice)
	assert.Equal(t, uint64(5), again.PendingBet.Stake)
}

func TestMemoryStorePendingBetsOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	t0 := time.Unix(1_700_000_000, 0)
	place := func(u common.Address, at time.Time) {
		require.NoError(t, s.Update(ctx, u, func(tx Tx) error {
			tx.Account().PendingBet = &Bet{Owner: u, Status: BetPending, PlacedAt: at}
			return nil
		}))
	}
	place(bob, t0.Add(time.Minute))
	place(alice, t0)

	bets, err := s.PendingBets(ctx)
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Equal(t, alice, bets[0].Owner)
	assert.Equal(t, bob, bets[1].Owner)
}

func TestMemoryStoreRespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewMemoryStore().Update(ctx, alice, func(Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
