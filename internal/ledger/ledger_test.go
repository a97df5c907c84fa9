package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/events"
	"github.com/radieske/riskbridge/internal/token"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

var (
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	custody = common.HexToAddress("0x00000000000000000000000000000000000c0de")
)

type fixture struct {
	ledger *Ledger
	store  *MemoryStore
	token  *token.Memory
	rec    *events.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := NewMemoryStore()
	tok := token.NewMemory()
	rec := &events.Recorder{}
	return fixture{
		ledger: New(zap.NewNop(), store, tok, custody, rec, 40245),
		store:  store,
		token:  tok,
		rec:    rec,
	}
}

func (f fixture) fund(t *testing.T, user common.Address, amount uint64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.token.Mint(ctx, user, amount))
	require.NoError(t, f.token.Approve(ctx, user, custody, amount))
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, alice, 500)

	require.NoError(t, f.ledger.Deposit(ctx, alice, 500))
	bal, err := f.ledger.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)

	custodyBal, _ := f.token.BalanceOf(ctx, custody)
	assert.Equal(t, uint64(500), custodyBal)

	require.NoError(t, f.ledger.Withdraw(ctx, alice, 500))
	bal, _ = f.ledger.Balance(ctx, alice)
	assert.Zero(t, bal)

	walletBal, _ := f.token.BalanceOf(ctx, alice)
	assert.Equal(t, uint64(500), walletBal)

	assert.Equal(t, []string{cevents.NameDeposited, cevents.NameWithdrawn}, f.rec.Names())
	facts := f.rec.Facts()
	assert.Equal(t, cevents.Deposited{User: alice.Hex(), Amount: 500}, facts[0])
	assert.Equal(t, cevents.Withdrawn{User: alice.Hex(), Amount: 500}, facts[1])
}

func TestDepositRequiresAllowance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.token.Mint(ctx, alice, 1_000))
	require.NoError(t, f.token.Approve(ctx, alice, custody, 100))

	err := f.ledger.Deposit(ctx, alice, 101)
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	bal, _ := f.ledger.Balance(ctx, alice)
	assert.Zero(t, bal)
	assert.Empty(t, f.rec.Facts())

	alw, err := f.ledger.Allowance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), alw)
}

func TestDepositRejectsZeroAndOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	assert.ErrorIs(t, f.ledger.Deposit(ctx, alice, 0), ErrInvalidAmount)

	require.NoError(t, f.store.Update(ctx, alice, func(tx Tx) error {
		tx.Account().Balance = ^uint64(0) - 1
		return nil
	}))
	f.fund(t, alice, 2)
	assert.ErrorIs(t, f.ledger.Deposit(ctx, alice, 2), ErrOverflow)

	// nada foi puxado do token
	walletBal, _ := f.token.BalanceOf(ctx, alice)
	assert.Equal(t, uint64(2), walletBal)
}

func TestWithdrawPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, alice, 300)
	require.NoError(t, f.ledger.Deposit(ctx, alice, 300))

	assert.ErrorIs(t, f.ledger.Withdraw(ctx, alice, 0), ErrInvalidAmount)
	assert.ErrorIs(t, f.ledger.Withdraw(ctx, alice, 301), ErrInsufficientBalance)

	require.NoError(t, f.ledger.Update(ctx, alice, func(tx Tx) error {
		acc := tx.Account()
		acc.PendingBet = &Bet{Owner: alice, Stake: 60, Status: BetPending}
		return acc.Reserve(60)
	}))
	assert.ErrorIs(t, f.ledger.Withdraw(ctx, alice, 10), ErrAlreadyPending)
}

func TestApplySettlementIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, alice, 1_000)
	require.NoError(t, f.ledger.Deposit(ctx, alice, 1_000))

	res, err := f.ledger.ApplySettlement(ctx, alice, true, 200, "40231:0x01")
	require.NoError(t, err)
	assert.Equal(t, Settlement{Won: true, Applied: 200, NewBalance: 1_200}, res)

	_, err = f.ledger.ApplySettlement(ctx, alice, true, 200, "40231:0x01")
	assert.ErrorIs(t, err, ErrDuplicateSettlement)

	bal, _ := f.ledger.Balance(ctx, alice)
	assert.Equal(t, uint64(1_200), bal)

	// mesma chave de request vinda de outra chain é outra liquidação
	res, err = f.ledger.ApplySettlement(ctx, alice, false, 200, "40245:0x01")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), res.NewBalance)
}

func TestLossIsClampedToAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, bob, 50)
	require.NoError(t, f.ledger.Deposit(ctx, bob, 50))

	res, err := f.ledger.ApplySettlement(ctx, bob, false, 80, "40231:0xff")
	require.NoError(t, err)
	assert.Equal(t, Settlement{Won: false, Applied: 50, Shortfall: 30, NewBalance: 0}, res)
}

func TestSettleFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Update(ctx, alice, func(tx Tx) error {
		tx.Account().Balance = ^uint64(0)
		return nil
	}))

	_, err := f.ledger.ApplySettlement(ctx, alice, true, 1, "k")
	assert.ErrorIs(t, err, ErrOverflow)

	// a chave não ficou registrada: uma nova tentativa não é tratada como replay
	require.NoError(t, f.store.Update(ctx, alice, func(tx Tx) error {
		tx.Account().Balance = 10
		return nil
	}))
	_, err = f.ledger.ApplySettlement(ctx, alice, true, 1, "k")
	assert.NoError(t, err)
}

func TestConcurrentDepositsSerialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, alice, 1_000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.ledger.Deposit(ctx, alice, 10))
		}()
	}
	wg.Wait()

	bal, _ := f.ledger.Balance(ctx, alice)
	assert.Equal(t, uint64(1_000), bal)
	total, err := f.ledger.TotalBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), total)
	assert.Len(t, f.store.AllEntries(), 100)
}

func TestStakeFloor(t *testing.T) {
	assert.Equal(t, uint64(200), Stake(1_000, 20))
	assert.Equal(t, uint64(0), Stake(19, 5))
	assert.Equal(t, uint64(1), Stake(20, 5))
	assert.Equal(t, uint64(4611686018427387903), Stake(^uint64(0), 25))
}

func TestSettleJournalsWithKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.store.Update(ctx, bob, func(tx Tx) error {
		tx.Account().Balance = 100
		_, err := Settle(tx, false, 30, "local:0xaa", at)
		return err
	}))

	entries := f.store.AllEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{User: bob, Op: OpLoss, Amount: 30, Ref: "local:0xaa", CreatedAt: at}, entries[0])
}

// flakyStore falha o Journal de uma operação, derrubando a transação inteira.
type flakyStore struct {
	*MemoryStore
	failOp Op
}

type flakyTx struct {
	Tx
	failOp Op
}

func (t flakyTx) Journal(e Entry) error {
	if e.Op == t.failOp {
		return errors.New("commit failed")
	}
	return t.Tx.Journal(e)
}

func (s *flakyStore) Update(ctx context.Context, user common.Address, fn func(tx Tx) error) error {
	return s.MemoryStore.Update(ctx, user, func(tx Tx) error {
		return fn(flakyTx{Tx: tx, failOp: s.failOp})
	})
}

// flakyToken permite falhar ou interceptar o pagamento.
type flakyToken struct {
	*token.Memory
	failTransfer   bool
	beforeTransfer func()
}

func (t *flakyToken) Transfer(ctx context.Context, from, to common.Address, amount uint64) error {
	if t.beforeTransfer != nil {
		t.beforeTransfer()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.failTransfer {
		return errors.New("rpc unavailable")
	}
	return t.Memory.Transfer(ctx, from, to, amount)
}

func newFlakyLedger(t *testing.T, store Store, tok Token, rec *events.Recorder) *Ledger {
	t.Helper()
	return New(zap.NewNop(), store, tok, custody, rec, 40245)
}

func TestWithdrawCommitFailureDoesNotPay(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	tok := token.NewMemory()
	l := newFlakyLedger(t, store, tok, &events.Recorder{})

	for _, u := range []common.Address{alice, bob} {
		require.NoError(t, tok.Mint(ctx, u, 500))
		require.NoError(t, tok.Approve(ctx, u, custody, 500))
		require.NoError(t, l.Deposit(ctx, u, 500))
	}

	store.failOp = OpWithdraw
	assert.Error(t, l.Withdraw(ctx, alice, 500))

	bal, _ := l.Balance(ctx, alice)
	assert.Equal(t, uint64(500), bal)
	wallet, _ := tok.BalanceOf(ctx, alice)
	assert.Zero(t, wallet)
	custodyBal, _ := tok.BalanceOf(ctx, custody)
	assert.Equal(t, uint64(1_000), custodyBal)

	store.failOp = ""
	require.NoError(t, l.Withdraw(ctx, alice, 500))
	assert.ErrorIs(t, l.Withdraw(ctx, alice, 500), ErrInsufficientBalance)

	wallet, _ = tok.BalanceOf(ctx, alice)
	assert.Equal(t, uint64(500), wallet)
	custodyBal, _ = tok.BalanceOf(ctx, custody)
	assert.Equal(t, uint64(500), custodyBal)
	total, err := l.TotalBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, custodyBal, total)
}

func TestWithdrawPayoutFailureIsReverted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tok := &flakyToken{Memory: token.NewMemory()}
	rec := &events.Recorder{}
	l := newFlakyLedger(t, store, tok, rec)

	require.NoError(t, tok.Mint(ctx, alice, 300))
	require.NoError(t, tok.Approve(ctx, alice, custody, 300))
	require.NoError(t, l.Deposit(ctx, alice, 300))

	tok.failTransfer = true
	assert.Error(t, l.Withdraw(ctx, alice, 200))

	bal, _ := l.Balance(ctx, alice)
	assert.Equal(t, uint64(300), bal)
	wallet, _ := tok.BalanceOf(ctx, alice)
	assert.Zero(t, wallet)

	entries, err := l.Entries(ctx, alice)
	require.NoError(t, err)
	ops := make([]Op, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []Op{OpDeposit, OpWithdraw, OpWithdrawReverted}, ops)
	assert.Equal(t, []string{cevents.NameDeposited}, rec.Names())
}

func TestWithdrawPaysOutEvenIfCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tok := &flakyToken{Memory: token.NewMemory()}
	l := newFlakyLedger(t, NewMemoryStore(), tok, &events.Recorder{})

	require.NoError(t, tok.Mint(ctx, alice, 100))
	require.NoError(t, tok.Approve(ctx, alice, custody, 100))
	require.NoError(t, l.Deposit(ctx, alice, 100))

	// o chamador desiste depois do débito confirmado
	tok.beforeTransfer = cancel
	require.NoError(t, l.Withdraw(ctx, alice, 100))

	bg := context.Background()
	bal, _ := l.Balance(bg, alice)
	assert.Zero(t, bal)
	wallet, _ := tok.BalanceOf(bg, alice)
	assert.Equal(t, uint64(100), wallet)
}

func TestDepositCreditFailureRefunds(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failOp: OpDeposit}
	tok := token.NewMemory()
	rec := &events.Recorder{}
	l := newFlakyLedger(t, store, tok, rec)

	require.NoError(t, tok.Mint(ctx, alice, 500))
	require.NoError(t, tok.Approve(ctx, alice, custody, 500))

	assert.Error(t, l.Deposit(ctx, alice, 500))

	bal, _ := l.Balance(ctx, alice)
	assert.Zero(t, bal)
	wallet, _ := tok.BalanceOf(ctx, alice)
	assert.Equal(t, uint64(500), wallet)
	custodyBal, _ := tok.BalanceOf(ctx, custody)
	assert.Zero(t, custodyBal)
	assert.Empty(t, rec.Facts())
}
