package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/events"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// Ledger é a fonte da verdade dos saldos de uma chain.
// Toda mutação passa por Store.Update, uma transação por conta.
type Ledger struct {
	log     *zap.Logger
	store   Store
	token   Token
	custody common.Address
	pub     events.Publisher
	chainID uint32
	now     func() time.Time
}

func New(log *zap.Logger, store Store, token Token, custody common.Address, pub events.Publisher, chainID uint32) *Ledger {
	return &Ledger{
		log:     log,
		store:   store,
		token:   token,
		custody: custody,
		pub:     pub,
		chainID: chainID,
		now:     time.Now,
	}
}

func (l *Ledger) ChainID() uint32 { return l.chainID }

// Custody é o endereço do contrato do ledger (spender das allowances).
func (l *Ledger) Custody() common.Address { return l.custody }

// Deposit puxa os fundos antes de creditar. Se o crédito não puder ser
// confirmado, os fundos voltam para a carteira do usuário.
func (l *Ledger) Deposit(ctx context.Context, user common.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	allowance, err := l.token.Allowance(ctx, user, l.custody)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance < amount {
		return ErrInsufficientAllowance
	}
	acc, err := l.store.Get(ctx, user)
	if err != nil {
		return err
	}
	if _, carry := bits.Add64(acc.Balance, amount, 0); carry != 0 {
		return ErrOverflow
	}

	// a partir daqui o token se move: o cancelamento do chamador não interrompe mais nada
	bg := context.WithoutCancel(ctx)
	if err := l.token.TransferFrom(bg, l.custody, user, l.custody, amount); err != nil {
		return fmt.Errorf("pull funds: %w", err)
	}

	err = l.store.Update(bg, user, func(tx Tx) error {
		if err := tx.Account().Credit(amount); err != nil {
			return err
		}
		return tx.Journal(Entry{User: user, Op: OpDeposit, Amount: amount, CreatedAt: l.now()})
	})
	if err != nil {
		l.log.Error("deposit credit failed, refunding", zap.String("user", user.Hex()), zap.Uint64("amount", amount), zap.Error(err))
		if rerr := l.token.Transfer(bg, l.custody, user, amount); rerr != nil {
			// fundos ficam em custódia sem crédito; exige reconciliação manual
			l.log.Error("deposit refund failed", zap.String("user", user.Hex()), zap.Uint64("amount", amount), zap.Error(rerr))
		}
		return fmt.Errorf("credit deposit: %w", err)
	}

	l.log.Info("deposit", zap.String("user", user.Hex()), zap.Uint64("amount", amount))
	events.Emit(ctx, l.log, l.pub, cevents.Deposited{User: user.Hex(), Amount: amount})
	return nil
}

// Withdraw confirma o débito antes de pagar. Se o pagamento falhar, o débito
// é estornado numa segunda transação.
func (l *Ledger) Withdraw(ctx context.Context, user common.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	err := l.store.Update(ctx, user, func(tx Tx) error {
		acc := tx.Account()
		if acc.HasPendingBet() {
			return ErrAlreadyPending
		}
		if err := acc.Debit(amount); err != nil {
			return err
		}
		return tx.Journal(Entry{User: user, Op: OpWithdraw, Amount: amount, CreatedAt: l.now()})
	})
	if err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	if err := l.token.Transfer(bg, l.custody, user, amount); err != nil {
		l.revertWithdraw(bg, user, amount, err)
		return fmt.Errorf("pay out: %w", err)
	}

	l.log.Info("withdraw", zap.String("user", user.Hex()), zap.Uint64("amount", amount))
	events.Emit(ctx, l.log, l.pub, cevents.Withdrawn{User: user.Hex(), Amount: amount})
	return nil
}

func (l *Ledger) revertWithdraw(ctx context.Context, user common.Address, amount uint64, cause error) {
	l.log.Warn("payout failed, reverting withdraw", zap.String("user", user.Hex()), zap.Uint64("amount", amount), zap.Error(cause))
	err := l.store.Update(ctx, user, func(tx Tx) error {
		if err := tx.Account().Credit(amount); err != nil {
			return err
		}
		return tx.Journal(Entry{User: user, Op: OpWithdrawReverted, Amount: amount, CreatedAt: l.now()})
	})
	if err != nil {
		// o saldo fica a menor e os fundos em custódia; exige reconciliação manual
		l.log.Error("withdraw revert failed", zap.String("user", user.Hex()), zap.Uint64("amount", amount), zap.Error(err))
	}
}

func (l *Ledger) Balance(ctx context.Context, user common.Address) (uint64, error) {
	acc, err := l.store.Get(ctx, user)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (l *Ledger) Account(ctx context.Context, user common.Address) (Account, error) {
	return l.store.Get(ctx, user)
}

// Allowance é quanto o usuário autorizou o ledger a puxar do token.
func (l *Ledger) Allowance(ctx context.Context, user common.Address) (uint64, error) {
	return l.token.Allowance(ctx, user, l.custody)
}

// Update expõe a transação por conta para o motor de apostas.
func (l *Ledger) Update(ctx context.Context, user common.Address, fn func(tx Tx) error) error {
	return l.store.Update(ctx, user, fn)
}

func (l *Ledger) PendingBets(ctx context.Context) ([]Bet, error) {
	return l.store.PendingBets(ctx)
}

func (l *Ledger) Accounts(ctx context.Context) ([]Account, error) {
	return l.store.Accounts(ctx)
}

func (l *Ledger) Entries(ctx context.Context, user common.Address) ([]Entry, error) {
	return l.store.Entries(ctx, user)
}

// TotalBalance soma os saldos de todas as contas (auditoria de conservação).
func (l *Ledger) TotalBalance(ctx context.Context) (uint64, error) {
	accs, err := l.store.Accounts(ctx)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, a := range accs {
		next := total + a.Balance
		if next < total {
			return 0, ErrOverflow
		}
		total = next
	}
	return total, nil
}

// Settlement é o efeito de uma liquidação aplicada.
// Applied pode ser menor que o stake numa perda maior que o saldo livre;
// a diferença fica em Shortfall e não é cobrada em lugar nenhum.
type Settlement struct {
	Won        bool
	Applied    uint64
	Shortfall  uint64
	NewBalance uint64
}

// ApplySettlement aplica o resultado de uma aposta uma única vez por chave.
// Um replay devolve ErrDuplicateSettlement sem tocar no saldo.
func (l *Ledger) ApplySettlement(ctx context.Context, user common.Address, won bool, stake uint64, key string) (Settlement, error) {
	var res Settlement
	err := l.store.Update(ctx, user, func(tx Tx) error {
		var err error
		res, err = Settle(tx, won, stake, key, l.now())
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateSettlement) {
			l.log.Error("apply settlement failed", zap.String("user", user.Hex()), zap.String("key", key), zap.Error(err))
		}
		return Settlement{}, err
	}
	return res, nil
}

// Settle aplica a liquidação dentro de uma transação já aberta.
// Ganho credita o stake; perda debita o stake limitado ao saldo livre.
func Settle(tx Tx, won bool, stake uint64, key string, at time.Time) (Settlement, error) {
	applied, err := tx.SettlementApplied(key)
	if err != nil {
		return Settlement{}, fmt.Errorf("check settlement: %w", err)
	}
	if applied {
		return Settlement{}, ErrDuplicateSettlement
	}

	acc := tx.Account()
	amount := stake
	op := OpWin
	if won {
		if err := acc.Credit(amount); err != nil {
			return Settlement{}, err
		}
	} else {
		op = OpLoss
		if amount > acc.Available() {
			amount = acc.Available()
		}
		if err := acc.Debit(amount); err != nil {
			return Settlement{}, err
		}
	}

	if err := tx.RecordSettlement(key); err != nil {
		return Settlement{}, fmt.Errorf("record settlement: %w", err)
	}
	if err := tx.Journal(Entry{User: acc.User, Op: op, Amount: amount, Ref: key, CreatedAt: at}); err != nil {
		return Settlement{}, err
	}
	return Settlement{Won: won, Applied: amount, Shortfall: stake - amount, NewBalance: acc.Balance}, nil
}
