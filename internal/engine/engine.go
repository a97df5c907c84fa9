// Package engine é o motor de apostas: Idle -> Pending -> Idle por usuário.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/entropy"
	"github.com/radieske/riskbridge/internal/events"
	"github.com/radieske/riskbridge/internal/ledger"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

var (
	ErrInvalidLeverage = errors.New("invalid leverage")
	ErrNoBalance       = errors.New("no balance")
	ErrSameChain       = errors.New("target chain must differ from origin chain")
	ErrNoSettler       = errors.New("cross-chain settlement not configured")
)

// Randomness é o que o motor usa do cliente de entropia.
type Randomness interface {
	Fee() *big.Int
	Register(user common.Address, userSeed common.Hash, feePaid *big.Int) (entropy.Request, error)
	Dispatch(ctx context.Context, req entropy.Request) error
	Restore(requestID common.Hash, user common.Address)
	Abandon(requestID common.Hash)
}

// Settler entrega a liquidação de uma aposta cross-chain à chain de destino.
type Settler interface {
	Settle(ctx context.Context, bet ledger.Bet, won bool) error
}

type Engine struct {
	log     *zap.Logger
	ledger  *ledger.Ledger
	rng     Randomness
	pub     events.Publisher
	settler Settler
	now     func() time.Time
}

func New(log *zap.Logger, l *ledger.Ledger, rng Randomness, pub events.Publisher) *Engine {
	return &Engine{log: log, ledger: l, rng: rng, pub: pub, now: time.Now}
}

// SetSettler liga o adaptador de relay (que por sua vez depende do motor).
func (e *Engine) SetSettler(s Settler) { e.settler = s }

// LocalSettlementKey é a chave de idempotência de uma aposta liquidada na própria chain.
func LocalSettlementKey(requestID common.Hash) string { return "local:" + requestID.Hex() }

func (e *Engine) checkFee(feePaid *big.Int) error {
	if feePaid == nil || feePaid.Cmp(e.rng.Fee()) < 0 {
		return entropy.ErrInsufficientFee
	}
	return nil
}

// PlaceBet abre uma aposta local. O seed do usuário é gerado aqui.
func (e *Engine) PlaceBet(ctx context.Context, user common.Address, leveragePercent uint64, feePaid *big.Int) (common.Hash, error) {
	if err := e.checkFee(feePaid); err != nil {
		return common.Hash{}, err
	}
	if !ValidLeverage(ledger.BetLocal, leveragePercent) {
		return common.Hash{}, ErrInvalidLeverage
	}

	bet := ledger.Bet{
		Owner:           user,
		Kind:            ledger.BetLocal,
		LeveragePercent: leveragePercent,
		OriginChain:     e.ledger.ChainID(),
		TargetChain:     e.ledger.ChainID(),
	}
	id, err := e.place(ctx, bet, entropy.RandomHash(), feePaid)
	if err != nil {
		return common.Hash{}, err
	}

	events.Emit(ctx, e.log, e.pub, cevents.BetPlaced{User: user.Hex(), LeveragePercent: leveragePercent, RequestID: id.Hex()})
	return id, nil
}

// PlaceCrossChainBet abre uma aposta cuja liquidação acontece em targetChain.
func (e *Engine) PlaceCrossChainBet(ctx context.Context, user common.Address, multiplier uint64, seed common.Hash, targetChain uint32, feePaid *big.Int) (common.Hash, error) {
	if err := e.checkFee(feePaid); err != nil {
		return common.Hash{}, err
	}
	if !ValidLeverage(ledger.BetCrossChain, multiplier) {
		return common.Hash{}, ErrInvalidLeverage
	}
	if targetChain == e.ledger.ChainID() {
		return common.Hash{}, ErrSameChain
	}
	if e.settler == nil {
		return common.Hash{}, ErrNoSettler
	}

	bet := ledger.Bet{
		Owner:           user,
		Kind:            ledger.BetCrossChain,
		LeveragePercent: multiplier,
		OriginChain:     e.ledger.ChainID(),
		TargetChain:     targetChain,
	}
	return e.place(ctx, bet, seed, feePaid)
}

// place reserva o stake numa transação da conta e só depois despacha o pedido
// de aleatoriedade, para a trava da conta não esperar o provedor.
func (e *Engine) place(ctx context.Context, bet ledger.Bet, seed common.Hash, feePaid *big.Int) (common.Hash, error) {
	req, err := e.rng.Register(bet.Owner, seed, feePaid)
	if err != nil {
		return common.Hash{}, err
	}

	err = e.ledger.Update(ctx, bet.Owner, func(tx ledger.Tx) error {
		acc := tx.Account()
		if acc.Balance == 0 {
			return ErrNoBalance
		}
		if acc.HasPendingBet() {
			return ledger.ErrAlreadyPending
		}
		stake := ledger.Stake(acc.Balance, bet.LeveragePercent)
		if stake == 0 {
			return ledger.ErrInsufficientBalance
		}
		if err := acc.Reserve(stake); err != nil {
			return err
		}

		bet.Stake = stake
		bet.RequestID = req.ID
		bet.Status = ledger.BetPending
		bet.PlacedAt = e.now()
		acc.PendingBet = &bet
		return tx.Journal(ledger.Entry{User: bet.Owner, Op: ledger.OpReserve, Amount: stake, Ref: req.ID.Hex(), CreatedAt: bet.PlacedAt})
	})
	if err != nil {
		// a conta não mudou; um callback tardio vira no-op
		e.rng.Abandon(req.ID)
		return common.Hash{}, err
	}

	if err := e.rng.Dispatch(ctx, req); err != nil {
		e.unplace(ctx, bet, err)
		return common.Hash{}, err
	}

	e.log.Info("bet placed",
		zap.String("user", bet.Owner.Hex()),
		zap.String("kind", bet.Kind.String()),
		zap.Uint64("leverage", bet.LeveragePercent),
		zap.Uint64("stake", bet.Stake),
		zap.String("requestId", req.ID.Hex()),
	)
	return req.ID, nil
}

// unplace desfaz a reserva de uma aposta cujo pedido não chegou ao provedor.
func (e *Engine) unplace(ctx context.Context, bet ledger.Bet, cause error) {
	e.log.Warn("randomness dispatch failed, releasing stake",
		zap.String("user", bet.Owner.Hex()),
		zap.String("requestId", bet.RequestID.Hex()),
		zap.Error(cause),
	)
	err := e.ledger.Update(context.WithoutCancel(ctx), bet.Owner, func(tx ledger.Tx) error {
		acc := tx.Account()
		if !acc.HasPendingBet() || acc.PendingBet.RequestID != bet.RequestID {
			return nil
		}
		acc.Release(bet.Stake)
		acc.PendingBet = nil
		return tx.Journal(ledger.Entry{User: bet.Owner, Op: ledger.OpRelease, Amount: bet.Stake, Ref: bet.RequestID.Hex(), CreatedAt: e.now()})
	})
	if err != nil {
		// a aposta segue pendente até expirar (ExpirePending)
		e.log.Error("release after dispatch failure", zap.String("user", bet.Owner.Hex()), zap.Error(err))
	}
}

// OnRandomnessFulfilled resolve a aposta correspondente ao pedido.
// Pedido sem aposta pendente (já resolvida, expirada ou desconhecida) é no-op.
func (e *Engine) OnRandomnessFulfilled(ctx context.Context, req entropy.Request, randomValue common.Hash) error {
	var (
		bet   ledger.Bet
		found bool
		won   bool
		res   ledger.Settlement
	)
	now := e.now()

	err := e.ledger.Update(ctx, req.User, func(tx ledger.Tx) error {
		acc := tx.Account()
		if !acc.HasPendingBet() || acc.PendingBet.RequestID != req.ID {
			return nil
		}
		found = true
		bet = *acc.PendingBet
		won = Outcome(bet.Kind, bet.LeveragePercent, randomValue)

		acc.Release(bet.Stake)
		acc.PendingBet = nil
		if err := tx.Journal(ledger.Entry{User: bet.Owner, Op: ledger.OpRelease, Amount: bet.Stake, Ref: req.ID.Hex(), CreatedAt: now}); err != nil {
			return err
		}
		if bet.Kind != ledger.BetLocal {
			// cross-chain: o saldo desta chain não muda; quem liquida é o destino
			return nil
		}

		var err error
		res, err = ledger.Settle(tx, won, bet.Stake, LocalSettlementKey(req.ID), now)
		return err
	})
	if err != nil {
		return fmt.Errorf("resolve bet %s: %w", req.ID.Hex(), err)
	}
	if !found {
		e.log.Debug("fulfillment without pending bet", zap.String("requestId", req.ID.Hex()))
		return nil
	}

	e.log.Info("bet resolved",
		zap.String("user", bet.Owner.Hex()),
		zap.String("kind", bet.Kind.String()),
		zap.Bool("won", won),
		zap.Uint64("stake", bet.Stake),
		zap.String("requestId", req.ID.Hex()),
	)

	if bet.Kind == ledger.BetLocal {
		events.Emit(ctx, e.log, e.pub, cevents.BetResolved{
			User:            bet.Owner.Hex(),
			Won:             won,
			Amount:          res.Applied,
			NewBalance:      res.NewBalance,
			LeveragePercent: bet.LeveragePercent,
			RequestID:       req.ID.Hex(),
		})
		return nil
	}

	if err := e.settler.Settle(ctx, bet, won); err != nil {
		// envio é fire-and-forget; o core não enxerga falhas de entrega
		e.log.Error("cross-chain settlement not sent", zap.String("requestId", req.ID.Hex()), zap.Error(err))
	}
	events.Emit(ctx, e.log, e.pub, cevents.CrossChainBetResolved{
		User:        bet.Owner.Hex(),
		Won:         won,
		Stake:       bet.Stake,
		TargetChain: bet.TargetChain,
		RequestID:   req.ID.Hex(),
	})
	return nil
}

// Status é o retorno de getUserBetStatus.
type Status struct {
	HasPendingBet   bool
	RequestID       common.Hash
	LeveragePercent uint64
}

func (e *Engine) BetStatus(ctx context.Context, user common.Address) (Status, error) {
	acc, err := e.ledger.Account(ctx, user)
	if err != nil {
		return Status{}, err
	}
	if !acc.HasPendingBet() {
		return Status{}, nil
	}
	return Status{
		HasPendingBet:   true,
		RequestID:       acc.PendingBet.RequestID,
		LeveragePercent: acc.PendingBet.LeveragePercent,
	}, nil
}

// ExpirePending libera as apostas pendentes há pelo menos olderThan.
// O pedido de aleatoriedade é abandonado; um callback tardio vira no-op.
func (e *Engine) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	bets, err := e.ledger.PendingBets(ctx)
	if err != nil {
		return 0, err
	}
	now := e.now()
	expired := 0
	for _, b := range bets {
		if now.Sub(b.PlacedAt) < olderThan {
			continue
		}
		ok, err := e.expire(ctx, b, now)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (e *Engine) expire(ctx context.Context, b ledger.Bet, now time.Time) (bool, error) {
	done := false
	err := e.ledger.Update(ctx, b.Owner, func(tx ledger.Tx) error {
		acc := tx.Account()
		// pode ter sido resolvida entre a listagem e o lock
		if !acc.HasPendingBet() || acc.PendingBet.RequestID != b.RequestID {
			return nil
		}
		acc.Release(acc.PendingBet.Stake)
		acc.PendingBet = nil
		done = true
		return tx.Journal(ledger.Entry{User: b.Owner, Op: ledger.OpExpire, Amount: b.Stake, Ref: b.RequestID.Hex(), CreatedAt: now})
	})
	if err != nil || !done {
		return false, err
	}

	e.rng.Abandon(b.RequestID)
	e.log.Warn("pending bet expired",
		zap.String("user", b.Owner.Hex()),
		zap.String("requestId", b.RequestID.Hex()),
		zap.Duration("age", now.Sub(b.PlacedAt)),
	)
	events.Emit(ctx, e.log, e.pub, cevents.BetExpired{User: b.Owner.Hex(), Stake: b.Stake, RequestID: b.RequestID.Hex()})
	return true, nil
}

// Restore recoloca no cliente de entropia os pedidos das apostas ainda pendentes.
// Chamado no start do chain-node, antes de consumir callbacks.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	bets, err := e.ledger.PendingBets(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range bets {
		e.rng.Restore(b.RequestID, b.Owner)
	}
	return len(bets), nil
}

// RunExpiry roda ExpirePending a cada intervalo até ctx ser cancelado.
func (e *Engine) RunExpiry(ctx context.Context, every, ttl time.Duration) {
	if every <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := e.ExpirePending(ctx, ttl); err != nil {
				e.log.Warn("expiry sweep failed", zap.Error(err))
			} else if n > 0 {
				e.log.Info("expiry sweep", zap.Int("expired", n))
			}
		}
	}
}
