// Package relay liga as chains: manda liquidações cross-chain para fora e aplica as que chegam.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/events"
	"github.com/radieske/riskbridge/internal/ledger"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

var (
	ErrUntrustedRemote    = errors.New("untrusted remote")
	ErrWrongDestination   = errors.New("message not addressed to this chain")
	ErrUnknownDestination = errors.New("destination chain has no trusted remote")
	ErrNoTransport        = errors.New("relay transport not configured")
)

// Transport entrega a mensagem à rede de relay. Fire-and-forget.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Trust é a visão do registro de remotes usada aqui.
type Trust interface {
	IsTrusted(chainID uint32, claimed common.Hash) bool
	Lookup(chainID uint32) (common.Hash, bool)
}

// BetPlacer é o motor de apostas.
type BetPlacer interface {
	PlaceCrossChainBet(ctx context.Context, user common.Address, multiplier uint64, seed common.Hash, targetChain uint32, feePaid *big.Int) (common.Hash, error)
}

// Settlements é o ledger da chain de destino.
type Settlements interface {
	ApplySettlement(ctx context.Context, user common.Address, won bool, stake uint64, key string) (ledger.Settlement, error)
}

type Adapter struct {
	log       *zap.Logger
	chainID   uint32
	bets      BetPlacer
	ledger    Settlements
	trust     Trust
	transport Transport
	pub       events.Publisher

	// OnResult recebe "sent", "send_failed", "applied", "duplicate", "rejected" (métricas).
	OnResult func(result string)
}

func NewAdapter(log *zap.Logger, chainID uint32, bets BetPlacer, l Settlements, trust Trust, transport Transport, pub events.Publisher) *Adapter {
	return &Adapter{log: log, chainID: chainID, bets: bets, ledger: l, trust: trust, transport: transport, pub: pub}
}

func (a *Adapter) observe(result string) {
	if a.OnResult != nil {
		a.OnResult(result)
	}
}

// PlaceCrossChainBet só aceita destinos com remote configurado.
func (a *Adapter) PlaceCrossChainBet(ctx context.Context, user common.Address, multiplier uint64, seed common.Hash, targetChain uint32, feePaid *big.Int) (common.Hash, error) {
	if a.transport == nil {
		return common.Hash{}, ErrNoTransport
	}
	if _, ok := a.trust.Lookup(targetChain); !ok {
		return common.Hash{}, ErrUnknownDestination
	}
	return a.bets.PlaceCrossChainBet(ctx, user, multiplier, seed, targetChain, feePaid)
}

// Settle monta a mensagem de liquidação e a entrega ao transporte.
func (a *Adapter) Settle(ctx context.Context, bet ledger.Bet, won bool) error {
	if a.transport == nil {
		return ErrNoTransport
	}
	msg := Message{
		SourceChain:      a.chainID,
		DestinationChain: bet.TargetChain,
		RequestID:        bet.RequestID,
		Payload:          Payload{User: bet.Owner, Won: won, Stake: bet.Stake},
	}
	if err := a.transport.Send(ctx, msg); err != nil {
		a.observe("send_failed")
		return fmt.Errorf("relay send: %w", err)
	}
	a.observe("sent")
	a.log.Info("settlement sent",
		zap.Uint32("destination", msg.DestinationChain),
		zap.String("requestId", msg.RequestID.Hex()),
		zap.Bool("won", won),
	)
	return nil
}

// OnMessageReceived aplica uma liquidação vinda de outra chain.
// sourceChain e sender são atestados pelo relay, nunca lidos do conteúdo da mensagem.
func (a *Adapter) OnMessageReceived(ctx context.Context, sourceChain uint32, sender common.Hash, msg Message) error {
	if !a.trust.IsTrusted(sourceChain, sender) || msg.SourceChain != sourceChain {
		a.observe("rejected")
		a.log.Warn("untrusted relay message",
			zap.Uint32("sourceChain", sourceChain),
			zap.String("sender", sender.Hex()),
			zap.String("requestId", msg.RequestID.Hex()),
		)
		return ErrUntrustedRemote
	}
	if msg.DestinationChain != a.chainID {
		a.observe("rejected")
		return ErrWrongDestination
	}
	if err := msg.Validate(); err != nil {
		a.observe("rejected")
		return err
	}

	user := msg.Payload.User
	res, err := a.ledger.ApplySettlement(ctx, user, msg.Payload.Won, msg.Payload.Stake, msg.SettlementKey())
	if errors.Is(err, ledger.ErrDuplicateSettlement) {
		a.observe("duplicate")
		a.log.Debug("duplicate settlement ignored", zap.String("key", msg.SettlementKey()))
		return nil
	}
	if err != nil {
		return err
	}

	if res.Shortfall > 0 {
		// perda maior que o saldo livre no destino: o excedente não é cobrado
		a.observe("clamped")
		a.log.Warn("loss clamped to available balance",
			zap.String("user", user.Hex()),
			zap.Uint32("sourceChain", sourceChain),
			zap.String("requestId", msg.RequestID.Hex()),
			zap.Uint64("stake", msg.Payload.Stake),
			zap.Uint64("shortfall", res.Shortfall),
		)
	} else {
		a.observe("applied")
	}
	a.log.Info("settlement applied",
		zap.String("user", user.Hex()),
		zap.Uint32("sourceChain", sourceChain),
		zap.Bool("won", res.Won),
		zap.Uint64("amount", res.Applied),
		zap.Uint64("newBalance", res.NewBalance),
	)
	events.Emit(ctx, a.log, a.pub, cevents.BetResolved{
		User:        user.Hex(),
		Won:         res.Won,
		Amount:      res.Applied,
		NewBalance:  res.NewBalance,
		RequestID:   msg.RequestID.Hex(),
		SourceChain: sourceChain,
	})
	return nil
}
