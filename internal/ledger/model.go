package ledger

import (
	"math/bits"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BetKind diferencia apostas liquidadas na própria chain das que liquidam em outra.
type BetKind uint8

const (
	BetLocal BetKind = iota
	BetCrossChain
)

func (k BetKind) String() string {
	if k == BetCrossChain {
		return "crosschain"
	}
	return "local"
}

type BetStatus uint8

const (
	BetPending BetStatus = iota
	BetResolved
)

// Bet é a aposta pendente de um usuário. Stake é congelado no momento da aposta.
type Bet struct {
	Owner           common.Address
	Kind            BetKind
	LeveragePercent uint64
	Stake           uint64
	RequestID       common.Hash
	Status          BetStatus
	OriginChain     uint32
	TargetChain     uint32
	PlacedAt        time.Time
}

// Account é o estado de um usuário no ledger.
// Reserved é a parte do saldo comprometida com a aposta pendente (Reserved <= Balance).
type Account struct {
	User       common.Address
	Balance    uint64
	Reserved   uint64
	PendingBet *Bet
}

// Available é o saldo livre para saque.
func (a *Account) Available() uint64 { return a.Balance - a.Reserved }

// HasPendingBet indica se há aposta aguardando aleatoriedade.
func (a *Account) HasPendingBet() bool {
	return a.PendingBet != nil && a.PendingBet.Status == BetPending
}

func (a *Account) clone() Account {
	c := *a
	if a.PendingBet != nil {
		b := *a.PendingBet
		c.PendingBet = &b
	}
	return c
}

// Credit soma ao saldo, rejeitando overflow.
func (a *Account) Credit(amount uint64) error {
	sum, carry := bits.Add64(a.Balance, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	a.Balance = sum
	return nil
}

// Debit retira do saldo livre (não toca no reservado).
func (a *Account) Debit(amount uint64) error {
	if amount > a.Available() {
		return ErrInsufficientBalance
	}
	a.Balance -= amount
	return nil
}

// Reserve congela parte do saldo livre.
func (a *Account) Reserve(amount uint64) error {
	if amount > a.Available() {
		return ErrInsufficientBalance
	}
	a.Reserved += amount
	return nil
}

// Release devolve ao saldo livre o que estava congelado (limitado ao reservado).
func (a *Account) Release(amount uint64) {
	if amount > a.Reserved {
		amount = a.Reserved
	}
	a.Reserved -= amount
}

// Op é o tipo de lançamento no journal do ledger.
type Op string

const (
	OpDeposit  Op = "DEPOSIT"
	OpWithdraw Op = "WITHDRAW"
	OpReserve  Op = "RESERVE"
	OpRelease  Op = "RELEASE"
	OpWin      Op = "WIN"
	OpLoss     Op = "LOSS"
	OpExpire   Op = "EXPIRE"

	// OpWithdrawReverted devolve ao saldo um saque cujo pagamento falhou.
	OpWithdrawReverted Op = "WITHDRAW_REVERTED"
)

// Entry é um lançamento do journal (auditoria; o saldo vive na conta).
type Entry struct {
	User      common.Address
	Op        Op
	Amount    uint64
	Ref       string
	CreatedAt time.Time
}

// Stake calcula floor(balance * leverage / 100) sem risco de overflow no produto.
func Stake(balance, leveragePercent uint64) uint64 {
	if leveragePercent >= 100 {
		// fora de qualquer domínio válido; limita ao saldo
		return balance
	}
	hi, lo := bits.Mul64(balance, leveragePercent)
	q, _ := bits.Div64(hi, lo, 100)
	return q
}
