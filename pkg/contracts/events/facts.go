package events

// Fact é um fato emitido pelo core (equivalente aos eventos do contrato).
// Name identifica o tipo no envelope; Subject é o usuário afetado (chave de partição).
type Fact interface {
	Name() string
	Subject() string
}

const (
	NameDeposited             = "Deposited"
	NameWithdrawn             = "Withdrawn"
	NameBetPlaced             = "BetPlaced"
	NameBetResolved           = "BetResolved"
	NameCrossChainBetResolved = "CrossChainBetResolved"
	NameBetExpired            = "BetExpired"
	NameTrustedRemoteSet      = "TrustedRemoteSet"
)

type Deposited struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
}

type Withdrawn struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"`
}

type BetPlaced struct {
	User            string `json:"user"`
	LeveragePercent uint64 `json:"leveragePercent"`
	RequestID       string `json:"requestId"`
}

// BetResolved é emitido na chain onde o resultado entra no ledger.
// LeveragePercent só vem preenchido para apostas locais.
// SourceChain só vem preenchido quando a liquidação chegou pelo relay.
type BetResolved struct {
	User            string `json:"user"`
	Won             bool   `json:"won"`
	Amount          uint64 `json:"amount"`
	NewBalance      uint64 `json:"newBalance"`
	LeveragePercent uint64 `json:"leveragePercent,omitempty"`
	RequestID       string `json:"requestId"`
	SourceChain     uint32 `json:"sourceChain,omitempty"`
}

// CrossChainBetResolved é emitido na chain de origem quando a aleatoriedade
// resolve uma aposta cross-chain e a liquidação é entregue ao relay.
type CrossChainBetResolved struct {
	User        string `json:"user"`
	Won         bool   `json:"won"`
	Stake       uint64 `json:"stake"`
	TargetChain uint32 `json:"targetChain"`
	RequestID   string `json:"requestId"`
}

// BetExpired é emitido quando um admin libera uma aposta pendente sem callback.
type BetExpired struct {
	User      string `json:"user"`
	Stake     uint64 `json:"stake"`
	RequestID string `json:"requestId"`
}

type TrustedRemoteSet struct {
	RemoteChain   uint32 `json:"remoteChain"`
	RemoteAddress string `json:"remoteAddress"`
}

func (Deposited) Name() string             { return NameDeposited }
func (Withdrawn) Name() string             { return NameWithdrawn }
func (BetPlaced) Name() string             { return NameBetPlaced }
func (BetResolved) Name() string           { return NameBetResolved }
func (CrossChainBetResolved) Name() string { return NameCrossChainBetResolved }
func (BetExpired) Name() string            { return NameBetExpired }
func (TrustedRemoteSet) Name() string      { return NameTrustedRemoteSet }

func (e Deposited) Subject() string             { return e.User }
func (e Withdrawn) Subject() string             { return e.User }
func (e BetPlaced) Subject() string             { return e.User }
func (e BetResolved) Subject() string           { return e.User }
func (e CrossChainBetResolved) Subject() string { return e.User }
func (e BetExpired) Subject() string            { return e.User }
func (TrustedRemoteSet) Subject() string        { return "" }
