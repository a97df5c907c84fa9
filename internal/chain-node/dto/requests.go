package dto

import (
	"errors"

	"github.com/radieske/riskbridge/internal/token"
)

// AmountRequest aceita o valor em unidades mínimas (amount) ou em decimal (units).
type AmountRequest struct {
	Amount uint64 `json:"amount,omitempty"` // unidades mínimas do token (USDC: 6 casas)
	Units  string `json:"units,omitempty"`  // ex: "12.5"
}

// Value resolve o valor pedido em unidades mínimas.
func (r AmountRequest) Value() (uint64, error) {
	if r.Units == "" {
		return r.Amount, nil
	}
	if r.Amount != 0 {
		return 0, errors.New("use either amount or units")
	}
	return token.ParseUnits(r.Units)
}

type PlaceBetRequest struct {
	LeveragePercent uint64 `json:"leveragePercent"`
	Fee             string `json:"fee"` // em moeda nativa, ex: "0.001"
}

type CrossChainBetRequest struct {
	LeverageMultiplier uint64 `json:"leverageMultiplier"`
	RandomSeed         string `json:"randomSeed"` // bytes32 hex
	TargetChainID      uint32 `json:"targetChainId"`
	Fee                string `json:"fee"`
}

type TrustedRemoteRequest struct {
	RemoteAddress string `json:"remoteAddress"` // endereço de 20 bytes ou bytes32
}

type ExpireRequest struct {
	OlderThan string `json:"olderThan,omitempty"` // duração Go, ex: "15m"; vazio = BET_PENDING_TTL
}
