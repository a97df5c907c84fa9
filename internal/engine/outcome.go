package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/radieske/riskbridge/internal/ledger"
)

const (
	MinLeverage = 5
	MaxLeverage = 25

	bpsDenominator = 10_000
)

// multiplicadores aceitos nas apostas cross-chain e a chance de vitória de cada um
var crossChainWinBps = map[uint64]uint64{
	2:  5500,
	3:  5250,
	5:  5000,
	10: 4500,
}

// ValidLeverage diz se a alavancagem pertence ao domínio do tipo de aposta.
func ValidLeverage(kind ledger.BetKind, leverage uint64) bool {
	if kind == ledger.BetCrossChain {
		_, ok := crossChainWinBps[leverage]
		return ok
	}
	return leverage >= MinLeverage && leverage <= MaxLeverage
}

// WinChanceBps devolve a chance de vitória em pontos-base.
// Local: 55,00% em 5% de alavancagem, caindo 0,50 p.p. por ponto até 45,00% em 25%.
func WinChanceBps(kind ledger.BetKind, leverage uint64) uint64 {
	if kind == ledger.BetCrossChain {
		return crossChainWinBps[leverage]
	}
	if !ValidLeverage(kind, leverage) {
		return 0
	}
	return 5500 - (leverage-MinLeverage)*50
}

// Outcome: won = uint256(random) mod 10000 < WinChanceBps.
func Outcome(kind ledger.BetKind, leverage uint64, random common.Hash) bool {
	r := new(big.Int).SetBytes(random[:])
	r.Mod(r, big.NewInt(bpsDenominator))
	return r.Uint64() < WinChanceBps(kind, leverage)
}
