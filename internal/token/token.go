// Package token simula o ERC-20 custodiado pelo ledger (USDC, 6 casas).
// É um colaborador externo: o core só usa Allowance, TransferFrom e Transfer.
package token

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Decimals do USDC.
const Decimals = 6

var (
	ErrInsufficientFunds     = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: invalid amount")
)

// ParseUnits converte "12.5" em unidades mínimas (12500000).
func ParseUnits(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	d = d.Shift(Decimals)
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	if !d.BigInt().IsUint64() {
		return 0, ErrInvalidAmount
	}
	return d.BigInt().Uint64(), nil
}

// FormatUnits é o inverso de ParseUnits.
func FormatUnits(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -Decimals).String()
}

func allowanceKey(owner, spender common.Address) [2]common.Address {
	return [2]common.Address{owner, spender}
}
