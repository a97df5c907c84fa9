package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Token é o ativo externo (ERC-20) que o ledger custodia.
// A semântica de transferência fica fora do core; aqui só o contrato mínimo.
type Token interface {
	Allowance(ctx context.Context, owner, spender common.Address) (uint64, error)
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount uint64) error
	Transfer(ctx context.Context, from, to common.Address, amount uint64) error
}
