package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Tx é a visão transacional de uma conta dentro de Store.Update.
// Tudo o que for feito através dela é confirmado junto, ou descartado se fn falhar.
type Tx interface {
	Account() *Account
	// SettlementApplied consulta o conjunto de liquidações já aplicadas (idempotência).
	SettlementApplied(key string) (bool, error)
	RecordSettlement(key string) error
	Journal(e Entry) error
}

// Store é a persistência do ledger.
type Store interface {
	// Update executa fn com a conta do usuário travada; operações concorrentes
	// para o mesmo usuário ficam serializadas. Contas inexistentes nascem zeradas.
	Update(ctx context.Context, user common.Address, fn func(tx Tx) error) error
	Get(ctx context.Context, user common.Address) (Account, error)
	// PendingBets lista as apostas pendentes (reconstrução de índices e expiração).
	PendingBets(ctx context.Context) ([]Bet, error)
	// Accounts lista todas as contas (auditoria de conservação).
	Accounts(ctx context.Context) ([]Account, error)
	// Entries devolve o journal do usuário em ordem de gravação.
	Entries(ctx context.Context, user common.Address) ([]Entry, error)
}
