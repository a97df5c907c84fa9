// Package remote guarda quais contratos remotos podem entregar liquidações a esta chain.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/events"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

var ErrInvalidRemote = errors.New("invalid remote address")

// Store persiste o mapeamento chain remota -> endereço bytes32.
type Store interface {
	Save(ctx context.Context, chainID uint32, remote common.Hash) error
	LoadAll(ctx context.Context) (map[uint32]common.Hash, error)
}

type Registry struct {
	log   *zap.Logger
	store Store
	pub   events.Publisher

	mu      sync.RWMutex
	remotes map[uint32]common.Hash
}

// New cria o registro. store pode ser nil (somente memória).
func New(log *zap.Logger, store Store, pub events.Publisher) *Registry {
	return &Registry{log: log, store: store, pub: pub, remotes: make(map[uint32]common.Hash)}
}

// Load carrega o que estiver persistido; chamado no start.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	all, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load trusted remotes: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, addr := range all {
		r.remotes[id] = addr
	}
	return nil
}

// SetTrustedRemote é administrativo e sobrescreve a entrada anterior.
func (r *Registry) SetTrustedRemote(ctx context.Context, chainID uint32, remote common.Hash) error {
	if remote == (common.Hash{}) {
		return ErrInvalidRemote
	}
	if r.store != nil {
		if err := r.store.Save(ctx, chainID, remote); err != nil {
			return fmt.Errorf("save trusted remote: %w", err)
		}
	}

	r.mu.Lock()
	r.remotes[chainID] = remote
	r.mu.Unlock()

	r.log.Info("trusted remote set", zap.Uint32("remoteChain", chainID), zap.String("remote", remote.Hex()))
	events.Emit(ctx, r.log, r.pub, cevents.TrustedRemoteSet{RemoteChain: chainID, RemoteAddress: remote.Hex()})
	return nil
}

// IsTrusted exige correspondência exata do par (chain, remetente).
func (r *Registry) IsTrusted(chainID uint32, claimed common.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want, ok := r.remotes[chainID]
	return ok && claimed != (common.Hash{}) && want == claimed
}

func (r *Registry) Lookup(chainID uint32) (common.Hash, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.remotes[chainID]
	return v, ok
}

// AddressToBytes32 alinha o endereço à direita em 32 bytes (forma canônica do remote).
func AddressToBytes32(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// ParseRemote aceita um endereço de 20 bytes ou a forma bytes32.
func ParseRemote(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidRemote, err)
	}
	switch len(b) {
	case common.AddressLength:
		return AddressToBytes32(common.BytesToAddress(b)), nil
	case common.HashLength:
		return common.BytesToHash(b), nil
	}
	return common.Hash{}, fmt.Errorf("%w: %d bytes", ErrInvalidRemote, len(b))
}
