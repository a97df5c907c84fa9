package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore é a implementação em memória do Store.
// Cada conta tem seu próprio mutex; o mapa de contas tem um mutex separado.
type MemoryStore struct {
	mapMu       sync.Mutex
	locks       map[common.Address]*sync.Mutex
	accounts    map[common.Address]Account
	settlements map[string]struct{}
	entries     []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:       make(map[common.Address]*sync.Mutex),
		accounts:    make(map[common.Address]Account),
		settlements: make(map[string]struct{}),
	}
}

func (m *MemoryStore) accountLock(user common.Address) *sync.Mutex {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	if _, ok := m.locks[user]; !ok {
		m.locks[user] = &sync.Mutex{}
	}
	return m.locks[user]
}

type memoryTx struct {
	store       *MemoryStore
	acc         Account
	settlements []string
	entries     []Entry
}

func (t *memoryTx) Account() *Account { return &t.acc }

func (t *memoryTx) SettlementApplied(key string) (bool, error) {
	for _, k := range t.settlements {
		if k == key {
			return true, nil
		}
	}
	t.store.mapMu.Lock()
	defer t.store.mapMu.Unlock()
	_, ok := t.store.settlements[key]
	return ok, nil
}

func (t *memoryTx) RecordSettlement(key string) error {
	t.settlements = append(t.settlements, key)
	return nil
}

func (t *memoryTx) Journal(e Entry) error {
	t.entries = append(t.entries, e)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, user common.Address, fn func(tx Tx) error) error {
	lock := m.accountLock(user)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mapMu.Lock()
	acc, ok := m.accounts[user]
	m.mapMu.Unlock()
	if !ok {
		acc = Account{User: user}
	}

	tx := &memoryTx{store: m, acc: acc.clone()}
	if err := fn(tx); err != nil {
		return err
	}

	// commit
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	m.accounts[user] = tx.acc
	for _, k := range tx.settlements {
		m.settlements[k] = struct{}{}
	}
	m.entries = append(m.entries, tx.entries...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, user common.Address) (Account, error) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	acc, ok := m.accounts[user]
	if !ok {
		return Account{User: user}, nil
	}
	return acc.clone(), nil
}

func (m *MemoryStore) PendingBets(_ context.Context) ([]Bet, error) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	var out []Bet
	for _, acc := range m.accounts {
		if acc.HasPendingBet() {
			out = append(out, *acc.PendingBet)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

func (m *MemoryStore) Accounts(_ context.Context) ([]Account, error) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	out := make([]Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, acc.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.Hex() < out[j].User.Hex() })
	return out, nil
}

// AllEntries devolve uma cópia do journal inteiro.
func (m *MemoryStore) AllEntries() []Entry {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MemoryStore) Entries(_ context.Context, user common.Address) ([]Entry, error) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.User == user {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
