package token

import (
	"context"
	"math/bits"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type Memory struct {
	mu         sync.Mutex
	balances   map[common.Address]uint64
	allowances map[[2]common.Address]uint64
}

func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[common.Address]uint64),
		allowances: make(map[[2]common.Address]uint64),
	}
}

func (m *Memory) Mint(_ context.Context, to common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, carry := bits.Add64(m.balances[to], amount, 0)
	if carry != 0 {
		return ErrInvalidAmount
	}
	m.balances[to] = sum
	return nil
}

// Approve sobrescreve a allowance, como no ERC-20.
func (m *Memory) Approve(_ context.Context, owner, spender common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey(owner, spender)] = amount
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, owner common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner], nil
}

func (m *Memory) Allowance(_ context.Context, owner, spender common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[allowanceKey(owner, spender)], nil
}

func (m *Memory) TransferFrom(_ context.Context, spender, from, to common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := allowanceKey(from, spender)
	if m.allowances[k] < amount {
		return ErrInsufficientAllowance
	}
	if err := m.move(from, to, amount); err != nil {
		return err
	}
	m.allowances[k] -= amount
	return nil
}

func (m *Memory) Transfer(_ context.Context, from, to common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(from, to, amount)
}

func (m *Memory) move(from, to common.Address, amount uint64) error {
	if m.balances[from] < amount {
		return ErrInsufficientFunds
	}
	if from == to {
		return nil
	}
	sum, carry := bits.Add64(m.balances[to], amount, 0)
	if carry != 0 {
		return ErrInvalidAmount
	}
	m.balances[from] -= amount
	m.balances[to] = sum
	return nil
}
