// Package entropy é o cliente do provedor externo de aleatoriedade verificável.
// O pedido devolve um requestId na hora; o resultado chega depois, como um evento
// separado entregue a Fulfill.
package entropy

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInsufficientFee = errors.New("insufficient entropy fee")
	// ErrUnknownRequest: callback para id desconhecido ou já atendido. Quem consome trata como no-op.
	ErrUnknownRequest = errors.New("unknown randomness request")
	ErrNoHandler      = errors.New("no fulfillment handler registered")
)

// DefaultFee é 0.001 da moeda nativa.
const DefaultFee = "0.001"

// ParseFee converte unidades nativas ("0.001") em wei.
func ParseFee(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse fee %q: %w", s, err)
	}
	d = d.Shift(18)
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("invalid fee %q", s)
	}
	return d.BigInt(), nil
}

// Request é um pedido de aleatoriedade em aberto.
type Request struct {
	ID       common.Hash
	ChainID  uint32
	User     common.Address
	UserSeed common.Hash
	Sequence uint64
	FeePaid  *big.Int
	At       time.Time
}

// Provider leva o pedido até o provedor externo. Fire-and-forget.
type Provider interface {
	Request(ctx context.Context, req Request) error
}

// Handler recebe o resultado junto com o pedido original (normalmente engine.OnRandomnessFulfilled).
// O pedido já está registrado antes de chegar ao provedor, então o handler sempre sabe de quem é.
type Handler func(ctx context.Context, req Request, randomValue common.Hash) error

type Client struct {
	log      *zap.Logger
	chainID  uint32
	fee      *big.Int
	provider Provider
	now      func() time.Time

	mu      sync.Mutex
	seq     uint64
	pending map[common.Hash]Request
	handler Handler
}

func NewClient(log *zap.Logger, chainID uint32, fee *big.Int, provider Provider) *Client {
	return &Client{
		log:      log,
		chainID:  chainID,
		fee:      new(big.Int).Set(fee),
		provider: provider,
		now:      time.Now,
		pending:  make(map[common.Hash]Request),
	}
}

func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Fee devolve a taxa fixa em wei.
func (c *Client) Fee() *big.Int { return new(big.Int).Set(c.fee) }

// RequestRandomness registra o pedido e o repassa ao provedor.
func (c *Client) RequestRandomness(ctx context.Context, user common.Address, userSeed common.Hash, feePaid *big.Int) (common.Hash, error) {
	req, err := c.Register(user, userSeed, feePaid)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.Dispatch(ctx, req); err != nil {
		return common.Hash{}, err
	}
	return req.ID, nil
}

// Register valida a taxa e coloca o pedido na tabela sem falar com o provedor.
// Quem chama decide quando despachar (Dispatch) ou desistir (Abandon).
func (c *Client) Register(user common.Address, userSeed common.Hash, feePaid *big.Int) (Request, error) {
	if feePaid == nil || feePaid.Cmp(c.fee) < 0 {
		return Request{}, ErrInsufficientFee
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	req := Request{
		ChainID:  c.chainID,
		User:     user,
		UserSeed: userSeed,
		Sequence: c.seq,
		FeePaid:  new(big.Int).Set(feePaid),
		At:       c.now(),
	}
	req.ID = requestID(req)
	c.pending[req.ID] = req
	return req, nil
}

// Dispatch entrega um pedido registrado ao provedor; em falha o pedido é descartado.
func (c *Client) Dispatch(ctx context.Context, req Request) error {
	if err := c.provider.Request(ctx, req); err != nil {
		c.Abandon(req.ID)
		return fmt.Errorf("entropy provider: %w", err)
	}
	c.log.Debug("randomness requested", zap.String("requestId", req.ID.Hex()), zap.Uint64("sequence", req.Sequence))
	return nil
}

// requestID = keccak256(chainId ‖ sequence ‖ user ‖ userSeed ‖ timestamp)
func requestID(r Request) common.Hash {
	var buf [4 + 8 + 8]byte
	binary.BigEndian.PutUint32(buf[0:4], r.ChainID)
	binary.BigEndian.PutUint64(buf[4:12], r.Sequence)
	binary.BigEndian.PutUint64(buf[12:20], uint64(r.At.UnixNano()))
	return crypto.Keccak256Hash(buf[0:12], r.User.Bytes(), r.UserSeed.Bytes(), buf[12:20])
}

// Fulfill entrega o resultado ao handler no máximo uma vez por pedido.
// Se o handler falhar, o pedido volta para a tabela e pode ser reentregue.
func (c *Client) Fulfill(ctx context.Context, requestID, randomValue common.Hash) error {
	c.mu.Lock()
	req, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownRequest
	}
	h := c.handler
	if h == nil {
		c.mu.Unlock()
		return ErrNoHandler
	}
	delete(c.pending, requestID)
	c.mu.Unlock()

	if err := h(ctx, req, randomValue); err != nil {
		c.mu.Lock()
		c.pending[requestID] = req
		c.mu.Unlock()
		return err
	}
	return nil
}

// Restore recoloca um pedido pendente na tabela (reinício do processo).
func (c *Client) Restore(requestID common.Hash, user common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[requestID]; ok {
		return
	}
	c.pending[requestID] = Request{ID: requestID, ChainID: c.chainID, User: user, At: c.now()}
}

// Abandon descarta um pedido; um callback tardio vira ErrUnknownRequest.
func (c *Client) Abandon(requestID common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, requestID)
}

// Outstanding é o número de pedidos aguardando callback.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
