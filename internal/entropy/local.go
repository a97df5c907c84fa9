package entropy

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RandomHash gera 32 bytes aleatórios.
func RandomHash() common.Hash {
	var h common.Hash
	if _, err := rand.Read(h[:]); err != nil {
		panic(err)
	}
	return h
}

// LocalProvider atende os pedidos no próprio processo depois de Delay.
// O callback roda em outra goroutine: quem pede ainda pode estar com a conta travada.
type LocalProvider struct {
	Log    *zap.Logger
	Delay  time.Duration
	Random func() common.Hash

	mu     sync.Mutex
	client *Client
}

func NewLocalProvider(log *zap.Logger, delay time.Duration) *LocalProvider {
	return &LocalProvider{Log: log, Delay: delay, Random: RandomHash}
}

// Bind liga o provedor ao cliente que receberá os callbacks.
func (p *LocalProvider) Bind(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = c
}

func (p *LocalProvider) Request(_ context.Context, req Request) error {
	p.mu.Lock()
	c := p.client
	p.mu.Unlock()
	if c == nil {
		return errors.New("local provider not bound")
	}

	time.AfterFunc(p.Delay, func() {
		err := c.Fulfill(context.Background(), req.ID, p.Random())
		if err != nil && !errors.Is(err, ErrUnknownRequest) {
			p.Log.Warn("local fulfillment failed", zap.String("requestId", req.ID.Hex()), zap.Error(err))
		}
	})
	return nil
}

// QueueProvider só guarda os pedidos; o resultado é entregue manualmente via Client.Fulfill.
type QueueProvider struct {
	mu   sync.Mutex
	reqs []Request
	Err  error
}

func (q *QueueProvider) Request(_ context.Context, req Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *QueueProvider) Requests() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Request, len(q.reqs))
	copy(out, q.reqs)
	return out
}
