package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// Publisher recebe os fatos emitidos pelo core.
// Publicação acontece depois do commit da operação; falhas não desfazem a operação.
type Publisher interface {
	Publish(ctx context.Context, f cevents.Fact) error
}

// PublisherFunc adapta uma função para Publisher.
type PublisherFunc func(ctx context.Context, f cevents.Fact) error

func (fn PublisherFunc) Publish(ctx context.Context, f cevents.Fact) error { return fn(ctx, f) }

// Multi repassa o fato para todos os publishers, acumulando os erros.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, f cevents.Fact) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher apenas registra o fato no log (modo local, sem Kafka).
type LogPublisher struct{ Log *zap.Logger }

func (p LogPublisher) Publish(_ context.Context, f cevents.Fact) error {
	p.Log.Info("fact", zap.String("type", f.Name()), zap.String("user", f.Subject()), zap.Any("data", f))
	return nil
}

// Recorder guarda os fatos em memória, na ordem de emissão.
type Recorder struct {
	mu    sync.Mutex
	facts []cevents.Fact
}

func (r *Recorder) Publish(_ context.Context, f cevents.Fact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = append(r.facts, f)
	return nil
}

// Facts devolve uma cópia dos fatos registrados.
func (r *Recorder) Facts() []cevents.Fact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cevents.Fact, len(r.facts))
	copy(out, r.facts)
	return out
}

// Names devolve apenas os tipos dos fatos, útil para checar ordem.
func (r *Recorder) Names() []string {
	facts := r.Facts()
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		out = append(out, f.Name())
	}
	return out
}

// Emit publica e só registra falha no log; usado pelos componentes do core.
func Emit(ctx context.Context, log *zap.Logger, p Publisher, f cevents.Fact) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, f); err != nil {
		log.Warn("publish fact failed", zap.String("type", f.Name()), zap.Error(err))
	}
}
