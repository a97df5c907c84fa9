package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/riskbridge/internal/events"
	cevents "github.com/radieske/riskbridge/pkg/contracts/events"
)

// Metrics agrupa os contadores dos serviços do RiskBridge
type Metrics struct {
	Facts               *prometheus.CounterVec
	Deposits            prometheus.Counter
	BetsPlaced          prometheus.Counter
	BetsResolved        *prometheus.CounterVec
	RelayMessages       *prometheus.CounterVec
	EntropyFulfillments prometheus.Counter
	ConsumerErrors      *prometheus.CounterVec
}

// New cria e registra os contadores no registry informado
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Facts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_facts_total",
			Help: "Fatos emitidos pelo core, por tipo",
		}, []string{"type"}),
		Deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_deposits_total",
			Help: "Depósitos aceitos",
		}),
		BetsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bets_placed_total",
			Help: "Apostas locais abertas",
		}),
		BetsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bets_resolved_total",
			Help: "Apostas resolvidas, por resultado (won|lost|expired)",
		}, []string{"outcome"}),
		RelayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Mensagens de relay, por resultado",
		}, []string{"result"}),
		EntropyFulfillments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entropy_fulfillments_total",
			Help: "Callbacks de aleatoriedade entregues",
		}),
		ConsumerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_errors_total",
			Help: "Erros dos consumidores Kafka por fase",
		}, []string{"consumer", "phase"}),
	}
	reg.MustRegister(m.Facts, m.Deposits, m.BetsPlaced, m.BetsResolved, m.RelayMessages, m.EntropyFulfillments, m.ConsumerErrors)
	return m
}

// FactCounter é um Publisher que só conta os fatos
func (m *Metrics) FactCounter() events.Publisher {
	return events.PublisherFunc(func(_ context.Context, f cevents.Fact) error {
		m.Facts.WithLabelValues(f.Name()).Inc()
		switch ev := f.(type) {
		case cevents.Deposited:
			m.Deposits.Inc()
		case cevents.BetPlaced:
			m.BetsPlaced.Inc()
		case cevents.BetResolved:
			m.BetsResolved.WithLabelValues(outcome(ev.Won)).Inc()
		case cevents.CrossChainBetResolved:
			m.BetsResolved.WithLabelValues(outcome(ev.Won)).Inc()
		case cevents.BetExpired:
			m.BetsResolved.WithLabelValues("expired").Inc()
		}
		return nil
	})
}

func outcome(won bool) string {
	if won {
		return "won"
	}
	return "lost"
}

// ErrorsFor devolve o callback OnError de um consumidor
func (m *Metrics) ErrorsFor(consumer string) func(string) {
	return func(phase string) { m.ConsumerErrors.WithLabelValues(consumer, phase).Inc() }
}
