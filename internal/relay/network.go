package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Receiver é o lado de entrada de uma chain (Adapter.OnMessageReceived).
type Receiver interface {
	OnMessageReceived(ctx context.Context, sourceChain uint32, sender common.Hash, msg Message) error
}

// Network é um relay em memória: entrega síncrona entre chains do mesmo processo.
// Duplicate reentrega cada mensagem, simulando at-least-once.
type Network struct {
	mu        sync.RWMutex
	receivers map[uint32]Receiver
	senders   map[uint32]common.Hash
	Duplicate bool
}

func NewNetwork() *Network {
	return &Network{receivers: make(map[uint32]Receiver), senders: make(map[uint32]common.Hash)}
}

// Attach registra a chain com o endereço que o relay atesta como remetente dela.
func (n *Network) Attach(chainID uint32, sender common.Hash, r Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receivers[chainID] = r
	n.senders[chainID] = sender
}

// Transport devolve o lado de saída da chain indicada.
func (n *Network) Transport(chainID uint32) Transport {
	return networkTransport{n: n, source: chainID}
}

type networkTransport struct {
	n      *Network
	source uint32
}

func (t networkTransport) Send(ctx context.Context, msg Message) error {
	t.n.mu.RLock()
	dst, ok := t.n.receivers[msg.DestinationChain]
	sender := t.n.senders[t.source]
	dup := t.n.Duplicate
	t.n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no route to chain %d", msg.DestinationChain)
	}

	deliveries := 1
	if dup {
		deliveries = 2
	}
	for i := 0; i < deliveries; i++ {
		if err := dst.OnMessageReceived(ctx, t.source, sender, msg); err != nil {
			return err
		}
	}
	return nil
}
