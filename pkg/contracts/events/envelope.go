package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope é o formato publicado no tópico ledger_events e no canal de broadcast.
type Envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	ChainID uint32          `json:"chainId"`
	User    string          `json:"user,omitempty"`
	Ts      time.Time       `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// Wrap serializa o fato dentro de um envelope com id único.
func Wrap(chainID uint32, f Fact) (Envelope, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:      uuid.NewString(),
		Type:    f.Name(),
		ChainID: chainID,
		User:    f.Subject(),
		Ts:      time.Now().UTC(),
		Data:    data,
	}, nil
}
