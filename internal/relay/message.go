package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidMessage = errors.New("invalid relay message")

// Payload é o resultado da aposta a ser aplicado na chain de destino.
type Payload struct {
	User  common.Address `json:"user"`
	Won   bool           `json:"won"`
	Stake uint64         `json:"stake"`
}

// Message é a liquidação em trânsito entre chains. RequestID é a chave de idempotência.
type Message struct {
	SourceChain      uint32      `json:"sourceChain"`
	DestinationChain uint32      `json:"destinationChain"`
	RequestID        common.Hash `json:"requestId"`
	Payload          Payload     `json:"payload"`
}

// SettlementKey escopa o requestId pela chain de origem.
func (m Message) SettlementKey() string {
	return strconv.FormatUint(uint64(m.SourceChain), 10) + ":" + m.RequestID.Hex()
}

func (m Message) Validate() error {
	switch {
	case m.RequestID == (common.Hash{}):
		return fmt.Errorf("%w: empty requestId", ErrInvalidMessage)
	case m.Payload.User == (common.Address{}):
		return fmt.Errorf("%w: empty user", ErrInvalidMessage)
	case m.Payload.Stake == 0:
		return fmt.Errorf("%w: zero stake", ErrInvalidMessage)
	case m.SourceChain == m.DestinationChain:
		return fmt.Errorf("%w: source equals destination", ErrInvalidMessage)
	}
	return nil
}

func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
