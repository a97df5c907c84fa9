package events

import "encoding/json"

// RelayPacket é a unidade transportada pelo relay entre chains.
// Sender é preenchido pelo relay (endereço bytes32 do contrato de origem),
// nunca pela chain de origem.
type RelayPacket struct {
	ID               string          `json:"id"`
	SourceChain      uint32          `json:"sourceChain"`
	DestinationChain uint32          `json:"destinationChain"`
	Sender           string          `json:"sender,omitempty"`
	Message          json.RawMessage `json:"message"`
	Attempt          int             `json:"attempt,omitempty"`
	TsUnixMs         int64           `json:"ts_unix_ms"`
}
