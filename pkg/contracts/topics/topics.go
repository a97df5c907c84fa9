package topics

import "strconv"

const (
	// Fatos do ledger (Deposited, Withdrawn, BetPlaced, BetResolved, ...)
	LedgerEvents          = "ledger_events"
	LedgerEventsBroadcast = "ledger_events_broadcast"

	// Entropia (provedor externo de aleatoriedade)
	EntropyRequests  = "entropy_requests"
	EntropyFulfilled = "entropy_fulfilled"

	// Relay cross-chain
	RelayOutbound      = "relay_outbound"
	relayInboundPrefix = "relay_inbound_"

	// DLQs
	RelayOutboundDLQ = "relay_outbound_dlq"
	RelayInboundDLQ  = "relay_inbound_dlq"
)

// RelayInbound devolve o tópico de entrada do relay para a chain de destino.
func RelayInbound(chainID uint32) string {
	return relayInboundPrefix + strconv.FormatUint(uint64(chainID), 10)
}
