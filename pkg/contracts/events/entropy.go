package events

// EntropyRequested é publicado em "entropy_requests" para o provedor de aleatoriedade.
type EntropyRequested struct {
	RequestID string `json:"requestId"`
	ChainID   uint32 `json:"chainId"`
	User      string `json:"user"`
	UserSeed  string `json:"userSeed"`
	Sequence  uint64 `json:"sequence"`
	FeePaid   string `json:"feePaid"` // wei, decimal
	TsUnixMs  int64  `json:"ts_unix_ms"`
}

// EntropyFulfilled é o callback do provedor, consumido pelo chain-node da chain de origem.
type EntropyFulfilled struct {
	RequestID   string `json:"requestId"`
	ChainID     uint32 `json:"chainId"`
	RandomValue string `json:"randomValue"` // bytes32 hex
	Provider    string `json:"provider,omitempty"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
