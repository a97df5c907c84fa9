package dto

type BalanceResponse struct {
	User      string `json:"user"`
	Balance   uint64 `json:"balance"`
	Reserved  uint64 `json:"reserved"`
	Available uint64 `json:"available"`
	Display   string `json:"display"` // saldo em decimal, ex: "12.5"
}

// WalletResponse é o saldo do usuário no token, fora do ledger.
type WalletResponse struct {
	User    string `json:"user"`
	Balance uint64 `json:"balance"`
	Display string `json:"display"`
}

type BetStatusResponse struct {
	User            string `json:"user"`
	HasPendingBet   bool   `json:"hasPendingBet"`
	RequestID       string `json:"requestId"`
	LeveragePercent uint64 `json:"leveragePercent"`
}

type AllowanceResponse struct {
	User      string `json:"user"`
	Spender   string `json:"spender"`
	Allowance uint64 `json:"allowance"`
}

type EntryResponse struct {
	Op        string `json:"op"`
	Amount    uint64 `json:"amount"`
	Ref       string `json:"ref,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type EntriesResponse struct {
	User    string          `json:"user"`
	Entries []EntryResponse `json:"entries"`
}

type BetPlacedResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

type TrustedRemoteResponse struct {
	ChainID       uint32 `json:"chainId"`
	RemoteAddress string `json:"remoteAddress"`
}

type ExpireResponse struct {
	Expired int `json:"expired"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
