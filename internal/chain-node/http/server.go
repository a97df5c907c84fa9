package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/riskbridge/internal/chain-node/dto"
	"github.com/radieske/riskbridge/internal/engine"
	"github.com/radieske/riskbridge/internal/entropy"
	"github.com/radieske/riskbridge/internal/ledger"
	"github.com/radieske/riskbridge/internal/relay"
	"github.com/radieske/riskbridge/internal/remote"
	"github.com/radieske/riskbridge/internal/shared/auth"
	"github.com/radieske/riskbridge/internal/token"
)

// Ledger define as operações de saldo usadas pelos handlers
type Ledger interface {
	Deposit(ctx context.Context, user common.Address, amount uint64) error
	Withdraw(ctx context.Context, user common.Address, amount uint64) error
	Account(ctx context.Context, user common.Address) (ledger.Account, error)
	Allowance(ctx context.Context, user common.Address) (uint64, error)
	Entries(ctx context.Context, user common.Address) ([]ledger.Entry, error)
	Custody() common.Address
}

type Bets interface {
	PlaceBet(ctx context.Context, user common.Address, leveragePercent uint64, feePaid *big.Int) (common.Hash, error)
	BetStatus(ctx context.Context, user common.Address) (engine.Status, error)
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

type CrossChain interface {
	PlaceCrossChainBet(ctx context.Context, user common.Address, multiplier uint64, seed common.Hash, targetChain uint32, feePaid *big.Int) (common.Hash, error)
}

type Remotes interface {
	SetTrustedRemote(ctx context.Context, chainID uint32, remote common.Hash) error
	Lookup(chainID uint32) (common.Hash, bool)
}

// Faucet é o token simulado; só exposto fora de produção
type Faucet interface {
	Mint(ctx context.Context, to common.Address, amount uint64) error
	Approve(ctx context.Context, owner, spender common.Address, amount uint64) error
	BalanceOf(ctx context.Context, owner common.Address) (uint64, error)
}

// Server expõe a interface do core para a UI (excluída) e para operadores
type Server struct {
	Log        *zap.Logger
	Ledger     Ledger
	Bets       Bets
	CrossChain CrossChain
	Remotes    Remotes
	Faucet     Faucet // opcional
	JWTSecret  string
	PendingTTL time.Duration
	WS         http.HandlerFunc // opcional
}

// Router retorna o roteador HTTP com as rotas públicas, autenticadas e administrativas
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// leituras públicas
	r.Get("/v1/users/{address}/balance", s.getBalance)
	r.Get("/v1/users/{address}/bet", s.getBetStatus)
	r.Get("/v1/users/{address}/allowance", s.getAllowance)
	r.Get("/v1/users/{address}/entries", s.getEntries)
	if s.Faucet != nil {
		r.Get("/v1/users/{address}/wallet", s.getWallet)
	}
	if s.WS != nil {
		r.Get("/ws", s.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.JWTSecret))
		r.Post("/v1/deposit", s.deposit)
		r.Post("/v1/withdraw", s.withdraw)
		r.Post("/v1/bets", s.placeBet)
		r.Post("/v1/bets/crosschain", s.placeCrossChainBet)

		if s.Faucet != nil {
			r.Post("/v1/token/approve", s.approve)
			r.Post("/v1/token/mint", s.mint)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Put("/v1/admin/trusted-remotes/{chainId}", s.setTrustedRemote)
			r.Get("/v1/admin/trusted-remotes/{chainId}", s.getTrustedRemote)
			r.Post("/v1/admin/bets/expire", s.expire)
		})
	})
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// statusFor traduz os erros do core em status HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, entropy.ErrInsufficientFee):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrAlreadyPending):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientAllowance),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, engine.ErrInvalidLeverage),
		errors.Is(err, engine.ErrNoBalance),
		errors.Is(err, engine.ErrSameChain),
		errors.Is(err, relay.ErrUnknownDestination),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, remote.ErrInvalidRemote):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrUntrustedRemote):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrNoSettler), errors.Is(err, relay.ErrNoTransport):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error(op+" failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func addressParam(r *http.Request) (common.Address, bool) {
	a := chi.URLParam(r, "address")
	if !common.IsHexAddress(a) {
		return common.Address{}, false
	}
	return common.HexToAddress(a), true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	var req dto.AmountRequest
	if !decode(w, r, &req) {
		return 0, false
	}
	v, err := req.Value()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return 0, false
	}
	return v, true
}

func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	a, ok := auth.Caller(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return a, ok
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	acc, err := s.Ledger.Account(r.Context(), user)
	if err != nil {
		s.fail(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(acc))
}

func balanceResponse(acc ledger.Account) dto.BalanceResponse {
	return dto.BalanceResponse{
		User:      acc.User.Hex(),
		Balance:   acc.Balance,
		Reserved:  acc.Reserved,
		Available: acc.Available(),
		Display:   token.FormatUnits(acc.Balance),
	}
}

func (s *Server) getBetStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	st, err := s.Bets.BetStatus(r.Context(), user)
	if err != nil {
		s.fail(w, "bet status", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BetStatusResponse{
		User:            user.Hex(),
		HasPendingBet:   st.HasPendingBet,
		RequestID:       st.RequestID.Hex(),
		LeveragePercent: st.LeveragePercent,
	})
}

func (s *Server) getAllowance(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	v, err := s.Ledger.Allowance(r.Context(), user)
	if err != nil {
		s.fail(w, "allowance", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AllowanceResponse{User: user.Hex(), Spender: s.Ledger.Custody().Hex(), Allowance: v})
}

// getEntries devolve o journal do usuário (depósitos, saques, reservas, liquidações)
func (s *Server) getEntries(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	entries, err := s.Ledger.Entries(r.Context(), user)
	if err != nil {
		s.fail(w, "entries", err)
		return
	}
	resp := dto.EntriesResponse{User: user.Hex(), Entries: make([]dto.EntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, dto.EntryResponse{
			Op:        string(e.Op),
			Amount:    e.Amount,
			Ref:       e.Ref,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if err := s.Ledger.Deposit(r.Context(), user, amount); err != nil {
		s.fail(w, "deposit", err)
		return
	}
	s.writeBalance(w, r, user)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if err := s.Ledger.Withdraw(r.Context(), user, amount); err != nil {
		s.fail(w, "withdraw", err)
		return
	}
	s.writeBalance(w, r, user)
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, user common.Address) {
	acc, err := s.Ledger.Account(r.Context(), user)
	if err != nil {
		s.fail(w, "balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(acc))
}

func parseFee(w http.ResponseWriter, raw string) (*big.Int, bool) {
	if raw == "" {
		writeError(w, http.StatusPaymentRequired, entropy.ErrInsufficientFee.Error())
		return nil, false
	}
	fee, err := entropy.ParseFee(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid fee")
		return nil, false
	}
	return fee, true
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.PlaceBetRequest
	if !decode(w, r, &req) {
		return
	}
	fee, ok := parseFee(w, req.Fee)
	if !ok {
		return
	}
	id, err := s.Bets.PlaceBet(r.Context(), user, req.LeveragePercent, fee)
	if err != nil {
		s.fail(w, "place bet", err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.BetPlacedResponse{RequestID: id.Hex(), Status: "PENDING"})
}

func (s *Server) placeCrossChainBet(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.CrossChainBetRequest
	if !decode(w, r, &req) {
		return
	}
	seed, err := hexutil.Decode(req.RandomSeed)
	if err != nil || len(seed) != common.HashLength {
		writeError(w, http.StatusBadRequest, "randomSeed must be bytes32 hex")
		return
	}
	fee, ok := parseFee(w, req.Fee)
	if !ok {
		return
	}
	id, err := s.CrossChain.PlaceCrossChainBet(r.Context(), user, req.LeverageMultiplier, common.BytesToHash(seed), req.TargetChainID, fee)
	if err != nil {
		s.fail(w, "place cross-chain bet", err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.BetPlacedResponse{RequestID: id.Hex(), Status: "PENDING"})
}

func chainParam(r *http.Request) (uint32, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, "chainId"), 10, 32)
	return uint32(v), err == nil
}

func (s *Server) setTrustedRemote(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chainId")
		return
	}
	var req dto.TrustedRemoteRequest
	if !decode(w, r, &req) {
		return
	}
	rem, err := remote.ParseRemote(req.RemoteAddress)
	if err != nil {
		s.fail(w, "set trusted remote", err)
		return
	}
	if err := s.Remotes.SetTrustedRemote(r.Context(), chainID, rem); err != nil {
		s.fail(w, "set trusted remote", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.TrustedRemoteResponse{ChainID: chainID, RemoteAddress: rem.Hex()})
}

func (s *Server) getTrustedRemote(w http.ResponseWriter, r *http.Request) {
	chainID, ok := chainParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid chainId")
		return
	}
	rem, found := s.Remotes.Lookup(chainID)
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, dto.TrustedRemoteResponse{ChainID: chainID, RemoteAddress: rem.Hex()})
}

func (s *Server) expire(w http.ResponseWriter, r *http.Request) {
	var req dto.ExpireRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	olderThan := s.PendingTTL
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid olderThan")
			return
		}
		olderThan = d
	}
	if olderThan <= 0 {
		writeError(w, http.StatusBadRequest, "pending expiry disabled")
		return
	}
	n, err := s.Bets.ExpirePending(r.Context(), olderThan)
	if err != nil {
		s.fail(w, "expire", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ExpireResponse{Expired: n})
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if err := s.Faucet.Approve(r.Context(), user, s.Ledger.Custody(), amount); err != nil {
		s.fail(w, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AllowanceResponse{User: user.Hex(), Spender: s.Ledger.Custody().Hex(), Allowance: amount})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if amount == 0 {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := s.Faucet.Mint(r.Context(), user, amount); err != nil {
		s.fail(w, "mint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	user, ok := addressParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	bal, err := s.Faucet.BalanceOf(r.Context(), user)
	if err != nil {
		s.fail(w, "wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{User: user.Hex(), Balance: bal, Display: token.FormatUnits(bal)})
}
