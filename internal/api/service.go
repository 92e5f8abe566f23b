// Package api provides the HTTP handlers for the options protocol node:
// quoting and writing options, exercise and expiry, pool liquidity, and the
// staking reward pools.
//
// Raw ledger amounts travel as decimal strings (18 decimals); prices as
// shopspring/decimal in quote-currency units — never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hedgex/options-engine/internal/events"
	"github.com/hedgex/options-engine/internal/exposure"
	"github.com/hedgex/options-engine/internal/ledger"
	"github.com/hedgex/options-engine/internal/metrics"
	"github.com/hedgex/options-engine/internal/model"
	"github.com/hedgex/options-engine/internal/options"
	"github.com/hedgex/options-engine/internal/oracle"
	"github.com/hedgex/options-engine/internal/pool"
	"github.com/hedgex/options-engine/internal/staking"
	"github.com/hedgex/options-engine/internal/store"
	"github.com/hedgex/options-engine/internal/symbol"
)

// Deps bundles the protocol components the service exposes.
type Deps struct {
	Engine          *options.Engine
	Pool            *pool.Pool
	StakingProtocol *staking.Distributor // stake HGX, profit in native value
	StakingShares   *staking.Distributor // stake pool shares, profit in HGX
	Native          *ledger.Native
	Token           *ledger.Token
	NFT             *ledger.OptionToken
	Feed            *oracle.FakeProvider
	Store           store.Store
	Limiter         *exposure.Limiter
	Hub             *WSHub
	Admin           string
}

// Service handles protocol operations. Uses a mutex for serialized state
// mutation (single-instance); reads go through the store's cache layer.
type Service struct {
	mu sync.Mutex
	d  Deps
}

// NewService creates the API service over the given components.
func NewService(d Deps) *Service {
	return &Service{d: d}
}

// EventPersister adapts the store into an events.Emitter so every journal
// event is durably recorded.
type EventPersister struct {
	st store.Store
}

// NewEventPersister wraps a store for use in the engine's emitter chain.
func NewEventPersister(st store.Store) *EventPersister {
	return &EventPersister{st: st}
}

func (p *EventPersister) Emit(e events.Event) {
	if err := p.st.InsertEvent(context.Background(), eventToModel(e)); err != nil {
		slog.Error("event persist failed", "type", e.Type, "err", err)
	}
}

// Routes mounts all protocol endpoints on the router.
func (s *Service) Routes(r chi.Router) {
	r.Get("/quote", s.Quote)

	r.Route("/options", func(r chi.Router) {
		r.Get("/", s.ListOptions)
		r.Post("/", s.CreateOption)
		r.Post("/unlock", s.UnlockAll)
		r.Get("/{optionID}", s.GetOption)
		r.Get("/{optionID}/events", s.GetOptionEvents)
		r.Post("/{optionID}/exercise", s.Exercise)
		r.Post("/{optionID}/unlock", s.Unlock)
		r.Post("/{optionID}/approve", s.ApproveOption)
		r.Post("/{optionID}/transfer", s.TransferOption)
	})

	r.Get("/events", s.ListEvents)

	r.Route("/pool", func(r chi.Router) {
		r.Get("/", s.PoolStatus)
		r.Post("/provide", s.Provide)
		r.Post("/withdraw", s.Withdraw)
		r.Post("/approve", s.ApproveShares)
	})

	r.Route("/staking/{pool}", func(r chi.Router) {
		r.Get("/", s.StakingStatus)
		r.Get("/profit/{account}", s.StakingProfit)
		r.Post("/buy", s.StakingBuy)
		r.Post("/sell", s.StakingSell)
		r.Post("/claim", s.StakingClaim)
		r.Post("/profit", s.StakingSendProfit)
	})

	r.Post("/token/approve", s.ApproveToken)
	r.Get("/accounts/{account}", s.GetAccount)
	r.Post("/accounts/{account}/auto-exercise", s.SetAutoExercise)

	r.Post("/admin/price", s.SetPrice)
	r.Post("/admin/params", s.SetParams)
	r.Post("/admin/faucet", s.Faucet)
}

// --- Request/Response types ---

// CreateOptionRequest is the JSON body for POST /options.
type CreateOptionRequest struct {
	Account       string          `json:"account"`
	Recipient     string          `json:"recipient,omitempty"` // defaults to account
	Type          string          `json:"type"`                // "call" or "put"
	Strike        decimal.Decimal `json:"strike"`              // quote-currency units
	Amount        string          `json:"amount"`              // wei
	PeriodSeconds int64           `json:"period_seconds"`
	Value         string          `json:"value,omitempty"` // wei; defaults to the quoted premium
}

// CreateOptionResponse returns the new position and its premium breakdown.
type CreateOptionResponse struct {
	Option model.Option `json:"option"`
	Quote  model.Quote  `json:"quote"`
}

// ExerciseResponse carries the realized payout.
type ExerciseResponse struct {
	OptionID   uint64          `json:"option_id"`
	Profit     string          `json:"profit"`
	ProfitUnit decimal.Decimal `json:"profit_unit"`
}

// ProvideRequest is the JSON body for POST /pool/provide.
type ProvideRequest struct {
	Account   string `json:"account"`
	Value     string `json:"value"`
	MinShares string `json:"min_shares,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
}

// WithdrawRequest is the JSON body for POST /pool/withdraw.
type WithdrawRequest struct {
	Account   string `json:"account"`
	Value     string `json:"value"`
	MaxShares string `json:"max_shares,omitempty"`
}

// StakingRequest covers buy, sell, claim and profit operations.
type StakingRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount,omitempty"` // lots for buy/sell, wei for profit
}

// ApproveRequest grants a spender an allowance on a fungible ledger.
type ApproveRequest struct {
	Account string `json:"account"`
	Spender string `json:"spender"`
	Value   string `json:"value"`
}

// --- Handlers ---

// Quote handles GET /api/v1/quote?instrument=HGX-20260925-380-C&amount=<wei>.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	inst, err := symbol.Parse(r.URL.Query().Get("instrument"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := parseWei(r.URL.Query().Get("amount"))
	if err != nil || amount.IsZero() {
		writeError(w, "amount must be a positive wei value", http.StatusBadRequest)
		return
	}
	period := inst.PeriodUntil(time.Now().UTC())
	if period <= 0 {
		writeError(w, "instrument already expired", http.StatusBadRequest)
		return
	}

	typ := options.TypeCall
	if inst.Type == symbol.TypePut {
		typ = options.TypePut
	}
	strike, err := priceFromDecimal(inst.Strike)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	fees, err := s.d.Engine.Fees(period, amount, strike, typ)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteToModel(typ, inst.Strike, amount, period, fees))
}

// CreateOption handles POST /api/v1/options.
func (s *Service) CreateOption(w http.ResponseWriter, r *http.Request) {
	var req CreateOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	typ, err := optionTypeFromString(req.Type)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := parseWei(req.Amount)
	if err != nil {
		writeError(w, "invalid amount", http.StatusBadRequest)
		return
	}
	strike, err := priceFromDecimal(req.Strike)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	recipient := req.Recipient
	if recipient == "" {
		recipient = req.Account
	}
	period := time.Duration(req.PeriodSeconds) * time.Second

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write-side risk limits run before any value moves.
	if s.d.Limiter != nil {
		holderLocked := s.activeLockedBy(recipient)
		if err := s.d.Limiter.CheckLimit(amount, holderLocked,
			s.d.Pool.LockedAmount(), s.d.Pool.TotalBalance()); err != nil {
			metrics.ExposureRejections.Inc()
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
	}

	fees, err := s.d.Engine.Fees(period, amount, strike, typ)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	value := fees.Total
	if req.Value != "" {
		value, err = parseWei(req.Value)
		if err != nil {
			writeError(w, "invalid value", http.StatusBadRequest)
			return
		}
	}

	opt, err := s.d.Engine.Create(req.Account, period, amount, strike, typ, recipient, value)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	s.persistOption(r.Context(), opt)
	metrics.OptionsCreated.WithLabelValues(typ.String()).Inc()
	metrics.ActiveOptions.Inc()
	s.updateUtilization()

	slog.Info("option created",
		"id", opt.ID,
		"holder", recipient,
		"type", typ.String(),
		"strike", req.Strike.String(),
		"amount", amount.Dec(),
		"premium", fees.Total.Dec(),
	)

	writeJSON(w, http.StatusCreated, CreateOptionResponse{
		Option: *optionToModel(opt),
		Quote:  quoteToModel(typ, req.Strike, amount, period, fees),
	})
}

// GetOption handles GET /api/v1/options/{optionID}.
func (s *Service) GetOption(w http.ResponseWriter, r *http.Request) {
	id, err := parseOptionID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	opt, err := s.d.Store.GetOption(r.Context(), id)
	if err != nil {
		writeError(w, "option not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, opt)
}

// ListOptions handles GET /api/v1/options, optionally ?holder=<account>.
func (s *Service) ListOptions(w http.ResponseWriter, r *http.Request) {
	var (
		opts []model.Option
		err  error
	)
	if holder := r.URL.Query().Get("holder"); holder != "" {
		opts, err = s.d.Store.ListOptionsByHolder(r.Context(), holder)
	} else {
		opts, err = s.d.Store.ListOptions(r.Context())
	}
	if err != nil {
		writeError(w, "failed to list options", http.StatusInternalServerError)
		return
	}
	if opts == nil {
		opts = []model.Option{}
	}
	writeJSON(w, http.StatusOK, opts)
}

// Exercise handles POST /api/v1/options/{optionID}/exercise.
func (s *Service) Exercise(w http.ResponseWriter, r *http.Request) {
	id, err := parseOptionID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req StakingRequest // just {account}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profit, err := s.d.Engine.Exercise(req.Account, id)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	opt, _ := s.d.Engine.Option(id)
	s.persistOption(r.Context(), opt)
	metrics.OptionsExercised.WithLabelValues(opt.Type.String()).Inc()
	metrics.ActiveOptions.Dec()
	s.updateUtilization()

	slog.Info("option exercised", "id", id, "caller", req.Account, "profit", profit.Dec())

	writeJSON(w, http.StatusOK, ExerciseResponse{
		OptionID:   id,
		Profit:     profit.Dec(),
		ProfitUnit: model.WeiToUnit(profit.Dec()),
	})
}

// Unlock handles POST /api/v1/options/{optionID}/unlock.
func (s *Service) Unlock(w http.ResponseWriter, r *http.Request) {
	id, err := parseOptionID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.d.Engine.Unlock(id); err != nil {
		writeProtocolError(w, err)
		return
	}
	opt, _ := s.d.Engine.Option(id)
	s.persistOption(r.Context(), opt)
	metrics.OptionsExpired.Inc()
	metrics.ActiveOptions.Dec()
	s.updateUtilization()

	writeJSON(w, http.StatusOK, optionToModel(opt))
}

// UnlockAll handles POST /api/v1/options/unlock with {"ids": [...]}.
// The batch is all-or-nothing: one unexpired id rejects the whole request.
func (s *Service) UnlockAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []uint64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, "ids are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.d.Engine.UnlockAll(req.IDs); err != nil {
		writeProtocolError(w, err)
		return
	}
	for _, id := range req.IDs {
		opt, _ := s.d.Engine.Option(id)
		s.persistOption(r.Context(), opt)
	}
	metrics.OptionsExpired.Add(float64(len(req.IDs)))
	metrics.ActiveOptions.Sub(float64(len(req.IDs)))
	s.updateUtilization()

	writeJSON(w, http.StatusOK, map[string]int{"unlocked": len(req.IDs)})
}

// ApproveOption handles POST /api/v1/options/{optionID}/approve.
func (s *Service) ApproveOption(w http.ResponseWriter, r *http.Request) {
	id, err := parseOptionID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.d.NFT.Approve(req.Account, req.Spender, id); err != nil {
		writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransferOption handles POST /api/v1/options/{optionID}/transfer with
// {"account": caller, "spender": from, "value": to} reusing the approve
// shape: From defaults to the caller.
func (s *Service) TransferOption(w http.ResponseWriter, r *http.Request) {
	id, err := parseOptionID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req struct {
		Account string `json:"account"`
		From    string `json:"from,omitempty"`
		To      string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" || req.To == "" {
		writeError(w, "account and to are required", http.StatusBadRequest)
		return
	}
	from := req.From
	if from == "" {
		from = req.Account
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.d.NFT.TransferFrom(req.Account, from, req.To, id); err != nil {
		writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOptionEvents handles GET /api/v1/options/{optionID}/events.
func (s *Service) GetOptionEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseOptionID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	evs, err := s.d.Store.GetEventsByOption(r.Context(), id)
	if err != nil {
		writeError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	if evs == nil {
		evs = []model.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

// ListEvents handles GET /api/v1/events?limit=N&account=<id>.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	if account := r.URL.Query().Get("account"); account != "" {
		evs, err := s.d.Store.GetEventsByAccount(r.Context(), account)
		if err != nil {
			writeError(w, "failed to load events", http.StatusInternalServerError)
			return
		}
		if evs == nil {
			evs = []model.Event{}
		}
		writeJSON(w, http.StatusOK, evs)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	evs, err := s.d.Store.ListEvents(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	if evs == nil {
		evs = []model.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

// PoolStatus handles GET /api/v1/pool.
func (s *Service) PoolStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.poolStatusLocked())
}

// Provide handles POST /api/v1/pool/provide.
func (s *Service) Provide(w http.ResponseWriter, r *http.Request) {
	var req ProvideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	value, err := parseWei(req.Value)
	if err != nil {
		writeError(w, "invalid value", http.StatusBadRequest)
		return
	}
	minShares, err := parseWei(req.MinShares)
	if err != nil {
		writeError(w, "invalid min_shares", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	minted, err := s.d.Pool.Provide(req.Account, value, minShares, req.Referrer)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	slog.Info("liquidity provided", "account", req.Account, "value", value.Dec(), "shares", minted.Dec())
	writeJSON(w, http.StatusOK, map[string]string{"shares": minted.Dec()})
}

// Withdraw handles POST /api/v1/pool/withdraw.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	value, err := parseWei(req.Value)
	if err != nil {
		writeError(w, "invalid value", http.StatusBadRequest)
		return
	}
	maxShares := new(uint256.Int).SetAllOne()
	if req.MaxShares != "" {
		maxShares, err = parseWei(req.MaxShares)
		if err != nil {
			writeError(w, "invalid max_shares", http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	burned, err := s.d.Pool.Withdraw(req.Account, value, maxShares)
	if err != nil {
		writeProtocolError(w, err)
		return
	}

	slog.Info("liquidity withdrawn", "account", req.Account, "value", value.Dec(), "burned", burned.Dec())
	writeJSON(w, http.StatusOK, map[string]string{"burned": burned.Dec()})
}

// ApproveShares handles POST /api/v1/pool/approve (share token allowance,
// needed before staking pool shares).
func (s *Service) ApproveShares(w http.ResponseWriter, r *http.Request) {
	s.approveOn(w, r, s.d.Pool.ShareToken())
}

// ApproveToken handles POST /api/v1/token/approve (protocol token allowance).
func (s *Service) ApproveToken(w http.ResponseWriter, r *http.Request) {
	s.approveOn(w, r, s.d.Token)
}

func (s *Service) approveOn(w http.ResponseWriter, r *http.Request, tok *ledger.Token) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" || req.Spender == "" {
		writeError(w, "account and spender are required", http.StatusBadRequest)
		return
	}
	value, err := parseWei(req.Value)
	if err != nil {
		writeError(w, "invalid value", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := tok.Approve(req.Account, req.Spender, value); err != nil {
		writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StakingStatus handles GET /api/v1/staking/{pool}.
func (s *Service) StakingStatus(w http.ResponseWriter, r *http.Request) {
	dist, name, err := s.distributor(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, model.StakingStatus{
		Pool:        name,
		TotalLots:   dist.TotalSupply().Dec(),
		LotPrice:    dist.LotPrice().Dec(),
		TotalProfit: dist.TotalProfit().Dec(),
	})
}

// StakingProfit handles GET /api/v1/staking/{pool}/profit/{account}.
func (s *Service) StakingProfit(w http.ResponseWriter, r *http.Request) {
	dist, _, err := s.distributor(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	account := chi.URLParam(r, "account")

	s.mu.Lock()
	defer s.mu.Unlock()

	profit, err := dist.ProfitOf(account)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"profit":  profit.Dec(),
	})
}

// StakingBuy handles POST /api/v1/staking/{pool}/buy.
func (s *Service) StakingBuy(w http.ResponseWriter, r *http.Request) {
	s.stakingOp(w, r, func(dist *staking.Distributor, account string, amount *uint256.Int) error {
		return dist.Buy(account, amount)
	})
}

// StakingSell handles POST /api/v1/staking/{pool}/sell.
func (s *Service) StakingSell(w http.ResponseWriter, r *http.Request) {
	s.stakingOp(w, r, func(dist *staking.Distributor, account string, amount *uint256.Int) error {
		return dist.Sell(account, amount)
	})
}

// StakingSendProfit handles POST /api/v1/staking/{pool}/profit. Anyone with
// balance (and an allowance on token payouts) may donate profit to stakers.
func (s *Service) StakingSendProfit(w http.ResponseWriter, r *http.Request) {
	dist, name, err := s.distributor(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	var req StakingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	value, err := parseWei(req.Amount)
	if err != nil || value.IsZero() {
		writeError(w, "amount must be a positive wei value", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := dist.SendProfit(req.Account, value); err != nil {
		writeProtocolError(w, err)
		return
	}
	metrics.StakingProfitEvents.WithLabelValues(name).Inc()
	w.WriteHeader(http.StatusNoContent)
}

// StakingClaim handles POST /api/v1/staking/{pool}/claim.
func (s *Service) StakingClaim(w http.ResponseWriter, r *http.Request) {
	dist, _, err := s.distributor(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	var req StakingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profit, err := dist.ClaimProfit(req.Account)
	if err != nil {
		writeProtocolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"profit": profit.Dec()})
}

func (s *Service) stakingOp(w http.ResponseWriter, r *http.Request,
	op func(*staking.Distributor, string, *uint256.Int) error) {
	dist, _, err := s.distributor(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	var req StakingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	amount, err := parseWei(req.Amount)
	if err != nil {
		writeError(w, "invalid amount", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := op(dist, req.Account, amount); err != nil {
		writeProtocolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAccount handles GET /api/v1/accounts/{account}: all ledger balances.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"account":          account,
		"native":           s.d.Native.BalanceOf(account).Dec(),
		"token":            s.d.Token.BalanceOf(account).Dec(),
		"pool_shares":      s.d.Pool.ShareToken().BalanceOf(account).Dec(),
		"staked_token":     s.d.StakingProtocol.BalanceOf(account).Dec(),
		"staked_shares":    s.d.StakingShares.BalanceOf(account).Dec(),
		"pool_share_value": s.d.Pool.ShareOf(account).Dec(),
	})
}

// SetAutoExercise handles POST /api/v1/accounts/{account}/auto-exercise.
func (s *Service) SetAutoExercise(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.d.Engine.SetAutoExerciseStatus(account, req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

// SetPrice handles POST /api/v1/admin/price with {"account", "price"} in
// quote-currency units. Development feed only.
func (s *Service) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string          `json:"account"`
		Price   decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account != s.d.Admin {
		writeError(w, "admin only", http.StatusForbidden)
		return
	}
	price, err := priceFromDecimal(req.Price)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.d.Feed.SetPrice(price)
	slog.Info("feed price set", "price", req.Price.String())
	w.WriteHeader(http.StatusNoContent)
}

// SetParams handles POST /api/v1/admin/params. Zero-valued fields are left
// unchanged.
func (s *Service) SetParams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account                 string  `json:"account"`
		ImpliedVolRate          string  `json:"implied_vol_rate,omitempty"`
		SettlementFeePercentage *uint64 `json:"settlement_fee_percentage,omitempty"`
		StakingFeePercentage    *uint64 `json:"staking_fee_percentage,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ImpliedVolRate != "" {
		rate, err := parseWei(req.ImpliedVolRate)
		if err != nil {
			writeError(w, "invalid implied_vol_rate", http.StatusBadRequest)
			return
		}
		if err := s.d.Engine.SetImpliedVolRate(req.Account, rate); err != nil {
			writeProtocolError(w, err)
			return
		}
	}
	if req.SettlementFeePercentage != nil {
		if err := s.d.Engine.SetSettlementFeePercentage(req.Account, *req.SettlementFeePercentage); err != nil {
			writeProtocolError(w, err)
			return
		}
	}
	if req.StakingFeePercentage != nil {
		if err := s.d.Engine.SetStakingFeePercentage(req.Account, *req.StakingFeePercentage); err != nil {
			writeProtocolError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Faucet handles POST /api/v1/admin/faucet, minting development funds.
func (s *Service) Faucet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		To      string `json:"to"`
		Native  string `json:"native,omitempty"`
		Token   string `json:"token,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		writeError(w, "to is required", http.StatusBadRequest)
		return
	}
	if req.Account != s.d.Admin {
		writeError(w, "admin only", http.StatusForbidden)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Native != "" {
		v, err := parseWei(req.Native)
		if err != nil {
			writeError(w, "invalid native amount", http.StatusBadRequest)
			return
		}
		if err := s.d.Native.Mint(req.To, v); err != nil {
			writeProtocolError(w, err)
			return
		}
	}
	if req.Token != "" {
		v, err := parseWei(req.Token)
		if err != nil {
			writeError(w, "invalid token amount", http.StatusBadRequest)
			return
		}
		if err := s.d.Token.Mint(req.To, v); err != nil {
			writeProtocolError(w, err)
			return
		}
	}
	slog.Warn("faucet mint", "to", req.To, "native", req.Native, "token", req.Token)
	w.WriteHeader(http.StatusNoContent)
}

// --- Internals ---

// activeLockedBy sums the locked notional across the active options the
// account currently owns. Ownership lives on the NFT ledger, not the
// original-recipient field, so transferred options count against the new
// owner.
func (s *Service) activeLockedBy(holder string) *uint256.Int {
	total := new(uint256.Int)
	for _, opt := range s.d.Engine.Options() {
		if opt.State != options.StateActive {
			continue
		}
		owner, err := s.d.NFT.OwnerOf(opt.ID)
		if err != nil || owner != holder {
			continue
		}
		total.Add(total, opt.LockedAmount)
	}
	return total
}

func (s *Service) persistOption(ctx context.Context, opt options.Option) {
	if err := s.d.Store.SaveOption(ctx, optionToModel(opt)); err != nil {
		slog.Error("option persist failed", "id", opt.ID, "err", err)
	}
}

func (s *Service) poolStatusLocked() model.PoolStatus {
	total := s.d.Pool.TotalBalance()
	locked := s.d.Pool.LockedAmount()
	unlocked := s.d.Pool.UnlockedBalance()

	utilization := decimal.Zero
	if !total.IsZero() {
		lockedD, _ := decimal.NewFromString(locked.Dec())
		totalD, _ := decimal.NewFromString(total.Dec())
		utilization = lockedD.Div(totalD).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return model.PoolStatus{
		TotalBalance:     total.Dec(),
		LockedAmount:     locked.Dec(),
		UnlockedBalance:  unlocked.Dec(),
		ShareSupply:      s.d.Pool.ShareToken().TotalSupply().Dec(),
		Utilization:      utilization,
		TotalBalanceUnit: model.WeiToUnit(total.Dec()),
	}
}

func (s *Service) updateUtilization() {
	st := s.poolStatusLocked()
	metrics.PoolUtilization.Set(st.Utilization.InexactFloat64())
}

func (s *Service) distributor(r *http.Request) (*staking.Distributor, string, error) {
	switch name := chi.URLParam(r, "pool"); name {
	case "protocol":
		return s.d.StakingProtocol, name, nil
	case "shares":
		return s.d.StakingShares, name, nil
	default:
		return nil, "", errors.New("unknown staking pool (want protocol or shares)")
	}
}

func parseOptionID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "optionID"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid option id")
	}
	return id, nil
}

// parseWei parses a decimal wei string; empty means zero.
func parseWei(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}

var errBadStrike = errors.New("strike must be a positive price with at most 8 decimals")

// priceFromDecimal converts a quote-currency decimal into the feed's
// 8-decimal fixed-point representation.
func priceFromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	scaled := d.Shift(8)
	if !scaled.IsInteger() || scaled.Sign() <= 0 {
		return nil, errBadStrike
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, errBadStrike
	}
	return v, nil
}

func optionTypeFromString(s string) (options.OptionType, error) {
	switch s {
	case "call":
		return options.TypeCall, nil
	case "put":
		return options.TypePut, nil
	default:
		return 0, errors.New("type must be call or put")
	}
}

func optionToModel(opt options.Option) *model.Option {
	return &model.Option{
		ID:           opt.ID,
		Holder:       opt.Holder,
		Type:         opt.Type.String(),
		State:        opt.State.String(),
		Strike:       model.PriceToUnit(opt.Strike.Dec()),
		Amount:       opt.Amount.Dec(),
		LockedAmount: opt.LockedAmount.Dec(),
		Premium:      opt.Premium.Dec(),
		Expiration:   opt.Expiration.UTC(),
		CreatedAt:    opt.CreatedAt.UTC(),
	}
}

func eventToModel(e events.Event) *model.Event {
	m := &model.Event{
		ID:        e.ID,
		Type:      string(e.Type),
		OptionID:  e.OptionID,
		Account:   e.Account,
		From:      e.From,
		To:        e.To,
		Timestamp: e.Timestamp.UTC(),
	}
	if e.Amount != nil {
		m.Amount = e.Amount.Dec()
	}
	if e.SettlementFee != nil {
		m.SettlementFee = e.SettlementFee.Dec()
	}
	if e.TotalFee != nil {
		m.TotalFee = e.TotalFee.Dec()
	}
	return m
}

func quoteToModel(typ options.OptionType, strike decimal.Decimal, amount *uint256.Int,
	period time.Duration, fees options.Fees) model.Quote {
	return model.Quote{
		Type:          typ.String(),
		Strike:        strike,
		Amount:        amount.Dec(),
		PeriodSeconds: int64(period / time.Second),
		SettlementFee: fees.SettlementFee.Dec(),
		StrikeFee:     fees.StrikeFee.Dec(),
		PeriodFee:     fees.PeriodFee.Dec(),
		Total:         fees.Total.Dec(),
		TotalUnit:     model.WeiToUnit(fees.Total.Dec()),
	}
}

// writeProtocolError maps engine and ledger sentinel errors onto HTTP
// statuses: unknown ids are 404, authorization failures 403, state conflicts
// 409, and anything malformed 400.
func writeProtocolError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, options.ErrNotFound) || errors.Is(err, ledger.ErrTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, options.ErrNotEligible) ||
		errors.Is(err, options.ErrNotAdmin) ||
		errors.Is(err, ledger.ErrNotOwnerNorApproved) ||
		errors.Is(err, ledger.ErrMissingRole):
		status = http.StatusForbidden
	case errors.Is(err, options.ErrExpired) ||
		errors.Is(err, options.ErrNotExpired) ||
		errors.Is(err, options.ErrNotActive) ||
		errors.Is(err, options.ErrPriceTooLow) ||
		errors.Is(err, options.ErrPriceTooHigh) ||
		errors.Is(err, pool.ErrInsufficientUnlocked) ||
		errors.Is(err, pool.ErrAmountTooLarge) ||
		errors.Is(err, pool.ErrAlreadyLocked) ||
		errors.Is(err, pool.ErrNotLocked) ||
		errors.Is(err, pool.ErrWithdrawLockup) ||
		errors.Is(err, staking.ErrLockup) ||
		errors.Is(err, staking.ErrZeroProfit) ||
		errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, ledger.ErrInsufficientAllowance) ||
		errors.Is(err, ledger.ErrBurnExceedsBalance):
		status = http.StatusConflict
	case errors.Is(err, options.ErrWrongValue) ||
		errors.Is(err, options.ErrPeriodTooShort) ||
		errors.Is(err, options.ErrPeriodTooLong) ||
		errors.Is(err, options.ErrAmountTooSmall) ||
		errors.Is(err, options.ErrInvalidType) ||
		errors.Is(err, options.ErrPercentageTooHigh) ||
		errors.Is(err, pool.ErrAmountTooSmall) ||
		errors.Is(err, pool.ErrMintSlippage) ||
		errors.Is(err, pool.ErrBurnSlippage) ||
		errors.Is(err, staking.ErrZeroAmount) ||
		errors.Is(err, ledger.ErrZeroAccount):
		status = http.StatusBadRequest
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
