package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hedgex/options-engine/internal/events"
	"github.com/hedgex/options-engine/internal/exposure"
	"github.com/hedgex/options-engine/internal/ledger"
	"github.com/hedgex/options-engine/internal/options"
	"github.com/hedgex/options-engine/internal/oracle"
	"github.com/hedgex/options-engine/internal/pool"
	"github.com/hedgex/options-engine/internal/staking"
	"github.com/hedgex/options-engine/internal/store"
)

const (
	adminAcct    = "admin"
	engineAcct   = "engine-vault"
	poolAcct     = "pool-vault"
	stakeAcct    = "staking-vault"
	stakeShAcct  = "staking-shares-vault"
	testBuyer    = "alice"
	testProvider = "lp1"
)

type testServer struct {
	srv    *httptest.Server
	feed   *oracle.FakeProvider
	store  *store.MemoryStore
	native *ledger.Native
	token  *ledger.Token
}

func wei18(v uint64) *uint256.Int {
	w := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	return w.Mul(w, uint256.NewInt(v))
}

func decimalFromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithLimiter(t, exposure.NewLimiter(nil, 90))
}

func newTestServerWithLimiter(t *testing.T, limiter *exposure.Limiter) *testServer {
	t.Helper()

	native := ledger.NewNative()
	token := ledger.NewToken("HGX")
	st := store.NewMemoryStore()
	emitter := events.Multi{events.NewLog(), NewEventPersister(st)}

	roles := ledger.NewRoleSet(adminAcct)
	pl := pool.New(pool.DefaultConfig(), poolAcct, native, roles, emitter)
	nft := ledger.NewOptionToken(emitter)
	feed := oracle.NewFakeProvider(uint256.NewInt(380_0000_0000)) // 380 at 8 decimals

	stProto := staking.New(staking.DefaultConfig(adminAcct), stakeAcct,
		staking.TokenAsset{Token: token}, staking.NativeAsset{Ledger: native}, emitter)
	stShares := staking.New(staking.DefaultConfig(adminAcct), stakeShAcct,
		staking.TokenAsset{Token: pl.ShareToken()}, staking.TokenAsset{Token: token}, emitter)

	eng := options.New(options.DefaultConfig(), engineAcct, adminAcct, native, nft, pl, stProto, feed, emitter)
	if err := roles.Grant(adminAcct, ledger.RoleOptionIssuer, engineAcct); err != nil {
		t.Fatalf("grant issuer role: %v", err)
	}

	native.Mint(testProvider, wei18(100))
	native.Mint(testBuyer, wei18(1))

	svc := NewService(Deps{
		Engine:          eng,
		Pool:            pl,
		StakingProtocol: stProto,
		StakingShares:   stShares,
		Native:          native,
		Token:           token,
		NFT:             nft,
		Feed:            feed,
		Store:           st,
		Limiter:         limiter,
		Admin:           adminAcct,
	})

	r := chi.NewRouter()
	svc.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, feed: feed, store: st, native: native, token: token}
}

func (ts *testServer) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (ts *testServer) provide(t *testing.T, account string, value *uint256.Int) {
	t.Helper()
	resp := ts.post(t, "/pool/provide", ProvideRequest{Account: account, Value: value.Dec()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("provide status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateExerciseFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.provide(t, testProvider, wei18(10))

	// At-the-money call for 1 unit over 2 days at spot 380:
	// settlement 1% = 1e16, period fee 415*4500/1e8 of notional = 18675e12.
	resp := ts.post(t, "/options", CreateOptionRequest{
		Account:       testBuyer,
		Type:          "call",
		Strike:        decimalFromInt(380),
		Amount:        wei18(1).Dec(),
		PeriodSeconds: 2 * 24 * 3600,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created CreateOptionResponse
	decodeJSON(t, resp, &created)
	if created.Option.ID != 0 {
		t.Errorf("option id = %d, want 0", created.Option.ID)
	}
	if created.Option.State != "active" {
		t.Errorf("state = %q, want active", created.Option.State)
	}
	if created.Quote.Total != "28675000000000000" {
		t.Errorf("premium = %s, want 28675000000000000", created.Quote.Total)
	}

	// The snapshot is persisted and readable without the engine.
	resp = ts.get(t, "/options/0")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get option status = %d", resp.StatusCode)
	}
	var stored map[string]any
	decodeJSON(t, resp, &stored)
	if stored["holder"] != testBuyer {
		t.Errorf("stored holder = %v, want %s", stored["holder"], testBuyer)
	}

	// Push the feed to 400 and exercise: profit = (400-380)/400 of notional.
	resp = ts.post(t, "/admin/price", map[string]any{"account": adminAcct, "price": 400})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("set price status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.post(t, "/options/0/exercise", StakingRequest{Account: testBuyer})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exercise status = %d", resp.StatusCode)
	}
	var ex ExerciseResponse
	decodeJSON(t, resp, &ex)
	if ex.Profit != "50000000000000000" {
		t.Errorf("profit = %s, want 50000000000000000", ex.Profit)
	}

	resp = ts.get(t, "/options/0")
	decodeJSON(t, resp, &stored)
	if stored["state"] != "exercised" {
		t.Errorf("stored state = %v, want exercised", stored["state"])
	}

	// Buyer balance: funded 1 unit, paid the premium, received the profit.
	resp = ts.get(t, "/accounts/"+testBuyer)
	var acct map[string]string
	decodeJSON(t, resp, &acct)
	if acct["native"] != "1021325000000000000" {
		t.Errorf("buyer native = %s, want 1021325000000000000", acct["native"])
	}

	// The journal carries the full lifecycle for the option id.
	resp = ts.get(t, "/options/0/events")
	var evs []map[string]any
	decodeJSON(t, resp, &evs)
	types := make(map[string]bool)
	for _, e := range evs {
		types[e["type"].(string)] = true
	}
	for _, want := range []string{"Create", "Exercise", "Transfer"} {
		if !types[want] {
			t.Errorf("journal missing %s event, got %v", want, evs)
		}
	}
}

func TestQuote(t *testing.T) {
	ts := newTestServer(t)

	expiry := time.Now().UTC().AddDate(0, 0, 7).Format("20060102")
	resp := ts.get(t, fmt.Sprintf("/quote?instrument=HGX-%s-380-C&amount=%s", expiry, wei18(1).Dec()))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quote status = %d", resp.StatusCode)
	}
	var q map[string]any
	decodeJSON(t, resp, &q)
	if q["settlement_fee"] != "10000000000000000" {
		t.Errorf("settlement fee = %v, want 1%% of notional", q["settlement_fee"])
	}
	if q["strike_fee"] != "0" {
		t.Errorf("strike fee = %v, want 0 at the money", q["strike_fee"])
	}

	resp = ts.get(t, "/quote?instrument=garbage&amount=1")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid instrument status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.get(t, fmt.Sprintf("/quote?instrument=HGX-20200101-380-C&amount=%s", wei18(1).Dec()))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expired instrument status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateRejections(t *testing.T) {
	ts := newTestServer(t)
	ts.provide(t, testProvider, wei18(10))

	cases := []struct {
		name string
		req  CreateOptionRequest
		want int
	}{
		{
			name: "unknown type",
			req: CreateOptionRequest{
				Account: testBuyer, Type: "straddle", Strike: decimalFromInt(380),
				Amount: wei18(1).Dec(), PeriodSeconds: 2 * 24 * 3600,
			},
			want: http.StatusBadRequest,
		},
		{
			name: "period too short",
			req: CreateOptionRequest{
				Account: testBuyer, Type: "call", Strike: decimalFromInt(380),
				Amount: wei18(1).Dec(), PeriodSeconds: 3600,
			},
			want: http.StatusBadRequest,
		},
		{
			name: "wrong value attached",
			req: CreateOptionRequest{
				Account: testBuyer, Type: "call", Strike: decimalFromInt(380),
				Amount: wei18(1).Dec(), PeriodSeconds: 2 * 24 * 3600, Value: "1",
			},
			want: http.StatusBadRequest,
		},
		{
			name: "utilization ceiling",
			req: CreateOptionRequest{
				Account: testBuyer, Type: "call", Strike: decimalFromInt(380),
				Amount: "9500000000000000000", PeriodSeconds: 2 * 24 * 3600,
			},
			want: http.StatusConflict,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.post(t, "/options", tc.req)
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

// The per-account cap follows the ownership token, not the original
// recipient: after a transfer the locked notional counts against the new
// owner.
func TestExposureFollowsOwnershipTransfer(t *testing.T) {
	ts := newTestServerWithLimiter(t, exposure.NewLimiter(wei18(1), 0))
	ts.provide(t, testProvider, wei18(10))

	resp := ts.post(t, "/options", CreateOptionRequest{
		Account: testBuyer, Type: "call", Strike: decimalFromInt(380),
		Amount: wei18(1).Dec(), PeriodSeconds: 2 * 24 * 3600,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.post(t, "/options/0/transfer", map[string]string{
		"account": testBuyer, "to": "bob",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("transfer status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// bob now carries the full cap and may not take on more.
	resp = ts.post(t, "/options", CreateOptionRequest{
		Account: testBuyer, Recipient: "bob", Type: "call", Strike: decimalFromInt(380),
		Amount: wei18(1).Dec(), PeriodSeconds: 2 * 24 * 3600,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("create for bob status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// The original recipient no longer owns the position and may write again.
	resp = ts.post(t, "/options", CreateOptionRequest{
		Account: testBuyer, Type: "call", Strike: decimalFromInt(380),
		Amount: wei18(1).Dec(), PeriodSeconds: 2 * 24 * 3600,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("create for original recipient status = %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestExerciseAuthorization(t *testing.T) {
	ts := newTestServer(t)
	ts.provide(t, testProvider, wei18(10))

	resp := ts.post(t, "/options", CreateOptionRequest{
		Account: testBuyer, Type: "call", Strike: decimalFromInt(380),
		Amount: wei18(1).Dec(), PeriodSeconds: 2 * 24 * 3600,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.post(t, "/options/0/exercise", StakingRequest{Account: "mallory"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("stranger exercise status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.post(t, "/options/99/exercise", StakingRequest{Account: testBuyer})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown option status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWithdrawDuringLockup(t *testing.T) {
	ts := newTestServer(t)
	ts.provide(t, testProvider, wei18(10))

	resp := ts.post(t, "/pool/withdraw", WithdrawRequest{Account: testProvider, Value: wei18(1).Dec()})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("withdraw status = %d, want 409", resp.StatusCode)
	}
}

func TestStakingEndpoints(t *testing.T) {
	ts := newTestServer(t)

	staker := "carol"
	payer := "engine-sim"
	ts.token.Mint(staker, wei18(2000))
	ts.native.Mint(payer, uint256.NewInt(100))

	// Buying pulls the lot cost through the distributor's allowance.
	resp := ts.post(t, "/token/approve", ApproveRequest{Account: staker, Spender: stakeAcct, Value: wei18(2000).Dec()})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.post(t, "/staking/protocol/buy", StakingRequest{Account: staker, Amount: "2"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("buy status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.get(t, "/accounts/"+staker)
	var acct map[string]string
	decodeJSON(t, resp, &acct)
	if acct["staked_token"] != "2" {
		t.Errorf("staked lots = %s, want 2", acct["staked_token"])
	}

	resp = ts.post(t, "/staking/protocol/profit", StakingRequest{Account: payer, Amount: "8"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("send profit status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.get(t, "/staking/protocol/profit/"+staker)
	var profit map[string]string
	decodeJSON(t, resp, &profit)
	if profit["profit"] != "8" {
		t.Errorf("profit = %s, want 8", profit["profit"])
	}

	resp = ts.post(t, "/staking/protocol/claim", StakingRequest{Account: staker})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status = %d", resp.StatusCode)
	}
	var claim map[string]string
	decodeJSON(t, resp, &claim)
	if claim["profit"] != "8" {
		t.Errorf("claimed = %s, want 8", claim["profit"])
	}

	resp = ts.get(t, "/staking/protocol")
	var status map[string]any
	decodeJSON(t, resp, &status)
	if status["total_lots"] != "2" {
		t.Errorf("total lots = %v, want 2", status["total_lots"])
	}

	resp = ts.get(t, "/staking/nosuch")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown pool status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminGuards(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/admin/price", map[string]any{"account": "mallory", "price": 1})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("price by non-admin status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	pct := uint64(200)
	resp = ts.post(t, "/admin/params", map[string]any{
		"account":                   adminAcct,
		"settlement_fee_percentage": pct,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("fee above 100%% status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}
