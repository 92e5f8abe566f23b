package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/hedgex/options-engine/internal/api"
	"github.com/hedgex/options-engine/internal/events"
	"github.com/hedgex/options-engine/internal/exposure"
	"github.com/hedgex/options-engine/internal/ledger"
	"github.com/hedgex/options-engine/internal/metrics"
	"github.com/hedgex/options-engine/internal/options"
	"github.com/hedgex/options-engine/internal/oracle"
	"github.com/hedgex/options-engine/internal/pool"
	"github.com/hedgex/options-engine/internal/staking"
	"github.com/hedgex/options-engine/internal/store"
)

// Well-known protocol accounts on the internal ledgers.
const (
	engineAccount        = "options-engine"
	poolAccount          = "liquidity-pool"
	stakingAccount       = "staking-protocol"
	stakingSharesAccount = "staking-shares"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	admin := os.Getenv("ADMIN_ACCOUNT")
	if admin == "" {
		admin = "admin"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pgPool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pgPool.Close)
		st = store.NewPostgresStore(pgPool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// Every protocol event flows to the journal, the store and the hub.
	journal := events.NewLog()
	emitter := events.Multi{journal, api.NewEventPersister(st), wsHub}

	// --- Ledgers and price feed ---
	native := ledger.NewNative()
	token := ledger.NewToken("HGX")
	roles := ledger.NewRoleSet(admin)
	nft := ledger.NewOptionToken(emitter)
	feed := oracle.NewFakeProvider(envPrice())

	// --- Protocol components ---
	pl := pool.New(pool.DefaultConfig(), poolAccount, native, roles, emitter)

	stakingProtocol := staking.New(staking.DefaultConfig(admin), stakingAccount,
		staking.TokenAsset{Token: token}, staking.NativeAsset{Ledger: native}, emitter)
	stakingShares := staking.New(staking.DefaultConfig(admin), stakingSharesAccount,
		staking.TokenAsset{Token: pl.ShareToken()}, staking.TokenAsset{Token: token}, emitter)

	engine := options.New(options.DefaultConfig(), engineAccount, admin,
		native, nft, pl, stakingProtocol, feed, emitter)
	if err := roles.Grant(admin, ledger.RoleOptionIssuer, engineAccount); err != nil {
		slog.Error("issuer role grant failed", "err", err)
		os.Exit(1)
	}

	// --- Exposure limits ---
	limiter := exposure.NewLimiter(envWei("MAX_ACCOUNT_NOTIONAL"), envUint("MAX_UTILIZATION_PCT", 80))

	// --- API service ---
	svc := api.NewService(api.Deps{
		Engine:          engine,
		Pool:            pl,
		StakingProtocol: stakingProtocol,
		StakingShares:   stakingShares,
		Native:          native,
		Token:           token,
		NFT:             nft,
		Feed:            feed,
		Store:           st,
		Limiter:         limiter,
		Hub:             wsHub,
		Admin:           admin,
	})

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"options-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time protocol events.
		r.Get("/ws", wsHub.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("options-engine listening", "port", port, "admin", admin)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down options-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("options-engine stopped")
}

// envPrice reads the initial feed price (quote-currency units) from
// INITIAL_PRICE, defaulting to 380.
func envPrice() *uint256.Int {
	raw := os.Getenv("INITIAL_PRICE")
	if raw == "" {
		raw = "380"
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Sign() <= 0 {
		slog.Error("invalid INITIAL_PRICE", "value", raw)
		os.Exit(1)
	}
	v, overflow := uint256.FromBig(d.Shift(8).BigInt())
	if overflow {
		slog.Error("INITIAL_PRICE out of range", "value", raw)
		os.Exit(1)
	}
	return v
}

// envWei reads a wei decimal string from the environment; unset disables the
// corresponding limit.
func envWei(key string) *uint256.Int {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		slog.Error("invalid wei value", "key", key, "value", raw)
		os.Exit(1)
	}
	return v
}

func envUint(key string, def uint64) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	var v uint64
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		slog.Error("invalid integer value", "key", key, "value", raw)
		os.Exit(1)
	}
	return v
}
