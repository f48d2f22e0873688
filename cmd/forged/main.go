// Package main runs the token forge daemon: an HTTP service exposing the
// sale-and-burn engine, a websocket ledger-event feed and Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"

	"token-forge/internal/asset"
	"token-forge/internal/domain"
	"token-forge/internal/events"
	"token-forge/internal/forge"
	"token-forge/internal/observability"
	"token-forge/internal/roles"
	"token-forge/internal/storage/memory"
	"token-forge/internal/storage/migrations"
	pgstore "token-forge/internal/storage/postgres"
)

// Server holds all components of the forge daemon.
type Server struct {
	engine       *forge.Engine
	bank         *asset.Bank
	paymentToken *asset.Token
	broadcaster  *events.Broadcaster
	metrics      *observability.Metrics
	logger       *log.Logger
	upgrader     websocket.Upgrader
	started      time.Time
	useMemory    bool
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	adminAddr := flag.String("admin-address", os.Getenv("ADMIN_ADDRESS"), "Address granted the admin role at startup")
	feeRecipient := flag.String("fee-recipient", os.Getenv("FEE_RECIPIENT"), "Address receiving purchase payments")
	nativeFee := flag.String("native-fee", envOr("NATIVE_FEE", "20000000000000000"), "Per-unit native purchase fee in wei")
	fungibleFee := flag.String("fungible-fee", envOr("FUNGIBLE_FEE", "10000000000000000"), "Per-unit fungible purchase fee in wei")
	paymentSymbol := flag.String("payment-symbol", envOr("PAYMENT_SYMBOL", "GUPC"), "Payment token symbol")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[forged] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *adminAddr == "" {
		logger.Fatal("--admin-address is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	nativeFeeAmount, err := uint256.FromDecimal(*nativeFee)
	if err != nil {
		logger.Fatalf("Invalid --native-fee: %v", err)
	}
	fungibleFeeAmount, err := uint256.FromDecimal(*fungibleFee)
	if err != nil {
		logger.Fatalf("Invalid --fungible-fee: %v", err)
	}

	recipient := domain.Address(*feeRecipient)
	if recipient.IsZero() {
		recipient = domain.Address(*adminAddr)
		logger.Printf("No --fee-recipient given, payments go to the admin address")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create collaborators
	bank := asset.NewBank()
	paymentToken := asset.NewToken(*paymentSymbol)
	paymentTokenAddr := domain.MustGenerateAddress()

	registry := asset.NewRegistry()
	registry.Register(paymentTokenAddr, paymentToken)

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	metrics := observability.NewMetrics("")

	engine, err := forge.New(ctx, forge.Options{
		Stores: stores,
		Self:   domain.MustGenerateAddress(),
		Admin:  domain.Address(*adminAddr),
		Fees: &domain.FeeConfig{
			NativeFee:    nativeFeeAmount,
			FungibleFee:  fungibleFeeAmount,
			FeeRecipient: recipient,
		},
		Bank:         bank,
		PaymentToken: paymentToken,
		Oracle:       registry,
		Events:       broadcaster,
		Metrics:      metrics,
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}

	logger.Printf("Engine address: %s", engine.Self())
	logger.Printf("Payment token %s at %s", *paymentSymbol, paymentTokenAddr)

	server := &Server{
		engine:       engine,
		bank:         bank,
		paymentToken: paymentToken,
		broadcaster:  broadcaster,
		metrics:      metrics,
		logger:       logger,
		upgrader:     websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		started:      time.Now(),
		useMemory:    *useMemory,
	}

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}()

	logger.Printf("Starting HTTP server on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	<-ctx.Done()
	logger.Println("Shutdown complete")
}

// createStores creates the engine's storage backends.
func createStores(ctx context.Context, postgresDSN string, useMemory bool, logger *log.Logger) (forge.Stores, func(), error) {
	if useMemory {
		stores := forge.Stores{
			Records:   memory.NewTokenRecordStore(),
			Balances:  memory.NewBalanceStore(),
			Roles:     memory.NewRoleStore(),
			Config:    memory.NewConfigStore(),
			Approvals: memory.NewApprovalStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return forge.Stores{}, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgres(ctx, pool); err != nil {
		pool.Close()
		return forge.Stores{}, nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Println("Postgres migrations applied")

	stores := forge.Stores{
		Records:   pgstore.NewTokenRecordStore(pool),
		Balances:  pgstore.NewBalanceStore(pool),
		Roles:     pgstore.NewRoleStore(pool),
		Config:    pgstore.NewConfigStore(pool),
		Approvals: pgstore.NewApprovalStore(pool),
	}
	return stores, pool.Close, nil
}

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /v1/purchases/native", s.instrument("/v1/purchases/native", s.handleBuyNative))
	mux.HandleFunc("POST /v1/purchases/fungible", s.instrument("/v1/purchases/fungible", s.handleBuyFungible))

	mux.HandleFunc("POST /v1/burns", s.instrument("/v1/burns", s.handleBurn))
	mux.HandleFunc("POST /v1/burns/batch", s.instrument("/v1/burns/batch", s.handleBurnBatch))

	mux.HandleFunc("POST /v1/transfers", s.instrument("/v1/transfers", s.handleTransfer))
	mux.HandleFunc("POST /v1/approvals", s.instrument("/v1/approvals", s.handleSetApproval))
	mux.HandleFunc("GET /v1/approvals/{owner}/{operator}", s.instrument("/v1/approvals/get", s.handleGetApproval))

	mux.HandleFunc("GET /v1/tokens/current", s.instrument("/v1/tokens/current", s.handleCurrentTokenID))
	mux.HandleFunc("GET /v1/tokens/{id}", s.instrument("/v1/tokens/get", s.handleGetToken))
	mux.HandleFunc("GET /v1/tokens/{id}/supply", s.instrument("/v1/tokens/supply", s.handleTotalSupply))
	mux.HandleFunc("GET /v1/tokens/{id}/balance/{holder}", s.instrument("/v1/tokens/balance", s.handleBalanceOf))
	mux.HandleFunc("GET /v1/tokens/{id}/can-burn/{holder}", s.instrument("/v1/tokens/can-burn", s.handleCanBurn))
	mux.HandleFunc("GET /v1/holders/{holder}/tokens", s.instrument("/v1/holders/tokens", s.handleHoldings))

	mux.HandleFunc("POST /v1/roles/grant", s.instrument("/v1/roles/grant", s.handleGrantRole))
	mux.HandleFunc("POST /v1/roles/revoke", s.instrument("/v1/roles/revoke", s.handleRevokeRole))
	mux.HandleFunc("GET /v1/roles/{role}/{member}", s.instrument("/v1/roles/has", s.handleHasRole))

	mux.HandleFunc("GET /v1/fees", s.instrument("/v1/fees", s.handleGetFees))
	mux.HandleFunc("POST /v1/fees", s.instrument("/v1/fees", s.handleSetFees))
	mux.HandleFunc("POST /v1/fees/recipient", s.instrument("/v1/fees/recipient", s.handleSetFeeRecipient))

	mux.HandleFunc("GET /v1/contract-uri", s.instrument("/v1/contract-uri", s.handleGetContractURI))
	mux.HandleFunc("POST /v1/contract-uri", s.instrument("/v1/contract-uri", s.handleSetContractURI))

	// Ledger-side asset faucets, admin-only. Stand in for on-chain balances.
	mux.HandleFunc("POST /v1/assets/native/deposit", s.instrument("/v1/assets/native/deposit", s.handleNativeDeposit))
	mux.HandleFunc("POST /v1/assets/fungible/mint", s.instrument("/v1/assets/fungible/mint", s.handleFungibleMint))

	mux.HandleFunc("GET /ws/events", s.handleEventFeed)

	return mux
}

// instrument wraps a handler with request-duration metrics.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.HTTPRequestDuration.
			WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// caller extracts the acting address from the X-Caller-Address header.
func caller(r *http.Request) (domain.Address, error) {
	addr := strings.TrimSpace(r.Header.Get("X-Caller-Address"))
	if addr == "" {
		return "", errors.New("missing X-Caller-Address header")
	}
	return domain.Address(addr), nil
}

// purchasePayload is the request body for both purchase endpoints.
type purchasePayload struct {
	Quantity        uint64 `json:"quantity"`
	ThresholdAsset  string `json:"thresholdAsset,omitempty"`
	ThresholdAmount string `json:"thresholdAmount,omitempty"`
	Expiry          int64  `json:"expiry"`
	ContentRef      string `json:"contentRef"`
	Paid            string `json:"paid,omitempty"` // native purchases only
}

func (p *purchasePayload) toRequest() (forge.PurchaseRequest, error) {
	req := forge.PurchaseRequest{
		Quantity:   p.Quantity,
		Expiry:     p.Expiry,
		ContentRef: p.ContentRef,
	}
	if p.ThresholdAsset != "" {
		addr := domain.Address(p.ThresholdAsset)
		req.ThresholdAsset = &addr
		amount, err := uint256.FromDecimal(p.ThresholdAmount)
		if err != nil {
			return req, fmt.Errorf("invalid thresholdAmount: %w", err)
		}
		req.ThresholdAmount = amount
	}
	return req, nil
}

func (s *Server) handleBuyNative(w http.ResponseWriter, r *http.Request) {
	buyer, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload purchasePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	paid, err := uint256.FromDecimal(payload.Paid)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid paid amount: %w", err))
		return
	}

	id, err := s.engine.BuyWithNative(r.Context(), buyer, req, paid)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"tokenId": id})
}

func (s *Server) handleBuyFungible(w http.ResponseWriter, r *http.Request) {
	buyer, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload purchasePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.engine.BuyWithFungible(r.Context(), buyer, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"tokenId": id})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	burner, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		TokenID uint64 `json:"tokenId"`
		Holder  string `json:"holder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.BurnOne(r.Context(), burner, payload.TokenID, domain.Address(payload.Holder)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

func (s *Server) handleBurnBatch(w http.ResponseWriter, r *http.Request) {
	burner, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		TokenIDs []uint64 `json:"tokenIds"`
		Holders  []string `json:"holders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	holders := make([]domain.Address, len(payload.Holders))
	for i, h := range payload.Holders {
		holders[i] = domain.Address(h)
	}

	if err := s.engine.BurnBatch(r.Context(), burner, payload.TokenIDs, holders); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "burned", "count": len(payload.TokenIDs)})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	actor, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		From     string `json:"from"`
		To       string `json:"to"`
		TokenID  uint64 `json:"tokenId"`
		Quantity uint64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = s.engine.Transfer(r.Context(), actor,
		domain.Address(payload.From), domain.Address(payload.To),
		payload.TokenID, payload.Quantity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (s *Server) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.SetApprovalForAll(r.Context(), owner, domain.Address(payload.Operator), payload.Approved); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": payload.Approved})
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	approved, err := s.engine.IsApprovedForAll(r.Context(),
		domain.Address(r.PathValue("owner")), domain.Address(r.PathValue("operator")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": approved})
}

func (s *Server) handleCurrentTokenID(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.CurrentTokenID(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"currentTokenId": id})
}

// tokenResponse is the JSON view of a token record.
type tokenResponse struct {
	ID              uint64 `json:"id"`
	ContentRef      string `json:"contentRef"`
	ThresholdAsset  string `json:"thresholdAsset,omitempty"`
	ThresholdAmount string `json:"thresholdAmount,omitempty"`
	Expiry          int64  `json:"expiry"`
	CreatedAt       int64  `json:"createdAt"`
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	record, err := s.engine.TokenRecord(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := tokenResponse{
		ID:         record.ID,
		ContentRef: record.ContentRef,
		Expiry:     record.Expiry,
		CreatedAt:  record.CreatedAt,
	}
	if record.HasThreshold() {
		resp.ThresholdAsset = string(*record.ThresholdAsset)
		resp.ThresholdAmount = record.ThresholdAmount.Dec()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTotalSupply(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	supply, err := s.engine.TotalSupply(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"totalSupply": supply})
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := s.engine.BalanceOf(r.Context(), id, domain.Address(r.PathValue("holder")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (s *Server) handleCanBurn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := s.engine.CanBurn(r.Context(), id, domain.Address(r.PathValue("holder")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"canBurn": ok})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.HoldingsOf(r.Context(), domain.Address(r.PathValue("holder")))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	type holding struct {
		TokenID  uint64 `json:"tokenId"`
		Quantity uint64 `json:"quantity"`
	}
	holdings := make([]holding, 0, len(entries))
	for _, e := range entries {
		holdings = append(holdings, holding{TokenID: e.TokenID, Quantity: e.Quantity})
	}
	writeJSON(w, http.StatusOK, map[string]any{"holdings": holdings})
}

// resolveRole maps a role name or raw role id to a roles.ID.
func resolveRole(name string) roles.ID {
	switch name {
	case roles.AdminRoleName, string(roles.Admin):
		return roles.Admin
	case roles.BurnerRoleName, string(roles.Burner):
		return roles.Burner
	default:
		return roles.ComputeID(name)
	}
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Role   string `json:"role"`
		Member string `json:"member"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.GrantRole(r.Context(), admin, resolveRole(payload.Role), domain.Address(payload.Member)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Role   string `json:"role"`
		Member string `json:"member"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.RevokeRole(r.Context(), admin, resolveRole(payload.Role), domain.Address(payload.Member)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleHasRole(w http.ResponseWriter, r *http.Request) {
	held, err := s.engine.HasRole(r.Context(), resolveRole(r.PathValue("role")), domain.Address(r.PathValue("member")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasRole": held})
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Fees(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"nativeFee":    cfg.NativeFee.Dec(),
		"fungibleFee":  cfg.FungibleFee.Dec(),
		"feeRecipient": string(cfg.FeeRecipient),
	})
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		NativeFee   string `json:"nativeFee"`
		FungibleFee string `json:"fungibleFee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	nativeFee, err := uint256.FromDecimal(payload.NativeFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid nativeFee: %w", err))
		return
	}
	fungibleFee, err := uint256.FromDecimal(payload.FungibleFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid fungibleFee: %w", err))
		return
	}

	if err := s.engine.SetFees(r.Context(), admin, nativeFee, fungibleFee); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		Recipient string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.SetFeeRecipient(r.Context(), admin, domain.Address(payload.Recipient)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleGetContractURI(w http.ResponseWriter, r *http.Request) {
	uri, err := s.engine.ContractURI(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contractUri": uri})
}

func (s *Server) handleSetContractURI(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload struct {
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.SetContractURI(r.Context(), admin, payload.URI); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleNativeDeposit credits native funds to an address. Admin only.
func (s *Server) handleNativeDeposit(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.requireAdmin(r.Context(), admin); err != nil {
		writeEngineError(w, err)
		return
	}
	holder, amount, err := decodeFunding(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.bank.Deposit(r.Context(), holder, amount); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

// handleFungibleMint mints payment tokens to an address. Admin only.
func (s *Server) handleFungibleMint(w http.ResponseWriter, r *http.Request) {
	admin, err := caller(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.requireAdmin(r.Context(), admin); err != nil {
		writeEngineError(w, err)
		return
	}
	holder, amount, err := decodeFunding(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.paymentToken.Mint(r.Context(), holder, amount); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "minted"})
}

func (s *Server) requireAdmin(ctx context.Context, addr domain.Address) error {
	held, err := s.engine.HasRole(ctx, roles.Admin, addr)
	if err != nil {
		return err
	}
	if !held {
		return forge.ErrUnauthorized
	}
	return nil
}

func decodeFunding(r *http.Request) (domain.Address, *uint256.Int, error) {
	var payload struct {
		Holder string `json:"holder"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return "", nil, err
	}
	amount, err := uint256.FromDecimal(payload.Amount)
	if err != nil {
		return "", nil, fmt.Errorf("invalid amount: %w", err)
	}
	return domain.Address(payload.Holder), amount, nil
}

// handleEventFeed upgrades to a websocket and streams ledger events as JSON.
func (s *Server) handleEventFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("Websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.broadcaster.Subscribe()
	defer cancel()

	s.metrics.WSSubscribers.Inc()
	defer s.metrics.WSSubscribers.Dec()

	// Drain client frames so close/ping control messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Storage        string `json:"storage"`
	CurrentTokenID uint64 `json:"current_token_id"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	storage := "postgres"
	if s.useMemory {
		storage = "memory"
	}

	id, err := s.engine.CurrentTokenID(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).String(),
		Storage:        storage,
		CurrentTokenID: id,
	})
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id: %w", err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeEngineError maps engine sentinel errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, forge.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, forge.ErrUnknownToken):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, forge.ErrInsufficientPayment),
		errors.Is(err, forge.ErrInsufficientAllowance):
		writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, forge.ErrNotYetEligible),
		errors.Is(err, forge.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, forge.ErrInvalidQuantity),
		errors.Is(err, forge.ErrZeroAddress):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

// envOr returns the environment variable value or a default.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
