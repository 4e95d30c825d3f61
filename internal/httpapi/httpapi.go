package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"tokokasir/backend/internal/cart"
	"tokokasir/backend/internal/catalog"
	"tokokasir/backend/internal/checkout"
	"tokokasir/backend/internal/domain"
	"tokokasir/backend/internal/insight"
	"tokokasir/backend/internal/ledger"
)

// ProductArchiver persists product state after mutations. Archive
// failures are logged, never surfaced to the terminal.
type ProductArchiver interface {
	SaveProduct(ctx context.Context, p domain.Product) error
}

type API struct {
	storeID       string
	catalog       *catalog.Catalog
	ledger        *ledger.Ledger
	engine        *checkout.Engine
	insights      *insight.Service
	sessions      *cartSessions
	archive       ProductArchiver
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *log.Logger
}

func New(storeID string, cat *catalog.Catalog, led *ledger.Ledger, engine *checkout.Engine, insights *insight.Service, archive ProductArchiver, auth *AuthManager, allowedOrigin string, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{
		storeID:       storeID,
		catalog:       cat,
		ledger:        led,
		engine:        engine,
		insights:      insights,
		sessions:      newCartSessions(cat),
		archive:       archive,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/items", a.requireAuth(a.handleCartItems, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/items/", a.requireAuth(a.handleCartItemActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/checkout/quote", a.requireAuth(a.handleQuote, "cashier", "admin"))
	mux.HandleFunc("/api/v1/checkout", a.requireAuth(a.handleCheckout, "cashier", "admin"))
	mux.HandleFunc("/api/v1/receipts/", a.requireAuth(a.handleReceipt, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "admin"))
	mux.HandleFunc("/api/v1/insights/summary", a.requireAuth(a.handleSummary, "admin"))
	mux.HandleFunc("/api/v1/insights/top-products", a.requireAuth(a.handleTopProducts, "admin"))
	mux.HandleFunc("/api/v1/insights/rollup", a.requireAuth(a.handleRollup, "admin"))

	return a.withMiddleware(mux)
}

type contextKey string

const actorKey contextKey = "actor"

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		category := r.URL.Query().Get("category")
		writeJSON(w, http.StatusOK, map[string]any{
			"products":   a.catalog.ListByCategory(category),
			"categories": a.catalog.Categories(),
		})
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var req domain.ProductUpsertRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product := domain.Product{
			ID:       req.ID,
			Name:     req.Name,
			Price:    req.Price,
			Stock:    req.Stock,
			Category: req.Category,
			Barcode:  req.Barcode,
			ImageURL: req.ImageURL,
		}
		if err := a.catalog.Upsert(product); err != nil {
			writeDomainError(w, err)
			return
		}
		a.archiveProduct(r.Context(), product.ID)
		stored, err := a.catalog.GetByID(strings.TrimSpace(product.ID))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": stored})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleProductActions serves /api/v1/products/{id}, .../barcode/{code}
// and .../{id}/stock.
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), "/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing product id"))
		return
	}
	parts := strings.Split(tail, "/")

	switch {
	case parts[0] == "barcode" && len(parts) == 2:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		product, err := a.catalog.GetByBarcode(parts[1])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		product, err := a.catalog.GetByID(parts[0])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case len(parts) == 2 && parts[1] == "restock":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		if !a.requireAdmin(w, r) {
			return
		}
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.catalog.IncreaseStock(parts[0], req.Quantity); err != nil {
			writeDomainError(w, err)
			return
		}
		a.archiveProduct(r.Context(), parts[0])
		product, err := a.catalog.GetByID(parts[0])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case len(parts) == 2 && parts[1] == "stock":
		if r.Method != http.MethodPatch && r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		if !a.requireAdmin(w, r) {
			return
		}
		var req domain.SetStockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.catalog.SetStock(parts[0], req.Stock); err != nil {
			writeDomainError(w, err)
			return
		}
		a.archiveProduct(r.Context(), parts[0])
		product, err := a.catalog.GetByID(parts[0])
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown product action"))
	}
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	crt, terminalID := a.sessions.get(r.URL.Query().Get("terminal_id"))
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, cartViewPayload(crt, terminalID))
	case http.MethodDelete:
		crt.Clear()
		writeJSON(w, http.StatusOK, cartViewPayload(crt, terminalID))
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CartAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	crt, terminalID := a.sessions.get(req.TerminalID)
	if _, err := crt.AddItem(req.ProductID, req.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartViewPayload(crt, terminalID))
}

// handleCartItemActions serves /api/v1/cart/items/{productID}.
func (a *API) handleCartItemActions(w http.ResponseWriter, r *http.Request) {
	productID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/cart/items/"), "/")
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing product id"))
		return
	}

	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		var req domain.CartSetQuantityRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		crt, terminalID := a.sessions.get(req.TerminalID)
		if err := crt.SetQuantity(productID, req.Quantity); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cartViewPayload(crt, terminalID))
	case http.MethodDelete:
		crt, terminalID := a.sessions.get(r.URL.Query().Get("terminal_id"))
		crt.RemoveItem(productID)
		writeJSON(w, http.StatusOK, cartViewPayload(crt, terminalID))
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	crt, terminalID := a.sessions.get(r.URL.Query().Get("terminal_id"))
	quote := checkout.Quote(crt.Lines())
	writeJSON(w, http.StatusOK, map[string]any{
		"terminal_id": terminalID,
		"quote":       quote,
	})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	crt, terminalID := a.sessions.get(req.TerminalID)
	req.TerminalID = terminalID

	cashierName := ""
	if actor, ok := actorFromContext(r.Context()); ok {
		cashierName = actor.Username
	}

	lines := crt.Lines()
	resp, err := a.engine.Confirm(r.Context(), crt, req, cashierName)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	for _, line := range lines {
		a.archiveProduct(r.Context(), line.ProductID)
	}
	a.insights.OnSaleConfirmed(r.Context())
	writeJSON(w, http.StatusCreated, resp)
}

// handleReceipt serves /api/v1/receipts/{saleID}.
func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	saleID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/receipts/"), "/")
	rcpt, err := a.engine.Receipt(saleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	records := a.ledger.All()
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sales": records,
		"total": a.ledger.Len(),
	})
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
		day = parsed
	}
	writeJSON(w, http.StatusOK, a.insights.DailySummary(r.Context(), day))
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("from must be YYYY-MM-DD"))
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("to must be YYYY-MM-DD"))
			return
		}
		// Include the whole "to" day.
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 5, 50)
	writeJSON(w, http.StatusOK, a.insights.TopProducts(r.Context(), from, to, limit))
}

func (a *API) handleRollup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		period = "day"
	}
	rollup, err := a.insights.Rollup(r.Context(), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := actorFromContext(r.Context())
	if !ok || actor.Role != "admin" {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return false
	}
	return true
}

func (a *API) archiveProduct(ctx context.Context, productID string) {
	if a.archive == nil {
		return
	}
	product, err := a.catalog.GetByID(productID)
	if err != nil {
		return
	}
	if err := a.archive.SaveProduct(ctx, product); err != nil {
		a.logger.Printf("[httpapi] archive product %s failed: %v", productID, err)
	}
}

func cartViewPayload(crt *cart.Cart, terminalID string) domain.CartView {
	view := crt.View()
	view.TerminalID = terminalID
	return view
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// writeDomainError maps domain sentinels to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrValidation),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrUnknownPayment),
		errors.Is(err, insight.ErrUnknownPeriod):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrNotInCart),
		errors.Is(err, checkout.ErrSaleNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, checkout.ErrStockChanged):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, checkout.ErrInsufficientPayment):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log, not on the wire.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
