package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
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
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	// Public storefront. No auth; the service returns not-found for every
	// endpoint while the web store is disabled.
	mux.HandleFunc("/api/v1/shop/catalog", a.handleShopCatalog)
	mux.HandleFunc("/api/v1/shop/quote", a.handleShopQuote)
	mux.HandleFunc("/api/v1/shop/orders", a.handleShopOrders)
	mux.HandleFunc("/api/v1/shop/orders/track", a.handleShopOrderTrack)

	mux.HandleFunc("/api/v1/medicines", a.requireAuth(a.handleMedicines, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/medicines/", a.requireAuth(a.handleMedicineActions, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/batches", a.requireAuth(a.handleBatches, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/batches/", a.requireAuth(a.handleBatchActions, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/batches/export", a.requireAuth(a.handleBatchExport, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/stock", a.requireAuth(a.handleStock, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/fefo-plan", a.requireAuth(a.handleFEFOPlan, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, "cashier", "pharmacist", "admin"))

	mux.HandleFunc("/api/v1/alerts/scan", a.requireAuth(a.handleAlertScan, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/alerts/summary", a.requireAuth(a.handleAlertSummary, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/alerts/expiry", a.requireAuth(a.handleExpiryAlerts, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/alerts/expiry/", a.requireAuth(a.handleExpiryAlertActions, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/alerts/low-stock", a.requireAuth(a.handleLowStockAlerts, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/alerts/low-stock/", a.requireAuth(a.handleLowStockAlertActions, "pharmacist", "admin"))

	mux.HandleFunc("/api/v1/web-orders", a.requireAuth(a.handleWebOrders, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/web-orders/", a.requireAuth(a.handleWebOrderActions, "pharmacist", "admin"))

	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, "admin"))
	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/purchases/", a.requireAuth(a.handlePurchaseActions, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/reorder-suggestions", a.requireAuth(a.handleReorderSuggestions, "pharmacist", "admin"))

	mux.HandleFunc("/api/v1/reports/sales", a.requireAuth(a.handleSalesReport, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/reports/expiry-risk", a.requireAuth(a.handleExpiryRiskReport, "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/dashboard", a.requireAuth(a.handleDashboard, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/settings", a.requireAuth(a.handleSettings, "cashier", "pharmacist", "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))
	mux.HandleFunc("/api/v1/users/staff", a.requireAuth(a.handleStaff, "admin"))

	return a.withMiddleware(mux)
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

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
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

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
// Login is excluded because it is called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods (POST/PUT/PATCH).
// The public storefront tree is exempt: shoppers do not hold a session and all
// order mutations are re-validated server side. Returns false and writes an
// error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	if strings.HasPrefix(r.URL.Path, "/api/v1/shop/") {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleShopCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query().Get("q")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)

	medicines, err := a.service.StorefrontCatalog(r.Context(), query, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
}

func (a *API) handleShopQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CartQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.QuoteCart(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShopOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.WebOrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.PlaceWebOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.WebOrderResponse{WebOrder: order})
}

func (a *API) handleShopOrderTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	orderNumber := strings.TrimSpace(r.URL.Query().Get("order_number"))
	if orderNumber == "" {
		writeError(w, http.StatusBadRequest, errors.New("order_number required"))
		return
	}

	order, err := a.service.TrackWebOrder(r.Context(), orderNumber)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.WebOrderResponse{WebOrder: order})
}

func (a *API) handleMedicines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query != "" {
			limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
			medicines, err := a.service.SearchMedicines(r.Context(), query, limit)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
			return
		}
		includeInactive := strings.EqualFold(r.URL.Query().Get("include_inactive"), "true")
		medicines, err := a.service.ListMedicines(r.Context(), includeInactive)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicines": medicines})
	case http.MethodPost:
		var req domain.MedicineCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		medicine, err := a.service.CreateMedicine(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"medicine": medicine})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleMedicineActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/medicines/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid medicine action path"))
		return
	}

	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("medicine id required"))
		return
	}

	switch tail {
	case "import":
		a.handleMedicineImport(w, r)
		return
	case "export":
		a.handleMedicineExport(w, r)
		return
	case "template":
		a.handleMedicineTemplate(w, r)
		return
	}

	if strings.HasSuffix(tail, "/batches") {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		medicineID := strings.Trim(strings.TrimSuffix(tail, "/batches"), "/")
		if medicineID == "" {
			writeError(w, http.StatusBadRequest, errors.New("medicine id required"))
			return
		}
		includeDepleted := strings.EqualFold(r.URL.Query().Get("include_depleted"), "true")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		batches, err := a.service.ListBatches(r.Context(), medicineID, includeDepleted, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.BatchListResponse{Batches: batches})
		return
	}

	switch r.Method {
	case http.MethodGet:
		medicine, err := a.service.GetMedicine(r.Context(), tail)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicine": medicine})
	case http.MethodPatch:
		var req domain.MedicineUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		updated, err := a.service.UpdateMedicine(r.Context(), tail, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"medicine": updated})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleMedicineImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	result, err := a.service.ImportMedicines(r.Context(), r.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleMedicineExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="medicines.csv"`)
	if err := a.service.ExportMedicines(r.Context(), w); err != nil {
		log.Printf("medicine export failed: %v", err)
	}
}

func (a *API) handleMedicineTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="medicines-template.csv"`)
	if err := a.service.WriteMedicineTemplate(w); err != nil {
		log.Printf("medicine template failed: %v", err)
	}
}

func (a *API) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		medicineID := strings.TrimSpace(r.URL.Query().Get("medicine_id"))
		includeDepleted := strings.EqualFold(r.URL.Query().Get("include_depleted"), "true")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 200, 500)

		batches, err := a.service.ListBatches(r.Context(), medicineID, includeDepleted, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.BatchListResponse{Batches: batches})
	case http.MethodPost:
		var req domain.BatchReceiveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		batch, err := a.service.ReceiveBatch(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"batch": batch})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBatchActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/batches/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("batch id required"))
		return
	}

	detail, err := a.service.GetBatch(r.Context(), tail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleBatchExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	includeDepleted := strings.EqualFold(r.URL.Query().Get("include_depleted"), "true")
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="batches.csv"`)
	if err := a.service.ExportBatches(r.Context(), w, includeDepleted); err != nil {
		log.Printf("batch export failed: %v", err)
	}
}

func (a *API) handleStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	items, err := a.service.StockOverview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.StockListResponse{Items: items})
}

func (a *API) handleFEFOPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	medicineID := strings.TrimSpace(r.URL.Query().Get("medicine_id"))
	qty, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("qty")))
	if medicineID == "" || err != nil || qty < 1 {
		writeError(w, http.StatusBadRequest, errors.New("medicine_id and positive qty required"))
		return
	}

	plan, err := a.service.FEFOPlan(r.Context(), medicineID, qty)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		from, to, err := dayRange(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

		sales, err := a.service.ListSales(r.Context(), from, to, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.SaleListResponse{Sales: sales})
	case http.MethodPost:
		var req domain.SaleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(req.PharmacistPIN) != "" && !a.pinLimiter.Allow("pin:sale:"+clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many pharmacist pin attempts"))
			return
		}

		resp, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrFEFOViolation):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, store.ErrInsufficientStock):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, err)
			case errors.Is(err, store.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, err)
			default:
				writeServiceError(w, err)
			}
			return
		}

		status := http.StatusCreated
		if resp.Duplicate {
			status = http.StatusOK
		}
		writeJSON(w, status, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/sales/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid sale action path"))
		return
	}

	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	if strings.HasSuffix(tail, "/void") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		saleID := strings.Trim(strings.TrimSuffix(tail, "/void"), "/")
		if saleID == "" {
			writeError(w, http.StatusBadRequest, errors.New("sale id required"))
			return
		}

		var req domain.SaleVoidRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req.SaleID = saleID

		resp, err := a.service.VoidSale(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	sale, err := a.service.GetSale(r.Context(), tail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleAlertScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.ScanAlerts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAlertSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	summary, err := a.service.AlertSummary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleExpiryAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	alerts, err := a.service.ListExpiryAlerts(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleExpiryAlertActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/alerts/expiry/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/resolve") {
		writeError(w, http.StatusBadRequest, errors.New("invalid alert action path"))
		return
	}
	alertID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/resolve")
	alertID = strings.TrimSpace(strings.Trim(alertID, "/"))
	if alertID == "" {
		writeError(w, http.StatusBadRequest, errors.New("alert id required"))
		return
	}

	alert, err := a.service.ResolveExpiryAlert(r.Context(), alertID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

func (a *API) handleLowStockAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	alerts, err := a.service.ListLowStockAlerts(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleLowStockAlertActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	prefix := "/api/v1/alerts/low-stock/"
	if !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/resolve") {
		writeError(w, http.StatusBadRequest, errors.New("invalid alert action path"))
		return
	}
	alertID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/resolve")
	alertID = strings.TrimSpace(strings.Trim(alertID, "/"))
	if alertID == "" {
		writeError(w, http.StatusBadRequest, errors.New("alert id required"))
		return
	}

	alert, err := a.service.ResolveLowStockAlert(r.Context(), alertID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

func (a *API) handleWebOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	orders, err := a.service.ListWebOrders(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.WebOrderListResponse{WebOrders: orders})
}

func (a *API) handleWebOrderActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/web-orders/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid web order action path"))
		return
	}

	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("web order id required"))
		return
	}

	if strings.HasSuffix(tail, "/status") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		orderID := strings.Trim(strings.TrimSuffix(tail, "/status"), "/")
		if orderID == "" {
			writeError(w, http.StatusBadRequest, errors.New("web order id required"))
			return
		}

		var req domain.WebOrderStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		order, err := a.service.UpdateWebOrderStatus(r.Context(), orderID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.WebOrderResponse{WebOrder: order})
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	order, err := a.service.GetWebOrder(r.Context(), tail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.WebOrderResponse{WebOrder: order})
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		purchases, err := a.service.ListPurchases(r.Context(), status, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.PurchaseListResponse{Purchases: purchases})
	case http.MethodPost:
		var req domain.PurchaseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		purchase, err := a.service.CreatePurchase(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, domain.PurchaseResponse{Purchase: purchase})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/purchases/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid purchase action path"))
		return
	}

	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("purchase id required"))
		return
	}

	if strings.HasSuffix(tail, "/receive") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		purchaseID := strings.Trim(strings.TrimSuffix(tail, "/receive"), "/")
		if purchaseID == "" {
			writeError(w, http.StatusBadRequest, errors.New("purchase id required"))
			return
		}

		purchase, err := a.service.ReceivePurchase(r.Context(), purchaseID)
		if err != nil {
			// Receiving twice is a state conflict, not a malformed request.
			if errors.Is(err, store.ErrInvalidInput) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.PurchaseResponse{Purchase: purchase})
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	purchase, err := a.service.GetPurchase(r.Context(), tail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.PurchaseResponse{Purchase: purchase})
}

func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.ReorderSuggestions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	report, err := a.service.SalesReportForDate(r.Context(), date)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-report-%s.csv\"", report.Date))
		_, _ = w.Write([]byte(salesReportToCSV(report)))
	case "xlsx":
		data, err := salesReportToXLSX(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-report-%s.xlsx\"", report.Date))
		_, _ = w.Write(data)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleExpiryRiskReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	report, err := a.service.ExpiryRiskReport(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="expiry-risk.csv"`)
		_, _ = w.Write([]byte(expiryRiskToCSV(report)))
	case "xlsx":
		data, err := expiryRiskToXLSX(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="expiry-risk.xlsx"`)
		_, _ = w.Write(data)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := a.service.GetSettings(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPatch:
		var req domain.SettingsUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		settings, err := a.service.UpdateSettings(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := dayRange(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleStaff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		staff := a.auth.ListStaff()
		writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
	case http.MethodPost:
		var req domain.StaffCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		user, err := a.auth.CreateStaff(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func salesReportToCSV(report domain.SalesReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,sales,%d", report.Sales),
		fmt.Sprintf("summary,gross_sales_cents,%d", report.GrossSalesCents),
		fmt.Sprintf("summary,discount_cents,%d", report.DiscountCents),
		fmt.Sprintf("summary,tax_cents,%d", report.TaxCents),
		fmt.Sprintf("summary,net_sales_cents,%d", report.NetSalesCents),
		fmt.Sprintf("summary,profit_cents,%d", report.ProfitCents),
		fmt.Sprintf("summary,web_orders,%d", report.WebOrders),
		fmt.Sprintf("summary,web_order_cents,%d", report.WebOrderCents),
	}
	for _, payment := range report.ByPayment {
		lines = append(lines, fmt.Sprintf("payment,%s_sales,%d", payment.PaymentMethod, payment.Sales))
		lines = append(lines, fmt.Sprintf("payment,%s_total_cents,%d", payment.PaymentMethod, payment.TotalCents))
	}
	for _, item := range report.TopItems {
		lines = append(lines, fmt.Sprintf("top_item,%s_qty,%d", item.MedicineID, item.QtySold))
		lines = append(lines, fmt.Sprintf("top_item,%s_total_cents,%d", item.MedicineID, item.TotalCents))
	}
	return strings.Join(lines, "\n") + "\n"
}

func expiryRiskToCSV(report domain.ExpiryRiskReport) string {
	lines := []string{"level,medicine,batch_number,expiry_date,days_to_expiry,qty_available,value_cents"}
	appendRows := func(level string, rows []domain.ExpiryRiskRow) {
		for _, row := range rows {
			lines = append(lines, fmt.Sprintf("%s,%s,%s,%s,%d,%d,%d",
				level, row.MedicineName, row.BatchNumber, row.ExpiryDate,
				row.DaysToExpiry, row.QtyAvailable, row.ValueCents))
		}
	}
	appendRows(domain.ExpirySeverityExpired, report.Expired)
	appendRows(domain.ExpirySeverityCritical, report.Critical)
	appendRows(domain.ExpirySeverityWarning, report.Warning)
	appendRows(domain.ExpirySeverityNotice, report.Notice)
	return strings.Join(lines, "\n") + "\n"
}

func expiryRiskToXLSX(report domain.ExpiryRiskReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	rows := [][]interface{}{
		{"Expiry Risk Report", report.GeneratedAt},
	}
	appendGroup := func(title string, group []domain.ExpiryRiskRow) {
		rows = append(rows, []interface{}{}, []interface{}{title},
			[]interface{}{"Medicine", "Batch", "Expiry", "Days", "Qty", "Value (cents)"})
		for _, row := range group {
			rows = append(rows, []interface{}{
				row.MedicineName, row.BatchNumber, row.ExpiryDate,
				row.DaysToExpiry, row.QtyAvailable, row.ValueCents,
			})
		}
	}
	appendGroup("Expired", report.Expired)
	appendGroup("Critical", report.Critical)
	appendGroup("Warning", report.Warning)
	appendGroup("Notice", report.Notice)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func salesReportToXLSX(report domain.SalesReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	rows := [][]interface{}{
		{"Sales Report", report.Date},
		{},
		{"Sales", report.Sales},
		{"Gross (cents)", report.GrossSalesCents},
		{"Discount (cents)", report.DiscountCents},
		{"Tax (cents)", report.TaxCents},
		{"Net (cents)", report.NetSalesCents},
		{"Profit (cents)", report.ProfitCents},
		{"Web orders", report.WebOrders},
		{"Web order total (cents)", report.WebOrderCents},
		{},
		{"Payment method", "Sales", "Total (cents)"},
	}
	for _, payment := range report.ByPayment {
		rows = append(rows, []interface{}{payment.PaymentMethod, payment.Sales, payment.TotalCents})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Medicine", "Qty sold", "Total (cents)"})
	for _, item := range report.TopItems {
		rows = append(rows, []interface{}{item.Name, item.QtySold, item.TotalCents})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
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

// dayRange resolves a YYYY-MM-DD query value to a UTC day window.
// An empty value means today.
func dayRange(raw string) (time.Time, time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		now := time.Now().UTC()
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 0, 1), nil
	}
	day, err := time.ParseInLocation("2006-01-02", trimmed, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("date must be formatted YYYY-MM-DD")
	}
	return day, day.AddDate(0, 0, 1), nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError maps service and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrFEFOViolation):
		status = http.StatusConflict
	default:
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "role required") || strings.Contains(msg, "authentication required") {
			status = http.StatusForbidden
		}
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
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
