package domain

import "time"

type Medicine struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	GenericName        string    `json:"generic_name"`
	Barcode            string    `json:"barcode,omitempty"`
	Manufacturer       string    `json:"manufacturer"`
	Category           string    `json:"category"`
	Classification     string    `json:"classification"`
	UnitPriceCents     int64     `json:"unit_price_cents"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	MRPCents           int64     `json:"mrp_cents"`
	ReorderLevel       int       `json:"reorder_level"`
	ReorderQty         int       `json:"reorder_qty"`
	Unit               string    `json:"unit"`
	RackLocation       string    `json:"rack_location,omitempty"`
	WebLive            bool      `json:"web_live"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type MedicineCreateRequest struct {
	Name               string `json:"name"`
	GenericName        string `json:"generic_name"`
	Barcode            string `json:"barcode"`
	Manufacturer       string `json:"manufacturer"`
	Category           string `json:"category"`
	Classification     string `json:"classification"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	MRPCents           int64  `json:"mrp_cents"`
	ReorderLevel       int    `json:"reorder_level"`
	ReorderQty         int    `json:"reorder_qty"`
	Unit               string `json:"unit"`
	RackLocation       string `json:"rack_location"`
	WebLive            bool   `json:"web_live"`
}

type MedicineUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	GenericName        *string `json:"generic_name,omitempty"`
	Barcode            *string `json:"barcode,omitempty"`
	Manufacturer       *string `json:"manufacturer,omitempty"`
	Category           *string `json:"category,omitempty"`
	Classification     *string `json:"classification,omitempty"`
	UnitPriceCents     *int64  `json:"unit_price_cents,omitempty"`
	PurchasePriceCents *int64  `json:"purchase_price_cents,omitempty"`
	MRPCents           *int64  `json:"mrp_cents,omitempty"`
	ReorderLevel       *int    `json:"reorder_level,omitempty"`
	ReorderQty         *int    `json:"reorder_qty,omitempty"`
	Unit               *string `json:"unit,omitempty"`
	RackLocation       *string `json:"rack_location,omitempty"`
	WebLive            *bool   `json:"web_live,omitempty"`
	Active             *bool   `json:"active,omitempty"`
}

type Batch struct {
	ID                 string     `json:"id"`
	MedicineID         string     `json:"medicine_id"`
	BatchNumber        string     `json:"batch_number"`
	ExpiryDate         *time.Time `json:"expiry_date,omitempty"`
	QtyReceived        int        `json:"qty_received"`
	QtyAvailable       int        `json:"qty_available"`
	PurchasePriceCents int64      `json:"purchase_price_cents"`
	SourceType         string     `json:"source_type"`
	SourceID           string     `json:"source_id,omitempty"`
	ReceivedAt         time.Time  `json:"received_at"`
}

type BatchReceiveRequest struct {
	MedicineID         string `json:"medicine_id"`
	BatchNumber        string `json:"batch_number"`
	ExpiryDate         string `json:"expiry_date,omitempty"`
	Qty                int    `json:"qty"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
}

type BatchListResponse struct {
	Batches []Batch `json:"batches"`
}

type BatchDetailResponse struct {
	Batch       Batch        `json:"batch"`
	ExpiryAlert *ExpiryAlert `json:"expiry_alert,omitempty"`
}

// MedicineStock is the aggregated stock view across live batches.
type MedicineStock struct {
	Medicine       Medicine   `json:"medicine"`
	TotalQty       int        `json:"total_qty"`
	BatchCount     int        `json:"batch_count"`
	EarliestExpiry *time.Time `json:"earliest_expiry,omitempty"`
}

type StockListResponse struct {
	Items []MedicineStock `json:"items"`
}

type BatchAllocation struct {
	BatchID     string     `json:"batch_id"`
	BatchNumber string     `json:"batch_number"`
	Qty         int        `json:"qty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

type FEFOPlanResponse struct {
	MedicineID  string            `json:"medicine_id"`
	Qty         int               `json:"qty"`
	Allocations []BatchAllocation `json:"allocations"`
}

type ExpiryAlert struct {
	ID           string     `json:"id"`
	BatchID      string     `json:"batch_id"`
	MedicineID   string     `json:"medicine_id"`
	MedicineName string     `json:"medicine_name"`
	BatchNumber  string     `json:"batch_number"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
	DaysToExpiry int        `json:"days_to_expiry"`
	Message      string     `json:"message"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

type LowStockAlert struct {
	ID           string     `json:"id"`
	MedicineID   string     `json:"medicine_id"`
	MedicineName string     `json:"medicine_name"`
	Severity     string     `json:"severity"`
	Status       string     `json:"status"`
	StockQty     int        `json:"stock_qty"`
	ReorderLevel int        `json:"reorder_level"`
	ReorderQty   int        `json:"reorder_qty"`
	Message      string     `json:"message"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

type AlertScanResponse struct {
	ExpiryAlerts   []ExpiryAlert   `json:"expiry_alerts"`
	LowStockAlerts []LowStockAlert `json:"low_stock_alerts"`
	ScannedAt      string          `json:"scanned_at"`
}

type AlertSummary struct {
	ExpiredBatches int `json:"expired_batches"`
	CriticalExpiry int `json:"critical_expiry"`
	WarningExpiry  int `json:"warning_expiry"`
	NoticeExpiry   int `json:"notice_expiry"`
	OutOfStock     int `json:"out_of_stock"`
	LowStock       int `json:"low_stock"`
	ActiveAlerts   int `json:"active_alerts"`
}

type SaleLineRequest struct {
	MedicineID      string  `json:"medicine_id"`
	Qty             int     `json:"qty"`
	BatchID         string  `json:"batch_id,omitempty"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxRatePercent  float64 `json:"tax_rate_percent"`
}

type SaleCreateRequest struct {
	IdempotencyKey   string `json:"idempotency_key"`
	CustomerID       string `json:"customer_id,omitempty"`
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference,omitempty"`
	// DiscountPercent and TaxRatePercent apply to lines that carry no
	// rate of their own.
	DiscountPercent   float64           `json:"discount_percent"`
	TaxRatePercent    float64           `json:"tax_rate_percent"`
	CashReceivedCents int64             `json:"cash_received_cents"`
	PharmacistPIN     string            `json:"pharmacist_pin,omitempty"`
	Items             []SaleLineRequest `json:"items"`
}

type SaleItem struct {
	MedicineID         string            `json:"medicine_id"`
	MedicineName       string            `json:"medicine_name"`
	Qty                int               `json:"qty"`
	UnitPriceCents     int64             `json:"unit_price_cents"`
	PurchasePriceCents int64             `json:"purchase_price_cents"`
	GrossCents         int64             `json:"gross_cents"`
	DiscountPercent    float64           `json:"discount_percent"`
	DiscountCents      int64             `json:"discount_cents"`
	TaxRatePercent     float64           `json:"tax_rate_percent"`
	TaxCents           int64             `json:"tax_cents"`
	FEFOOverride       bool              `json:"fefo_override,omitempty"`
	Allocations        []BatchAllocation `json:"allocations"`
}

type Sale struct {
	ID                string     `json:"id"`
	InvoiceNumber     string     `json:"invoice_number"`
	CustomerID        string     `json:"customer_id,omitempty"`
	CashierUsername   string     `json:"cashier_username"`
	IdempotencyKey    string     `json:"-"`
	PaymentMethod     string     `json:"payment_method"`
	PaymentReference  string     `json:"payment_reference,omitempty"`
	SubtotalCents     int64      `json:"subtotal_cents"`
	DiscountPercent   float64    `json:"discount_percent"`
	DiscountCents     int64      `json:"discount_cents"`
	TaxRatePercent    float64    `json:"tax_rate_percent"`
	TaxCents          int64      `json:"tax_cents"`
	TotalCents        int64      `json:"total_cents"`
	ProfitCents       int64      `json:"profit_cents"`
	CashReceivedCents int64      `json:"cash_received_cents"`
	ChangeCents       int64      `json:"change_cents"`
	Status            string     `json:"status"`
	FEFOOverride      bool       `json:"fefo_override"`
	VoidReason        string     `json:"void_reason,omitempty"`
	VoidedAt          *time.Time `json:"voided_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	Items             []SaleItem `json:"items"`
}

type SaleResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type SaleVoidRequest struct {
	SaleID        string `json:"sale_id"`
	Reason        string `json:"reason"`
	PharmacistPIN string `json:"pharmacist_pin"`
}

type SaleVoidResponse struct {
	SaleID   string `json:"sale_id"`
	Status   string `json:"status"`
	VoidedAt string `json:"voided_at"`
}

type CartItem struct {
	MedicineID string `json:"medicine_id"`
	Qty        int    `json:"qty"`
}

type CartQuoteRequest struct {
	Items []CartItem `json:"items"`
}

type CartQuoteLine struct {
	MedicineID     string `json:"medicine_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
	AvailableQty   int    `json:"available_qty"`
	InStock        bool   `json:"in_stock"`
}

type CartQuoteResponse struct {
	Lines             []CartQuoteLine `json:"lines"`
	SubtotalCents     int64           `json:"subtotal_cents"`
	DeliveryFeeCents  int64           `json:"delivery_fee_cents"`
	FreeDelivery      bool            `json:"free_delivery"`
	TotalCents        int64           `json:"total_cents"`
}

type WebOrderCreateRequest struct {
	CustomerName    string     `json:"customer_name"`
	CustomerPhone   string     `json:"customer_phone"`
	DeliveryAddress string     `json:"delivery_address"`
	Note            string     `json:"note,omitempty"`
	Items           []CartItem `json:"items"`
}

type WebOrderItem struct {
	MedicineID     string `json:"medicine_id"`
	MedicineName   string `json:"medicine_name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type WebOrder struct {
	ID               string         `json:"id"`
	OrderNumber      string         `json:"order_number"`
	CustomerName     string         `json:"customer_name"`
	CustomerPhone    string         `json:"customer_phone"`
	DeliveryAddress  string         `json:"delivery_address"`
	Note             string         `json:"note,omitempty"`
	SubtotalCents    int64          `json:"subtotal_cents"`
	DeliveryFeeCents int64          `json:"delivery_fee_cents"`
	TotalCents       int64          `json:"total_cents"`
	Status           string         `json:"status"`
	SaleID           string         `json:"sale_id,omitempty"`
	CancelReason     string         `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Items            []WebOrderItem `json:"items"`
}

type WebOrderResponse struct {
	WebOrder WebOrder `json:"web_order"`
}

type WebOrderListResponse struct {
	WebOrders []WebOrder `json:"web_orders"`
}

type WebOrderStatusRequest struct {
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type PurchaseItem struct {
	MedicineID    string `json:"medicine_id"`
	Qty           int    `json:"qty"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	BatchNumber   string `json:"batch_number"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
}

type Purchase struct {
	ID         string         `json:"id"`
	SupplierID string         `json:"supplier_id"`
	Status     string         `json:"status"`
	TotalCents int64          `json:"total_cents"`
	CreatedAt  time.Time      `json:"created_at"`
	ReceivedAt *time.Time     `json:"received_at,omitempty"`
	ReceivedBy string         `json:"received_by,omitempty"`
	Items      []PurchaseItem `json:"items"`
}

type PurchaseCreateRequest struct {
	SupplierID string         `json:"supplier_id"`
	Items      []PurchaseItem `json:"items"`
}

type PurchaseResponse struct {
	Purchase Purchase `json:"purchase"`
}

type PurchaseListResponse struct {
	Purchases []Purchase `json:"purchases"`
}

type ReorderSuggestion struct {
	MedicineID             string `json:"medicine_id"`
	Name                   string `json:"name"`
	CurrentStock           int    `json:"current_stock"`
	ReorderLevel           int    `json:"reorder_level"`
	RecommendedQty         int    `json:"recommended_qty"`
	LastCostCents          int64  `json:"last_cost_cents"`
	EstimatedPurchaseCents int64  `json:"estimated_purchase_cents"`
}

type ReorderSuggestionResponse struct {
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type Settings struct {
	StoreName                  string    `json:"store_name"`
	FEFOMode                   string    `json:"fefo_mode"`
	ExpiryNoticeDays           int       `json:"expiry_notice_days"`
	ExpiryWarningDays          int       `json:"expiry_warning_days"`
	ExpiryCriticalDays         int       `json:"expiry_critical_days"`
	DefaultTaxRatePercent      float64   `json:"default_tax_rate_percent"`
	WebStoreEnabled            bool      `json:"web_store_enabled"`
	DeliveryFeeCents           int64     `json:"delivery_fee_cents"`
	FreeDeliveryThresholdCents int64     `json:"free_delivery_threshold_cents"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

type SettingsUpdateRequest struct {
	StoreName                  *string  `json:"store_name,omitempty"`
	FEFOMode                   *string  `json:"fefo_mode,omitempty"`
	ExpiryNoticeDays           *int     `json:"expiry_notice_days,omitempty"`
	ExpiryWarningDays          *int     `json:"expiry_warning_days,omitempty"`
	ExpiryCriticalDays         *int     `json:"expiry_critical_days,omitempty"`
	DefaultTaxRatePercent      *float64 `json:"default_tax_rate_percent,omitempty"`
	WebStoreEnabled            *bool    `json:"web_store_enabled,omitempty"`
	DeliveryFeeCents           *int64   `json:"delivery_fee_cents,omitempty"`
	FreeDeliveryThresholdCents *int64   `json:"free_delivery_threshold_cents,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type SalesReportPayment struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalCents    int64  `json:"total_cents"`
}

type SalesReportTopItem struct {
	MedicineID string `json:"medicine_id"`
	Name       string `json:"name"`
	QtySold    int    `json:"qty_sold"`
	TotalCents int64  `json:"total_cents"`
}

type SalesReport struct {
	Date            string               `json:"date"`
	Sales           int64                `json:"sales"`
	GrossSalesCents int64                `json:"gross_sales_cents"`
	DiscountCents   int64                `json:"discount_cents"`
	TaxCents        int64                `json:"tax_cents"`
	NetSalesCents   int64                `json:"net_sales_cents"`
	ProfitCents     int64                `json:"profit_cents"`
	WebOrders       int64                `json:"web_orders"`
	WebOrderCents   int64                `json:"web_order_cents"`
	ByPayment       []SalesReportPayment `json:"by_payment"`
	TopItems        []SalesReportTopItem `json:"top_items"`
}

type ExpiryRiskRow struct {
	BatchID      string `json:"batch_id"`
	BatchNumber  string `json:"batch_number"`
	MedicineID   string `json:"medicine_id"`
	MedicineName string `json:"medicine_name"`
	ExpiryDate   string `json:"expiry_date"`
	DaysToExpiry int    `json:"days_to_expiry"`
	QtyAvailable int    `json:"qty_available"`
	ValueCents   int64  `json:"value_cents"`
}

// ExpiryRiskReport groups live stock by how close it is to expiry.
type ExpiryRiskReport struct {
	GeneratedAt string          `json:"generated_at"`
	Expired     []ExpiryRiskRow `json:"expired"`
	Critical    []ExpiryRiskRow `json:"critical"`
	Warning     []ExpiryRiskRow `json:"warning"`
	Notice      []ExpiryRiskRow `json:"notice"`
}

type DashboardResponse struct {
	TodaySalesCents  int64        `json:"today_sales_cents"`
	TodaySalesCount  int64        `json:"today_sales_count"`
	TodayProfitCents int64        `json:"today_profit_cents"`
	PendingWebOrders int          `json:"pending_web_orders"`
	AlertSummary     AlertSummary `json:"alert_summary"`
	GeneratedAt      string       `json:"generated_at"`
}

type ImportRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type ImportResult struct {
	Imported  int              `json:"imported"`
	Skipped   int              `json:"skipped"`
	RowErrors []ImportRowError `json:"row_errors,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
	RoleCashier    = "cashier"
)

const (
	ClassificationOTC          = "otc"
	ClassificationPrescription = "prescription"
	ClassificationControlled   = "controlled"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusVoided    = "voided"
)

const (
	WebOrderStatusPending   = "pending"
	WebOrderStatusConfirmed = "confirmed"
	WebOrderStatusDelivered = "delivered"
	WebOrderStatusCancelled = "cancelled"
)

const (
	PurchaseStatusOrdered   = "ordered"
	PurchaseStatusReceived  = "received"
	PurchaseStatusCancelled = "cancelled"
)

const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

const (
	ExpirySeverityNotice   = "notice"
	ExpirySeverityWarning  = "warning"
	ExpirySeverityCritical = "critical"
	ExpirySeverityExpired  = "expired"
)

const (
	LowStockSeverityLow        = "low"
	LowStockSeverityOutOfStock = "out_of_stock"
)

const (
	FEFOModeStrict  = "strict"
	FEFOModeSuggest = "suggest"
)

const (
	BatchSourcePurchase = "purchase"
	BatchSourceManual   = "manual"
	BatchSourceSaleVoid = "sale_void"
)
