package store

import (
	"context"
	"errors"
	"time"

	"pharmapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrFEFOViolation     = errors.New("fefo violation")
)

type Repository interface {
	ListMedicines(ctx context.Context, includeInactive bool) ([]domain.Medicine, error)
	CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error)
	UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	GetMedicinesByIDs(ctx context.Context, ids []string) (map[string]domain.Medicine, error)
	SearchMedicines(ctx context.Context, query string, webOnly bool, limit int) ([]domain.Medicine, error)

	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	GetBatchByID(ctx context.Context, id string) (*domain.Batch, error)
	ListBatches(ctx context.Context, medicineID string, includeDepleted bool, limit int) ([]domain.Batch, error)
	ListLiveBatches(ctx context.Context, medicineID string, asOf time.Time) ([]domain.Batch, error)
	GetStockMap(ctx context.Context, medicineIDs []string, asOf time.Time) (map[string]int, error)

	UpsertExpiryAlert(ctx context.Context, alert domain.ExpiryAlert) (*domain.ExpiryAlert, error)
	UpsertLowStockAlert(ctx context.Context, alert domain.LowStockAlert) (*domain.LowStockAlert, error)
	GetActiveExpiryAlertByBatch(ctx context.Context, batchID string) (*domain.ExpiryAlert, error)
	GetActiveLowStockAlertByMedicine(ctx context.Context, medicineID string) (*domain.LowStockAlert, error)
	ListExpiryAlerts(ctx context.Context, status string, limit int) ([]domain.ExpiryAlert, error)
	ListLowStockAlerts(ctx context.Context, status string, limit int) ([]domain.LowStockAlert, error)
	ResolveExpiryAlert(ctx context.Context, alertID string, at time.Time) (*domain.ExpiryAlert, error)
	ResolveLowStockAlert(ctx context.Context, alertID string, at time.Time) (*domain.LowStockAlert, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	VoidSale(ctx context.Context, id string, reason string, at time.Time) (*domain.Sale, error)
	NextInvoiceNumber(ctx context.Context, day time.Time) (string, error)

	CreateWebOrder(ctx context.Context, order domain.WebOrder) (*domain.WebOrder, error)
	GetWebOrderByID(ctx context.Context, id string) (*domain.WebOrder, error)
	GetWebOrderByNumber(ctx context.Context, orderNumber string) (*domain.WebOrder, error)
	ListWebOrders(ctx context.Context, status string, limit int) ([]domain.WebOrder, error)
	UpdateWebOrderStatus(ctx context.Context, id string, status string, cancelReason string, saleID string, at time.Time) (*domain.WebOrder, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)

	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, status string, limit int) ([]domain.Purchase, error)
	ReceivePurchase(ctx context.Context, id string, receivedBy string, receivedAt time.Time) (*domain.Purchase, error)

	GetSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)

	GetSalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
