package store

import (
	"context"
	"errors"
	"time"

	"cedipos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockConflict     = errors.New("stock changed concurrently")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrShiftAlreadyOpen  = errors.New("shift already open")
	ErrNoActiveShift     = errors.New("no active shift")
	ErrShiftNotOpen      = errors.New("shift is not open")
	ErrAlreadyVoided     = errors.New("sale already voided")
	ErrBadCredential     = errors.New("bad credential")
	ErrReasonRequired    = errors.New("reason required")
	ErrDuplicateBarcode  = errors.New("duplicate barcode")
	ErrInvalidInput      = errors.New("invalid input")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListProductsByCategory(ctx context.Context, category string) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetStock(ctx context.Context, productID string, qty int, audit domain.StockAuditEntry) (*domain.Product, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetActiveShift(ctx context.Context, cashierID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, shiftID string, counted domain.Tender, note string, closedAt time.Time) (*domain.Shift, error)
	AddShiftExpected(ctx context.Context, shiftID string, method string, amountCents int64) error
	ListClosedShifts(ctx context.Context, cashierID string, day string, limit int) ([]domain.Shift, error)

	CommitSale(ctx context.Context, sale domain.Sale, audits []domain.StockAuditEntry) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	VoidSale(ctx context.Context, id string, reason string, voidedBy string, at time.Time, restock bool, audits []domain.StockAuditEntry) (*domain.Sale, error)
	GetDaySummary(ctx context.Context, from time.Time, to time.Time) (domain.DaySummary, error)

	ListStockAudits(ctx context.Context, limit int) ([]domain.StockAuditEntry, error)
	ListStockAuditsForProduct(ctx context.Context, productID string, limit int) ([]domain.StockAuditEntry, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsersByRole(ctx context.Context, roles ...string) ([]domain.UserAccount, error)
}
