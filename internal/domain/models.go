package domain

import "time"

type Product struct {
	ID         string    `json:"id"`
	Barcode    string    `json:"barcode"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Barcode    string `json:"barcode"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type ProductListResponse struct {
	Products []Product `json:"products"`
}

type CartLine struct {
	ProductID      string `json:"product_id"`
	Barcode        string `json:"barcode"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

func (l CartLine) LineTotalCents() int64 {
	return l.UnitPriceCents * int64(l.Qty)
}

type CartResponse struct {
	Lines      []CartLine `json:"lines"`
	TotalCents int64      `json:"total_cents"`
	ItemCount  int        `json:"item_count"`
}

type CartAddRequest struct {
	Barcode   string `json:"barcode,omitempty"`
	ProductID string `json:"product_id,omitempty"`
}

type CartSetQtyRequest struct {
	Qty int `json:"qty"`
}

// Tender groups monetary amounts by payment method. All fields are cents.
type Tender struct {
	CashCents int64 `json:"cash_cents"`
	MomoCents int64 `json:"momo_cents"`
	CardCents int64 `json:"card_cents"`
}

func (t Tender) TotalCents() int64 {
	return t.CashCents + t.MomoCents + t.CardCents
}

func (t Tender) Add(method string, amountCents int64) Tender {
	switch method {
	case PaymentMethodCash:
		t.CashCents += amountCents
	case PaymentMethodMomo:
		t.MomoCents += amountCents
	case PaymentMethodCard:
		t.CardCents += amountCents
	}
	return t
}

func (t Tender) Sub(other Tender) Tender {
	return Tender{
		CashCents: t.CashCents - other.CashCents,
		MomoCents: t.MomoCents - other.MomoCents,
		CardCents: t.CardCents - other.CardCents,
	}
}

type Shift struct {
	ID                string     `json:"id"`
	CashierID         string     `json:"cashier_id"`
	CashierName       string     `json:"cashier_name"`
	Status            string     `json:"status"`
	OpeningFloatCents int64      `json:"opening_float_cents"`
	Expected          Tender     `json:"expected"`
	Counted           Tender     `json:"counted"`
	Variance          Tender     `json:"variance"`
	Note              string     `json:"note,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

type ShiftStartRequest struct {
	OpeningFloatCents int64 `json:"opening_float_cents"`
}

type ShiftEndRequest struct {
	Counted Tender `json:"counted"`
	Note    string `json:"note"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type ShiftListResponse struct {
	Shifts []Shift `json:"shifts"`
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	Barcode        string `json:"barcode"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID              string     `json:"id"`
	InvoiceNumber   string     `json:"invoice_number"`
	CashierID       string     `json:"cashier_id"`
	CashierName     string     `json:"cashier_name"`
	ShiftID         string     `json:"shift_id"`
	Lines           []SaleLine `json:"lines"`
	TotalCents      int64      `json:"total_cents"`
	PaymentMethod   string     `json:"payment_method"`
	AmountPaidCents int64      `json:"amount_paid_cents"`
	ChangeCents     int64      `json:"change_cents"`
	IsVoided        bool       `json:"is_voided"`
	VoidReason      string     `json:"void_reason,omitempty"`
	VoidedBy        string     `json:"voided_by,omitempty"`
	VoidedAt        *time.Time `json:"voided_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type CommitSaleRequest struct {
	PaymentMethod   string `json:"payment_method"`
	AmountPaidCents int64  `json:"amount_paid_cents"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type VoidSaleRequest struct {
	Reason        string `json:"reason"`
	AdminPassword string `json:"admin_password"`
}

type VoidSaleResponse struct {
	SaleID   string `json:"sale_id"`
	VoidedAt string `json:"voided_at"`
}

type StockAdjustRequest struct {
	NewQty int    `json:"new_qty"`
	Reason string `json:"reason"`
}

type StockAuditEntry struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Barcode     string    `json:"barcode"`
	ProductName string    `json:"product_name"`
	BeforeQty   int       `json:"before_qty"`
	AfterQty    int       `json:"after_qty"`
	Delta       int       `json:"delta"`
	ChangedBy   string    `json:"changed_by"`
	Role        string    `json:"role"`
	Reason      string    `json:"reason"`
	SaleID      string    `json:"sale_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type StockAuditListResponse struct {
	Entries []StockAuditEntry `json:"entries"`
}

type AuditLogEntry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	Role       string    `json:"role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditLogListResponse struct {
	Entries []AuditLogEntry `json:"entries"`
}

type DayTenderSummary struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalCents    int64  `json:"total_cents"`
}

type DaySummary struct {
	Date             string             `json:"date"`
	Sales            int64              `json:"sales"`
	GrossCents       int64              `json:"gross_cents"`
	VoidedSales      int64              `json:"voided_sales"`
	VoidedCents      int64              `json:"voided_cents"`
	NetCents         int64              `json:"net_cents"`
	ByPaymentMethod  []DayTenderSummary `json:"by_payment_method"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Username     string
	PasswordHash string
	DisplayName  string
	Role         string
	Active       bool
	CreatedAt    time.Time
}

type Actor struct {
	ID       string
	Username string
	Role     string
}

const (
	RoleCashier    = "cashier"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

const (
	PaymentMethodCash = "cash"
	PaymentMethodMomo = "momo"
	PaymentMethodCard = "card"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)
