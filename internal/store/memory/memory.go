package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
	"cedipos/backend/internal/xid"
)

type Store struct {
	mu                   sync.RWMutex
	products             map[string]domain.Product
	productIDByBarcode   map[string]string
	shiftsByID           map[string]domain.Shift
	activeShiftByCashier map[string]string
	salesByID            map[string]*domain.Sale
	stockAudits          []domain.StockAuditEntry
	auditLogs            []domain.AuditLogEntry
	usersByUsername      map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		display  string
		role     string
	}{
		{"admin", adminPwd, "Store Admin", domain.RoleSuperAdmin},
		{"cashier", cashierPwd, "Front Cashier", domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:           xid.New("usr"),
			Username:     u.username,
			PasswordHash: string(hash),
			DisplayName:  u.display,
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:             make(map[string]domain.Product),
		productIDByBarcode:   make(map[string]string),
		shiftsByID:           make(map[string]domain.Shift),
		activeShiftByCashier: make(map[string]string),
		salesByID:            make(map[string]*domain.Sale),
		usersByUsername:      seedUsers(),
	}
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{Barcode: "6001001", Name: "Gari 1kg", Category: "grocery", PriceCents: 1500, Stock: 80, Active: true},
		{Barcode: "6001002", Name: "Milo Sachet", Category: "beverage", PriceCents: 250, Stock: 200, Active: true},
		{Barcode: "6001003", Name: "Voltic Water 750ml", Category: "beverage", PriceCents: 300, Stock: 150, Active: true},
		{Barcode: "6001004", Name: "Fan Milk Vanilla", Category: "dairy", PriceCents: 500, Stock: 60, Active: true},
		{Barcode: "6001005", Name: "Titus Sardine", Category: "grocery", PriceCents: 1200, Stock: 90, Active: true},
		{Barcode: "6001006", Name: "Indomie Chicken", Category: "grocery", PriceCents: 450, Stock: 120, Active: true},
		{Barcode: "6001007", Name: "Frytol Oil 1L", Category: "grocery", PriceCents: 3800, Stock: 40, Active: true},
		{Barcode: "6001008", Name: "Key Soap Bar", Category: "household", PriceCents: 700, Stock: 70, Active: true},
		{Barcode: "6001009", Name: "Sugar 1kg", Category: "grocery", PriceCents: 1900, Stock: 55, Active: true},
		{Barcode: "6001010", Name: "Kalyppo Fruit Drink", Category: "beverage", PriceCents: 350, Stock: 180, Active: true},
	}

	s := New()
	for _, p := range products {
		p.ID = xid.New("prd")
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.productIDByBarcode[p.Barcode] = p.ID
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) ListProductsByCategory(_ context.Context, category string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return out, nil
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	out := make([]string, 0)
	for _, p := range s.products {
		key := strings.ToLower(p.Category)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productIDByBarcode[product.Barcode]; exists {
		return nil, store.ErrDuplicateBarcode
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	s.productIDByBarcode[product.Barcode] = product.ID
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := p
	return &found, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productIDByBarcode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := s.products[id]
	return &p, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.Barcode = existing.Barcode
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) SetStock(_ context.Context, productID string, qty int, audit domain.StockAuditEntry) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	audit.ProductID = p.ID
	audit.Barcode = p.Barcode
	audit.ProductName = p.Name
	audit.BeforeQty = p.Stock
	audit.AfterQty = qty
	audit.Delta = qty - p.Stock
	if audit.ID == "" {
		audit.ID = xid.New("aud")
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	p.Stock = qty
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	s.stockAudits = append(s.stockAudits, audit)
	updated := p
	return &updated, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.activeShiftByCashier[shift.CashierID]; open {
		return nil, store.ErrShiftAlreadyOpen
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	s.shiftsByID[shift.ID] = shift
	s.activeShiftByCashier[shift.CashierID] = shift.ID
	created := shift
	return &created, nil
}

func (s *Store) GetActiveShift(_ context.Context, cashierID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeShiftByCashier[cashierID]
	if !ok {
		return nil, store.ErrNoActiveShift
	}
	shift := s.shiftsByID[id]
	return &shift, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, counted domain.Tender, note string, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrShiftNotOpen
	}
	shift.Status = domain.ShiftStatusClosed
	shift.Counted = counted
	shift.Variance = counted.Sub(shift.Expected)
	shift.Note = note
	shift.EndedAt = &closedAt
	s.shiftsByID[shiftID] = shift
	delete(s.activeShiftByCashier, shift.CashierID)
	closed := shift
	return &closed, nil
}

func (s *Store) AddShiftExpected(_ context.Context, shiftID string, method string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shiftsByID[shiftID]
	if !ok {
		return store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return store.ErrShiftNotOpen
	}
	shift.Expected = shift.Expected.Add(method, amountCents)
	s.shiftsByID[shiftID] = shift
	return nil
}

func (s *Store) ListClosedShifts(_ context.Context, cashierID string, day string, limit int) ([]domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Shift, 0)
	for _, shift := range s.shiftsByID {
		if shift.Status != domain.ShiftStatusClosed {
			continue
		}
		if cashierID != "" && shift.CashierID != cashierID {
			continue
		}
		if day != "" {
			ended := shift.StartedAt
			if shift.EndedAt != nil {
				ended = *shift.EndedAt
			}
			if ended.UTC().Format("2006-01-02") != day {
				continue
			}
		}
		out = append(out, shift)
	}
	slices.SortFunc(out, func(a, b domain.Shift) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CommitSale applies the whole sale atomically under the store lock: every
// line's stock is re-verified against the live quantity, then decremented,
// and the sale plus its per-line audit entries are recorded. If any line
// fails the check nothing is written and the caller gets ErrStockConflict.
// The audits slice carries one template per sale line, in line order; the
// before and after quantities are filled in here from the live stock.
func (s *Store) CommitSale(_ context.Context, sale domain.Sale, audits []domain.StockAuditEntry) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	for _, line := range sale.Lines {
		p, ok := s.products[line.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if p.Stock < line.Qty {
			return nil, store.ErrStockConflict
		}
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}

	for i, line := range sale.Lines {
		p := s.products[line.ProductID]
		before := p.Stock
		p.Stock -= line.Qty
		p.UpdatedAt = now
		s.products[line.ProductID] = p

		audit := domain.StockAuditEntry{Reason: "sale"}
		if i < len(audits) {
			audit = audits[i]
		}
		audit.ProductID = p.ID
		audit.Barcode = p.Barcode
		audit.ProductName = p.Name
		audit.BeforeQty = before
		audit.AfterQty = p.Stock
		audit.Delta = -line.Qty
		audit.SaleID = sale.ID
		if audit.ID == "" {
			audit.ID = xid.New("aud")
		}
		if audit.CreatedAt.IsZero() {
			audit.CreatedAt = now
		}
		s.stockAudits = append(s.stockAudits, audit)
	}

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	return cloneSale(stored), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		out = append(out, *cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// VoidSale marks the sale voided exactly once. When restock is set each
// line's quantity is returned to stock with an audit entry per line, all
// under the same lock as the void itself.
func (s *Store) VoidSale(_ context.Context, id string, reason string, voidedBy string, at time.Time, restock bool, audits []domain.StockAuditEntry) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.IsVoided {
		return nil, store.ErrAlreadyVoided
	}

	sale.IsVoided = true
	sale.VoidReason = reason
	sale.VoidedBy = voidedBy
	voidedAt := at
	sale.VoidedAt = &voidedAt

	if restock {
		for i, line := range sale.Lines {
			p, exists := s.products[line.ProductID]
			if !exists {
				continue
			}
			before := p.Stock
			p.Stock += line.Qty
			p.UpdatedAt = at
			s.products[line.ProductID] = p

			audit := domain.StockAuditEntry{Reason: "void_restock"}
			if i < len(audits) {
				audit = audits[i]
			}
			audit.ProductID = p.ID
			audit.Barcode = p.Barcode
			audit.ProductName = p.Name
			audit.BeforeQty = before
			audit.AfterQty = p.Stock
			audit.Delta = line.Qty
			audit.SaleID = sale.ID
			if audit.ID == "" {
				audit.ID = xid.New("aud")
			}
			if audit.CreatedAt.IsZero() {
				audit.CreatedAt = at
			}
			s.stockAudits = append(s.stockAudits, audit)
		}
	}

	return cloneSale(sale), nil
}

func (s *Store) GetDaySummary(_ context.Context, from time.Time, to time.Time) (domain.DaySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DaySummary{Date: from.UTC().Format("2006-01-02")}
	byMethod := map[string]*domain.DayTenderSummary{}
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		summary.Sales++
		summary.GrossCents += sale.TotalCents
		if sale.IsVoided {
			summary.VoidedSales++
			summary.VoidedCents += sale.TotalCents
			continue
		}
		m, ok := byMethod[sale.PaymentMethod]
		if !ok {
			m = &domain.DayTenderSummary{PaymentMethod: sale.PaymentMethod}
			byMethod[sale.PaymentMethod] = m
		}
		m.Sales++
		m.TotalCents += sale.TotalCents
	}
	summary.NetCents = summary.GrossCents - summary.VoidedCents
	for _, m := range byMethod {
		summary.ByPaymentMethod = append(summary.ByPaymentMethod, *m)
	}
	slices.SortFunc(summary.ByPaymentMethod, func(a, b domain.DayTenderSummary) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})
	return summary, nil
}

func (s *Store) ListStockAudits(_ context.Context, limit int) ([]domain.StockAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestStockAudits(s.stockAudits, "", limit), nil
}

func (s *Store) ListStockAuditsForProduct(_ context.Context, productID string, limit int) ([]domain.StockAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestStockAudits(s.stockAudits, productID, limit), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLogEntry, len(s.auditLogs))
	copy(out, s.auditLogs)
	slices.SortFunc(out, func(a, b domain.AuditLogEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsersByRole(_ context.Context, roles ...string) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0)
	for _, user := range s.usersByUsername {
		if slices.Contains(roles, user.Role) {
			out = append(out, user)
		}
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return out, nil
}

func newestStockAudits(entries []domain.StockAuditEntry, productID string, limit int) []domain.StockAuditEntry {
	out := make([]domain.StockAuditEntry, 0, len(entries))
	for _, e := range entries {
		if productID != "" && e.ProductID != productID {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.StockAuditEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneSale(src *domain.Sale) *domain.Sale {
	out := *src
	out.Lines = make([]domain.SaleLine, len(src.Lines))
	copy(out.Lines, src.Lines)
	if src.VoidedAt != nil {
		at := *src.VoidedAt
		out.VoidedAt = &at
	}
	return &out
}
