package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cedipos/backend/internal/cart"
	"cedipos/backend/internal/catalog"
	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
	"cedipos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	catalog       *catalog.Service
	carts         *cart.Registry
	restockOnVoid bool
}

func New(repo store.Repository, cat *catalog.Service, restockOnVoid bool) *Service {
	if cat == nil {
		cat = catalog.New(repo, nil)
	}
	return &Service{
		repo:          repo,
		catalog:       cat,
		carts:         cart.NewRegistry(),
		restockOnVoid: restockOnVoid,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.catalog.List(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	return s.catalog.Search(ctx, query)
}

func (s *Service) ProductsByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	return s.catalog.ListByCategory(ctx, category)
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.catalog.Categories(ctx)
}

func (s *Service) ProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	p, err := s.catalog.LookupByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))

	if req.Barcode == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 1 || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Barcode:    req.Barcode,
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		Active:     true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("barcode=%s,price=%d,stock=%d", created.Barcode, created.PriceCents, created.Stock))
	s.catalog.InvalidateCategories(ctx, created.Category)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	next := *existing
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		next.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.PriceCents != nil {
		next.PriceCents = *req.PriceCents
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	if next.Name == "" || next.Category == "" || next.PriceCents < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateProduct(ctx, next)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", updated.ID, fmt.Sprintf("name=%s,price=%d,active=%t", updated.Name, updated.PriceCents, updated.Active))
	s.catalog.InvalidateCategories(ctx, existing.Category, updated.Category)
	return *updated, nil
}

// AdjustStock sets a product's quantity directly, outside the sale path.
// Every adjustment needs a reason; it lands in the stock audit ledger with
// the actor attached.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustRequest) (domain.Product, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Product{}, store.ErrReasonRequired
	}
	if req.NewQty < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	actor := actorOrSystem(ctx)
	updated, err := s.repo.SetStock(ctx, productID, req.NewQty, domain.StockAuditEntry{
		ChangedBy: actor.Username,
		Role:      actor.Role,
		Reason:    reason,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", updated.ID, fmt.Sprintf("qty=%d,reason=%s", req.NewQty, reason))
	s.catalog.InvalidateCategories(ctx, updated.Category)
	return *updated, nil
}

func (s *Service) Cart(ctx context.Context) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CartResponse{}, store.ErrInvalidInput
	}
	return cartResponse(s.carts.Get(cartKey(actor))), nil
}

// CartAdd scans one unit into the acting cashier's cart, by barcode or
// product ID. The scan arms the single-slot undo register.
func (s *Service) CartAdd(ctx context.Context, req domain.CartAddRequest) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CartResponse{}, store.ErrInvalidInput
	}

	var (
		product *domain.Product
		err     error
	)
	switch {
	case strings.TrimSpace(req.Barcode) != "":
		product, err = s.catalog.LookupByBarcode(ctx, req.Barcode)
	case strings.TrimSpace(req.ProductID) != "":
		product, err = s.repo.GetProductByID(ctx, strings.TrimSpace(req.ProductID))
	default:
		return domain.CartResponse{}, store.ErrInvalidInput
	}
	if err != nil {
		return domain.CartResponse{}, err
	}

	c := s.carts.Get(cartKey(actor))
	if err := c.Add(*product); err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(c), nil
}

func (s *Service) CartUndo(ctx context.Context) (domain.CartResponse, bool, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CartResponse{}, false, store.ErrInvalidInput
	}
	c := s.carts.Get(cartKey(actor))
	undone := c.UndoLastScan()
	return cartResponse(c), undone, nil
}

func (s *Service) CartRemove(ctx context.Context, productID string) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CartResponse{}, store.ErrInvalidInput
	}
	c := s.carts.Get(cartKey(actor))
	if !c.Remove(productID) {
		return domain.CartResponse{}, store.ErrNotFound
	}
	return cartResponse(c), nil
}

func (s *Service) CartSetQty(ctx context.Context, productID string, qty int) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CartResponse{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	c := s.carts.Get(cartKey(actor))
	if err := c.SetQty(productID, qty, product.Stock); err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(c), nil
}

func (s *Service) CartClear(ctx context.Context) (domain.CartResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CartResponse{}, store.ErrInvalidInput
	}
	c := s.carts.Get(cartKey(actor))
	c.Clear()
	return cartResponse(c), nil
}

func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (domain.ShiftResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ShiftResponse{}, store.ErrInvalidInput
	}
	if req.OpeningFloatCents < 0 {
		return domain.ShiftResponse{}, store.ErrInvalidInput
	}

	shift := domain.Shift{
		ID:                xid.New("shift"),
		CashierID:         cartKey(actor),
		CashierName:       actor.Username,
		OpeningFloatCents: req.OpeningFloatCents,
		Expected:          domain.Tender{CashCents: req.OpeningFloatCents},
		Status:            domain.ShiftStatusOpen,
		StartedAt:         time.Now().UTC(),
	}
	saved, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.logAudit(ctx, "shift_start", "shift", saved.ID, fmt.Sprintf("opening_float=%d", req.OpeningFloatCents))
	return domain.ShiftResponse{Shift: *saved}, nil
}

func (s *Service) ActiveShift(ctx context.Context) (domain.ShiftResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ShiftResponse{}, store.ErrInvalidInput
	}
	shift, err := s.repo.GetActiveShift(ctx, cartKey(actor))
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *shift}, nil
}

// EndShift reconciles the drawer: counted amounts come from the cashier,
// expected amounts have been accumulated sale by sale, and the variance is
// their difference per tender type. The cashier's working cart is dropped.
func (s *Service) EndShift(ctx context.Context, req domain.ShiftEndRequest) (domain.ShiftResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ShiftResponse{}, store.ErrInvalidInput
	}
	if req.Counted.CashCents < 0 || req.Counted.MomoCents < 0 || req.Counted.CardCents < 0 {
		return domain.ShiftResponse{}, store.ErrInvalidInput
	}

	active, err := s.repo.GetActiveShift(ctx, cartKey(actor))
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	closed, err := s.repo.CloseShift(ctx, active.ID, req.Counted, strings.TrimSpace(req.Note), time.Now().UTC())
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	s.carts.Drop(cartKey(actor))
	s.logAudit(ctx, "shift_end", "shift", closed.ID, fmt.Sprintf(
		"variance_cash=%d,variance_momo=%d,variance_card=%d",
		closed.Variance.CashCents, closed.Variance.MomoCents, closed.Variance.CardCents))
	return domain.ShiftResponse{Shift: *closed}, nil
}

func (s *Service) ShiftReports(ctx context.Context, cashierID string, day string, limit int) ([]domain.Shift, error) {
	if day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return nil, store.ErrInvalidInput
		}
	}
	return s.repo.ListClosedShifts(ctx, cashierID, day, limit)
}

// CommitSale turns the acting cashier's cart into a persisted sale. The
// preconditions run in a fixed order: open shift, non-empty cart, a live
// stock check per line, then payment validation. The store applies the final
// stock decrement and the sale insert atomically; a concurrent commit that
// loses the race surfaces as ErrStockConflict and leaves the cart intact.
func (s *Service) CommitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.SaleResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	shift, err := s.repo.GetActiveShift(ctx, cartKey(actor))
	if err != nil {
		return domain.SaleResponse{}, err
	}

	c := s.carts.Get(cartKey(actor))
	lines := c.Lines()
	if len(lines) == 0 {
		return domain.SaleResponse{}, store.ErrEmptyCart
	}

	categories := make([]string, 0, len(lines))
	saleLines := make([]domain.SaleLine, 0, len(lines))
	audits := make([]domain.StockAuditEntry, 0, len(lines))
	for _, l := range lines {
		product, err := s.repo.GetProductByID(ctx, l.ProductID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if product.Stock < l.Qty {
			return domain.SaleResponse{}, store.ErrInsufficientStock
		}
		categories = append(categories, product.Category)
		saleLines = append(saleLines, domain.SaleLine{
			ProductID:      l.ProductID,
			Barcode:        l.Barcode,
			Name:           l.Name,
			UnitPriceCents: l.UnitPriceCents,
			Qty:            l.Qty,
			LineTotalCents: l.LineTotalCents(),
		})
		audits = append(audits, domain.StockAuditEntry{
			ChangedBy: actor.Username,
			Role:      actor.Role,
			Reason:    "sale",
		})
	}

	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	var total int64
	for _, l := range lines {
		total += l.LineTotalCents()
	}

	var change int64
	switch method {
	case domain.PaymentMethodCash:
		if req.AmountPaidCents < total {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
		change = req.AmountPaidCents - total
	default:
		if req.AmountPaidCents != total {
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:              xid.New("sale"),
		InvoiceNumber:   xid.Invoice(now),
		CashierID:       cartKey(actor),
		CashierName:     actor.Username,
		ShiftID:         shift.ID,
		Lines:           saleLines,
		TotalCents:      total,
		PaymentMethod:   method,
		AmountPaidCents: req.AmountPaidCents,
		ChangeCents:     change,
		CreatedAt:       now,
	}

	committed, err := s.repo.CommitSale(ctx, sale, audits)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if err := s.repo.AddShiftExpected(ctx, shift.ID, method, total); err != nil {
		log.Printf("[service] WARN: failed to add sale to shift expected shift=%s sale=%s: %v", shift.ID, committed.ID, err)
	}

	c.Clear()
	s.logAudit(ctx, "sale_commit", "sale", committed.ID, fmt.Sprintf("invoice=%s,total=%d,method=%s", committed.InvoiceNumber, total, method))
	s.catalog.InvalidateCategories(ctx, categories...)
	return domain.SaleResponse{Sale: *committed}, nil
}

func (s *Service) Sales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) SaleByID(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) EndOfDay(ctx context.Context, day string) (domain.DaySummary, error) {
	var from time.Time
	if day == "" {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", day)
		if err != nil {
			return domain.DaySummary{}, store.ErrInvalidInput
		}
		from = parsed
	}
	return s.repo.GetDaySummary(ctx, from, from.Add(24*time.Hour))
}

// VoidSale cancels a committed sale. The reason is mandatory and checked
// before the credential; the second factor is an admin password verified
// against stored hashes, regardless of who is operating the terminal.
func (s *Service) VoidSale(ctx context.Context, saleID string, req domain.VoidSaleRequest) (domain.VoidSaleResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.VoidSaleResponse{}, store.ErrReasonRequired
	}

	admin, err := s.VerifyAdminPassword(ctx, req.AdminPassword)
	if err != nil {
		return domain.VoidSaleResponse{}, err
	}

	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return domain.VoidSaleResponse{}, err
	}
	if sale.IsVoided {
		return domain.VoidSaleResponse{}, store.ErrAlreadyVoided
	}

	audits := make([]domain.StockAuditEntry, 0, len(sale.Lines))
	for range sale.Lines {
		audits = append(audits, domain.StockAuditEntry{
			ChangedBy: admin.Username,
			Role:      admin.Role,
			Reason:    "void_restock",
		})
	}

	voidedAt := time.Now().UTC()
	voided, err := s.repo.VoidSale(ctx, saleID, reason, admin.Username, voidedAt, s.restockOnVoid, audits)
	if err != nil {
		return domain.VoidSaleResponse{}, err
	}

	// A void against a still-open shift pulls the sale back out of the
	// expected drawer totals. Closed shifts keep their reconciled numbers.
	if err := s.repo.AddShiftExpected(ctx, voided.ShiftID, voided.PaymentMethod, -voided.TotalCents); err != nil {
		if !errors.Is(err, store.ErrShiftNotOpen) && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: failed to adjust shift expected after void shift=%s sale=%s: %v", voided.ShiftID, voided.ID, err)
		}
	}

	if s.restockOnVoid {
		categories := make([]string, 0, len(voided.Lines))
		for _, l := range voided.Lines {
			if p, err := s.repo.GetProductByID(ctx, l.ProductID); err == nil {
				categories = append(categories, p.Category)
			}
		}
		s.catalog.InvalidateCategories(ctx, categories...)
	}

	s.logAudit(ctx, "sale_void", "sale", voided.ID, fmt.Sprintf("reason=%s,authorized_by=%s", reason, admin.Username))
	return domain.VoidSaleResponse{
		SaleID:   voided.ID,
		VoidedAt: voidedAt.Format(time.RFC3339),
	}, nil
}

// VerifyAdminPassword compares the supplied password against the stored
// hashes of active admin accounts. It never reveals which account matched
// a failure; callers only see ErrBadCredential.
func (s *Service) VerifyAdminPassword(ctx context.Context, password string) (domain.UserAccount, error) {
	if password == "" {
		return domain.UserAccount{}, store.ErrBadCredential
	}

	admins, err := s.repo.ListUsersByRole(ctx, domain.RoleAdmin, domain.RoleSuperAdmin)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("list admin accounts: %w", err)
	}
	for _, account := range admins {
		if !account.Active {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil {
			return account, nil
		}
	}
	return domain.UserAccount{}, store.ErrBadCredential
}

func (s *Service) StockAudits(ctx context.Context, limit int) ([]domain.StockAuditEntry, error) {
	return s.repo.ListStockAudits(ctx, limit)
}

func (s *Service) StockAuditsForProduct(ctx context.Context, productID string, limit int) ([]domain.StockAuditEntry, error) {
	return s.repo.ListStockAuditsForProduct(ctx, productID, limit)
}

func (s *Service) AuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor := actorOrSystem(ctx)

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLogEntry{
		ID:         xid.New("log"),
		ActorID:    actor.ID,
		ActorName:  actor.Username,
		Role:       actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

func cartKey(actor domain.Actor) string {
	if actor.ID != "" {
		return actor.ID
	}
	return actor.Username
}

func cartResponse(c *cart.Cart) domain.CartResponse {
	lines := c.Lines()
	resp := domain.CartResponse{Lines: lines}
	for _, l := range lines {
		resp.TotalCents += l.LineTotalCents()
		resp.ItemCount += l.Qty
	}
	return resp
}

func normalizePaymentMethod(method string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case domain.PaymentMethodCash:
		return domain.PaymentMethodCash, nil
	case domain.PaymentMethodMomo, "mobile":
		return domain.PaymentMethodMomo, nil
	case domain.PaymentMethodCard:
		return domain.PaymentMethodCard, nil
	default:
		return "", store.ErrInvalidInput
	}
}
