package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
	"cedipos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil, false)
}

func cashierCtx(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:       "u-" + username,
		Username: username,
		Role:     domain.RoleCashier,
	})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:       "u-admin",
		Username: "admin",
		Role:     domain.RoleSuperAdmin,
	})
}

func mustStartShift(t *testing.T, svc *Service, ctx context.Context, floatCents int64) domain.Shift {
	t.Helper()
	resp, err := svc.StartShift(ctx, domain.ShiftStartRequest{OpeningFloatCents: floatCents})
	if err != nil {
		t.Fatalf("start shift failed: %v", err)
	}
	return resp.Shift
}

func mustAddByBarcode(t *testing.T, svc *Service, ctx context.Context, barcode string) {
	t.Helper()
	if _, err := svc.CartAdd(ctx, domain.CartAddRequest{Barcode: barcode}); err != nil {
		t.Fatalf("cart add %s failed: %v", barcode, err)
	}
}

func TestCartAddAccumulatesTotals(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")

	mustAddByBarcode(t, svc, ctx, "6001002")
	mustAddByBarcode(t, svc, ctx, "6001002")
	mustAddByBarcode(t, svc, ctx, "6001003")

	resp, err := svc.Cart(ctx)
	if err != nil {
		t.Fatalf("cart view failed: %v", err)
	}
	if len(resp.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(resp.Lines))
	}
	if resp.ItemCount != 3 {
		t.Fatalf("expected 3 items, got %d", resp.ItemCount)
	}
	// 2 x 250 (Milo) + 1 x 300 (Voltic)
	if resp.TotalCents != 800 {
		t.Fatalf("expected total 800, got %d", resp.TotalCents)
	}
}

func TestCommitSaleRequiresOpenShift(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustAddByBarcode(t, svc, ctx, "6001002")

	_, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 1000})
	if !errors.Is(err, store.ErrNoActiveShift) {
		t.Fatalf("expected ErrNoActiveShift, got %v", err)
	}
}

func TestCommitSaleRejectsEmptyCart(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)

	_, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 1000})
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCommitSaleCashChangeAndStock(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 1000)

	mustAddByBarcode(t, svc, ctx, "6001002")
	mustAddByBarcode(t, svc, ctx, "6001002")

	resp, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 1000})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if resp.Sale.TotalCents != 500 {
		t.Fatalf("expected total 500, got %d", resp.Sale.TotalCents)
	}
	if resp.Sale.ChangeCents != 500 {
		t.Fatalf("expected change 500, got %d", resp.Sale.ChangeCents)
	}
	if resp.Sale.InvoiceNumber == "" {
		t.Fatalf("expected invoice number")
	}

	product, err := svc.ProductByBarcode(ctx, "6001002")
	if err != nil {
		t.Fatalf("product lookup failed: %v", err)
	}
	if product.Stock != 198 {
		t.Fatalf("expected stock 198 after sale, got %d", product.Stock)
	}

	cartView, _ := svc.Cart(ctx)
	if len(cartView.Lines) != 0 {
		t.Fatalf("cart must be cleared after commit")
	}

	shift, err := svc.ActiveShift(ctx)
	if err != nil {
		t.Fatalf("active shift failed: %v", err)
	}
	if shift.Shift.Expected.CashCents != 1500 {
		t.Fatalf("expected drawer cash 1500 (float + sale), got %d", shift.Shift.Expected.CashCents)
	}
}

func TestCommitSaleCashUnderpayRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)
	mustAddByBarcode(t, svc, ctx, "6001002")

	_, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 200})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for underpayment, got %v", err)
	}

	cartView, _ := svc.Cart(ctx)
	if len(cartView.Lines) != 1 {
		t.Fatalf("failed commit must leave the cart intact")
	}
}

func TestCommitSaleStockCheckBeatsPaymentCheck(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)
	mustAddByBarcode(t, svc, ctx, "6001002")

	product, err := svc.ProductByBarcode(adminCtx(), "6001002")
	if err != nil {
		t.Fatalf("product lookup failed: %v", err)
	}
	if _, err := svc.AdjustStock(adminCtx(), product.ID, domain.StockAdjustRequest{NewQty: 0, Reason: "damaged stock writedown"}); err != nil {
		t.Fatalf("stock adjustment failed: %v", err)
	}

	// Underpaid cash on top of the empty shelf: the stock check runs first.
	_, err = svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 0})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock before payment validation, got %v", err)
	}
}

func TestCommitSaleNonCashRequiresExactAmount(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)
	mustAddByBarcode(t, svc, ctx, "6001002")

	_, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "momo", AmountPaidCents: 300})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-exact momo amount, got %v", err)
	}

	resp, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "mobile", AmountPaidCents: 250})
	if err != nil {
		t.Fatalf("momo commit failed: %v", err)
	}
	if resp.Sale.PaymentMethod != domain.PaymentMethodMomo {
		t.Fatalf("expected mobile to normalize to momo, got %q", resp.Sale.PaymentMethod)
	}
	if resp.Sale.ChangeCents != 0 {
		t.Fatalf("non-cash sale must have zero change, got %d", resp.Sale.ChangeCents)
	}
}

func TestCommitSaleLastUnitConflict(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	created, err := svc.CreateProduct(admin, domain.ProductCreateRequest{
		Barcode:    "7770001",
		Name:       "Last Tin Tomato Paste",
		Category:   "grocery",
		PriceCents: 900,
		Stock:      1,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	ctxA := cashierCtx("ama")
	ctxB := cashierCtx("kojo")
	mustStartShift(t, svc, ctxA, 0)
	mustStartShift(t, svc, ctxB, 0)
	mustAddByBarcode(t, svc, ctxA, created.Barcode)
	mustAddByBarcode(t, svc, ctxB, created.Barcode)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, ctx := range []context.Context{ctxA, ctxB} {
		wg.Add(1)
		go func(i int, ctx context.Context) {
			defer wg.Done()
			_, results[i] = svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 900})
		}(i, ctx)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrStockConflict) || errors.Is(err, store.ErrInsufficientStock):
			conflicts++
		default:
			t.Fatalf("unexpected commit error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner for the last unit, got %d successes, %d conflicts", successes, conflicts)
	}

	product, err := svc.ProductByBarcode(adminCtx(), created.Barcode)
	if err != nil {
		t.Fatalf("product lookup failed: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("expected stock 0 after the winning commit, got %d", product.Stock)
	}
}

func TestStartShiftTwiceRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)

	_, err := svc.StartShift(ctx, domain.ShiftStartRequest{})
	if !errors.Is(err, store.ErrShiftAlreadyOpen) {
		t.Fatalf("expected ErrShiftAlreadyOpen, got %v", err)
	}
}

func TestEndShiftComputesVariance(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 1000)

	mustAddByBarcode(t, svc, ctx, "6001002")
	mustAddByBarcode(t, svc, ctx, "6001002")
	if _, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 500}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	resp, err := svc.EndShift(ctx, domain.ShiftEndRequest{
		Counted: domain.Tender{CashCents: 1400},
		Note:    "drawer short",
	})
	if err != nil {
		t.Fatalf("end shift failed: %v", err)
	}
	// Expected cash is float 1000 + sale 500; counted 1400 is 100 short.
	if resp.Shift.Variance.CashCents != -100 {
		t.Fatalf("expected cash variance -100, got %d", resp.Shift.Variance.CashCents)
	}
	if resp.Shift.Status != domain.ShiftStatusClosed {
		t.Fatalf("expected closed shift, got %q", resp.Shift.Status)
	}
	if resp.Shift.EndedAt == nil {
		t.Fatalf("expected ended_at to be set")
	}

	if _, err := svc.EndShift(ctx, domain.ShiftEndRequest{}); !errors.Is(err, store.ErrNoActiveShift) {
		t.Fatalf("expected ErrNoActiveShift on double close, got %v", err)
	}
}

func TestVoidSaleReasonCheckedBeforeCredential(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)
	mustAddByBarcode(t, svc, ctx, "6001002")
	resp, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 250})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	_, err = svc.VoidSale(ctx, resp.Sale.ID, domain.VoidSaleRequest{Reason: "   ", AdminPassword: "definitely-wrong"})
	if !errors.Is(err, store.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired before any credential check, got %v", err)
	}

	_, err = svc.VoidSale(ctx, resp.Sale.ID, domain.VoidSaleRequest{Reason: "test", AdminPassword: "definitely-wrong"})
	if !errors.Is(err, store.ErrBadCredential) {
		t.Fatalf("expected ErrBadCredential, got %v", err)
	}
}

func TestVoidSaleOnceAndOnlyOnce(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 1000)
	mustAddByBarcode(t, svc, ctx, "6001002")
	resp, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 250})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	voided, err := svc.VoidSale(ctx, resp.Sale.ID, domain.VoidSaleRequest{Reason: "customer walked out", AdminPassword: "admin123"})
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.SaleID != resp.Sale.ID {
		t.Fatalf("unexpected sale id %q", voided.SaleID)
	}

	sale, err := svc.SaleByID(ctx, resp.Sale.ID)
	if err != nil {
		t.Fatalf("sale lookup failed: %v", err)
	}
	if !sale.IsVoided || sale.VoidReason != "customer walked out" || sale.VoidedBy != "admin" {
		t.Fatalf("void metadata not recorded: %+v", sale)
	}

	_, err = svc.VoidSale(ctx, resp.Sale.ID, domain.VoidSaleRequest{Reason: "again", AdminPassword: "admin123"})
	if !errors.Is(err, store.ErrAlreadyVoided) {
		t.Fatalf("expected ErrAlreadyVoided, got %v", err)
	}

	shift, err := svc.ActiveShift(ctx)
	if err != nil {
		t.Fatalf("active shift failed: %v", err)
	}
	if shift.Shift.Expected.CashCents != 1000 {
		t.Fatalf("void must pull the sale back out of expected cash, got %d", shift.Shift.Expected.CashCents)
	}
}

func TestVoidSaleRestocksWhenEnabled(t *testing.T) {
	svc := New(memory.NewSeeded(), nil, true)
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)
	mustAddByBarcode(t, svc, ctx, "6001002")
	resp, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 250})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if _, err := svc.VoidSale(ctx, resp.Sale.ID, domain.VoidSaleRequest{Reason: "wrong item", AdminPassword: "admin123"}); err != nil {
		t.Fatalf("void failed: %v", err)
	}

	product, err := svc.ProductByBarcode(ctx, "6001002")
	if err != nil {
		t.Fatalf("product lookup failed: %v", err)
	}
	if product.Stock != 200 {
		t.Fatalf("expected stock restored to 200, got %d", product.Stock)
	}

	audits, err := svc.StockAuditsForProduct(ctx, product.ID, 10)
	if err != nil {
		t.Fatalf("stock audits failed: %v", err)
	}
	var restocks int
	for _, e := range audits {
		if e.Reason == "void_restock" && e.SaleID == resp.Sale.ID {
			restocks++
			if e.Delta != 1 {
				t.Fatalf("expected restock delta 1, got %d", e.Delta)
			}
		}
	}
	if restocks != 1 {
		t.Fatalf("expected one restock audit entry, got %d", restocks)
	}
}

func TestAdjustStockWritesAuditEntry(t *testing.T) {
	svc := newTestService()
	admin := adminCtx()

	product, err := svc.ProductByBarcode(admin, "6001009")
	if err != nil {
		t.Fatalf("product lookup failed: %v", err)
	}

	if _, err := svc.AdjustStock(admin, product.ID, domain.StockAdjustRequest{NewQty: 50}); !errors.Is(err, store.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}

	updated, err := svc.AdjustStock(admin, product.ID, domain.StockAdjustRequest{NewQty: 50, Reason: "damaged bags"})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if updated.Stock != 50 {
		t.Fatalf("expected stock 50, got %d", updated.Stock)
	}

	audits, err := svc.StockAuditsForProduct(admin, product.ID, 5)
	if err != nil {
		t.Fatalf("stock audits failed: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audits))
	}
	entry := audits[0]
	if entry.BeforeQty != 55 || entry.AfterQty != 50 || entry.Delta != -5 {
		t.Fatalf("unexpected audit quantities: %+v", entry)
	}
	if entry.ChangedBy != "admin" || entry.Reason != "damaged bags" {
		t.Fatalf("unexpected audit attribution: %+v", entry)
	}
}

func TestEndOfDaySummary(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)

	mustAddByBarcode(t, svc, ctx, "6001002")
	first, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 250})
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	mustAddByBarcode(t, svc, ctx, "6001003")
	if _, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "momo", AmountPaidCents: 300}); err != nil {
		t.Fatalf("second commit failed: %v", err)
	}
	if _, err := svc.VoidSale(ctx, first.Sale.ID, domain.VoidSaleRequest{Reason: "test void", AdminPassword: "admin123"}); err != nil {
		t.Fatalf("void failed: %v", err)
	}

	summary, err := svc.EndOfDay(ctx, "")
	if err != nil {
		t.Fatalf("end of day failed: %v", err)
	}
	if summary.Sales != 2 || summary.GrossCents != 550 {
		t.Fatalf("unexpected gross: %+v", summary)
	}
	if summary.VoidedSales != 1 || summary.VoidedCents != 250 {
		t.Fatalf("unexpected voided totals: %+v", summary)
	}
	if summary.NetCents != 300 {
		t.Fatalf("expected net 300, got %d", summary.NetCents)
	}

	if _, err := svc.EndOfDay(ctx, "14-03-2026"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad date, got %v", err)
	}
}

func TestShiftReportsListClosedShifts(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 500)
	if _, err := svc.EndShift(ctx, domain.ShiftEndRequest{Counted: domain.Tender{CashCents: 500}}); err != nil {
		t.Fatalf("end shift failed: %v", err)
	}

	reports, err := svc.ShiftReports(adminCtx(), "", "", 10)
	if err != nil {
		t.Fatalf("shift reports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one closed shift, got %d", len(reports))
	}
	if reports[0].Variance.CashCents != 0 {
		t.Fatalf("expected zero variance, got %d", reports[0].Variance.CashCents)
	}

	if _, err := svc.ShiftReports(adminCtx(), "", "bad-day", 10); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for malformed day, got %v", err)
	}
}

func TestAuditLogsRecordLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx("kofi")
	mustStartShift(t, svc, ctx, 0)
	mustAddByBarcode(t, svc, ctx, "6001002")
	if _, err := svc.CommitSale(ctx, domain.CommitSaleRequest{PaymentMethod: "cash", AmountPaidCents: 250}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	logs, err := svc.AuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("audit logs failed: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
		if entry.ActorName == "" {
			t.Fatalf("audit entry missing actor: %+v", entry)
		}
	}
	for _, want := range []string{"shift_start", "sale_commit"} {
		if !actions[want] {
			t.Fatalf("expected %s in audit log, got %v", want, actions)
		}
	}
}
