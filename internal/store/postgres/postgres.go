package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cedipos/backend/internal/domain"
	"cedipos/backend/internal/store"
	"cedipos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, barcode, name, category, price_cents, stock, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Barcode, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListProductsByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE lower(category) = lower($1)
		ORDER BY name ASC
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT lower(category)
		FROM products
		WHERE category <> ''
		ORDER BY 1 ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]string, 0, 16)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, barcode, name, category, price_cents, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.Barcode, product.Name, product.Category, product.PriceCents, product.Stock, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBarcode
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = $1
	`, barcode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, active = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, product.ID, product.Name, product.Category, product.PriceCents, product.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int, audit domain.StockAuditEntry) (*domain.Product, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	p, err := scanProduct(pgTx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	before := p.Stock
	now := time.Now().UTC()
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1
	`, productID, qty, now); err != nil {
		return nil, err
	}

	audit.ProductID = p.ID
	audit.Barcode = p.Barcode
	audit.ProductName = p.Name
	audit.BeforeQty = before
	audit.AfterQty = qty
	audit.Delta = qty - before
	if audit.ID == "" {
		audit.ID = xid.New("aud")
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	if err := insertStockAudit(ctx, pgTx, audit); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	p.Stock = qty
	p.UpdatedAt = now
	return &p, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.StartedAt.IsZero() {
		shift.StartedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen

	// The partial unique index on (cashier_id) WHERE status = 'open'
	// enforces the one-open-shift rule at the database level.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (
			id, cashier_id, cashier_name, status, opening_float_cents,
			expected_cash_cents, expected_momo_cents, expected_card_cents,
			counted_cash_cents, counted_momo_cents, counted_card_cents,
			variance_cash_cents, variance_momo_cents, variance_card_cents,
			note, started_at, ended_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,0,0,0,0,0,'',$9,NULL)
	`, shift.ID, shift.CashierID, shift.CashierName, shift.Status, shift.OpeningFloatCents,
		shift.Expected.CashCents, shift.Expected.MomoCents, shift.Expected.CardCents, shift.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrShiftAlreadyOpen
		}
		return nil, err
	}
	return &shift, nil
}

const shiftColumns = `id, cashier_id, cashier_name, status, opening_float_cents,
	expected_cash_cents, expected_momo_cents, expected_card_cents,
	counted_cash_cents, counted_momo_cents, counted_card_cents,
	variance_cash_cents, variance_momo_cents, variance_card_cents,
	note, started_at, ended_at`

func scanShift(row interface{ Scan(...any) error }) (domain.Shift, error) {
	var shift domain.Shift
	var endedAt sql.NullTime
	err := row.Scan(&shift.ID, &shift.CashierID, &shift.CashierName, &shift.Status, &shift.OpeningFloatCents,
		&shift.Expected.CashCents, &shift.Expected.MomoCents, &shift.Expected.CardCents,
		&shift.Counted.CashCents, &shift.Counted.MomoCents, &shift.Counted.CardCents,
		&shift.Variance.CashCents, &shift.Variance.MomoCents, &shift.Variance.CardCents,
		&shift.Note, &shift.StartedAt, &endedAt)
	if endedAt.Valid {
		at := endedAt.Time.UTC()
		shift.EndedAt = &at
	}
	return shift, err
}

func (s *Store) GetActiveShift(ctx context.Context, cashierID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE cashier_id = $1 AND status = $2
	`, cashierID, domain.ShiftStatusOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoActiveShift
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, counted domain.Tender, note string, closedAt time.Time) (*domain.Shift, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	shift, err := scanShift(pgTx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = $1
		FOR UPDATE
	`, shiftID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrShiftNotOpen
	}

	variance := counted.Sub(shift.Expected)
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE shifts
		SET status = $2,
			counted_cash_cents = $3, counted_momo_cents = $4, counted_card_cents = $5,
			variance_cash_cents = $6, variance_momo_cents = $7, variance_card_cents = $8,
			note = $9, ended_at = $10
		WHERE id = $1
	`, shiftID, domain.ShiftStatusClosed,
		counted.CashCents, counted.MomoCents, counted.CardCents,
		variance.CashCents, variance.MomoCents, variance.CardCents,
		note, closedAt); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	shift.Status = domain.ShiftStatusClosed
	shift.Counted = counted
	shift.Variance = variance
	shift.Note = note
	shift.EndedAt = &closedAt
	return &shift, nil
}

func (s *Store) AddShiftExpected(ctx context.Context, shiftID string, method string, amountCents int64) error {
	var column string
	switch method {
	case domain.PaymentMethodCash:
		column = "expected_cash_cents"
	case domain.PaymentMethodMomo:
		column = "expected_momo_cents"
	case domain.PaymentMethodCard:
		column = "expected_card_cents"
	default:
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts
		SET `+column+` = `+column+` + $2
		WHERE id = $1 AND status = $3
	`, shiftID, amountCents, domain.ShiftStatusOpen)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM shifts WHERE id = $1)`, shiftID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrShiftNotOpen
	}
	return nil
}

func (s *Store) ListClosedShifts(ctx context.Context, cashierID string, day string, limit int) ([]domain.Shift, error) {
	query := `
		SELECT ` + shiftColumns + `
		FROM shifts
		WHERE status = $1`
	args := []any{domain.ShiftStatusClosed}
	if cashierID != "" {
		args = append(args, cashierID)
		query += ` AND cashier_id = $2`
	}
	if day != "" {
		args = append(args, day)
		query += ` AND date(coalesce(ended_at, started_at)) = $` + strconv.Itoa(len(args))
	}
	args = append(args, capLimit(limit))
	query += ` ORDER BY started_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]domain.Shift, 0, 32)
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

// CommitSale runs the whole sale in one serializable transaction: product
// rows are locked FOR UPDATE, stock is re-verified against the live values,
// then decremented, and the sale, its lines and the per-line audit entries
// are inserted. Any failed check rolls the whole thing back.
func (s *Store) CommitSale(ctx context.Context, sale domain.Sale, audits []domain.StockAuditEntry) (*domain.Sale, error) {
	if len(sale.Lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}

	for i, line := range sale.Lines {
		p, err := scanProduct(pgTx.QueryRowContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, line.ProductID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if p.Stock < line.Qty {
			return nil, store.ErrStockConflict
		}

		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1
		`, line.ProductID, line.Qty, now); err != nil {
			return nil, err
		}

		audit := domain.StockAuditEntry{Reason: "sale"}
		if i < len(audits) {
			audit = audits[i]
		}
		audit.ProductID = p.ID
		audit.Barcode = p.Barcode
		audit.ProductName = p.Name
		audit.BeforeQty = p.Stock
		audit.AfterQty = p.Stock - line.Qty
		audit.Delta = -line.Qty
		audit.SaleID = sale.ID
		if audit.ID == "" {
			audit.ID = xid.New("aud")
		}
		if audit.CreatedAt.IsZero() {
			audit.CreatedAt = now
		}
		if err := insertStockAudit(ctx, pgTx, audit); err != nil {
			return nil, err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, cashier_id, cashier_name, shift_id,
			total_cents, payment_method, amount_paid_cents, change_cents,
			is_voided, void_reason, voided_by, voided_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,'','',NULL,$10)
	`, sale.ID, sale.InvoiceNumber, sale.CashierID, sale.CashierName, nullIfEmpty(sale.ShiftID),
		sale.TotalCents, sale.PaymentMethod, sale.AmountPaidCents, sale.ChangeCents, sale.CreatedAt); err != nil {
		return nil, err
	}

	for _, line := range sale.Lines {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, barcode, name, unit_price_cents, qty, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, line.ProductID, line.Barcode, line.Name, line.UnitPriceCents, line.Qty, line.LineTotalCents); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const saleColumns = `id, invoice_number, cashier_id, cashier_name, coalesce(shift_id, ''),
	total_cents, payment_method, amount_paid_cents, change_cents,
	is_voided, void_reason, voided_by, voided_at, created_at`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var voidedAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.CashierID, &sale.CashierName, &sale.ShiftID,
		&sale.TotalCents, &sale.PaymentMethod, &sale.AmountPaidCents, &sale.ChangeCents,
		&sale.IsVoided, &sale.VoidReason, &sale.VoidedBy, &voidedAt, &sale.CreatedAt)
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		sale.VoidedAt = &at
	}
	return sale, err
}

func (s *Store) loadSaleLines(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, saleID string) ([]domain.SaleLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, barcode, name, unit_price_cents, qty, line_total_cents
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY barcode ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.Barcode, &line.Name, &line.UnitPriceCents, &line.Qty, &line.LineTotalCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadSaleLines(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		ORDER BY created_at DESC
		LIMIT $1
	`, capLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		lines, err := s.loadSaleLines(ctx, s.db, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Lines = lines
	}
	return sales, nil
}

func (s *Store) VoidSale(ctx context.Context, id string, reason string, voidedBy string, at time.Time, restock bool, audits []domain.StockAuditEntry) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := scanSale(pgTx.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if sale.IsVoided {
		return nil, store.ErrAlreadyVoided
	}

	lines, err := s.loadSaleLines(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	sale.Lines = lines

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE sales
		SET is_voided = true, void_reason = $2, voided_by = $3, voided_at = $4
		WHERE id = $1 AND is_voided = false
	`, id, reason, voidedBy, at); err != nil {
		return nil, err
	}

	if restock {
		for i, line := range lines {
			p, err := scanProduct(pgTx.QueryRowContext(ctx, `
				SELECT `+productColumns+`
				FROM products
				WHERE id = $1
				FOR UPDATE
			`, line.ProductID))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				return nil, err
			}

			if _, err := pgTx.ExecContext(ctx, `
				UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1
			`, line.ProductID, line.Qty, at); err != nil {
				return nil, err
			}

			audit := domain.StockAuditEntry{Reason: "void_restock"}
			if i < len(audits) {
				audit = audits[i]
			}
			audit.ProductID = p.ID
			audit.Barcode = p.Barcode
			audit.ProductName = p.Name
			audit.BeforeQty = p.Stock
			audit.AfterQty = p.Stock + line.Qty
			audit.Delta = line.Qty
			audit.SaleID = sale.ID
			if audit.ID == "" {
				audit.ID = xid.New("aud")
			}
			if audit.CreatedAt.IsZero() {
				audit.CreatedAt = at
			}
			if err := insertStockAudit(ctx, pgTx, audit); err != nil {
				return nil, err
			}
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	sale.IsVoided = true
	sale.VoidReason = reason
	sale.VoidedBy = voidedBy
	voidedAt := at
	sale.VoidedAt = &voidedAt
	return &sale, nil
}

func (s *Store) GetDaySummary(ctx context.Context, from time.Time, to time.Time) (domain.DaySummary, error) {
	summary := domain.DaySummary{Date: from.UTC().Format("2006-01-02")}

	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
			coalesce(sum(total_cents), 0),
			count(*) FILTER (WHERE is_voided),
			coalesce(sum(total_cents) FILTER (WHERE is_voided), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&summary.Sales, &summary.GrossCents, &summary.VoidedSales, &summary.VoidedCents)
	if err != nil {
		return domain.DaySummary{}, err
	}
	summary.NetCents = summary.GrossCents - summary.VoidedCents

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, count(*), coalesce(sum(total_cents), 0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2 AND is_voided = false
		GROUP BY payment_method
		ORDER BY payment_method ASC
	`, from, to)
	if err != nil {
		return domain.DaySummary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.DayTenderSummary
		if err := rows.Scan(&m.PaymentMethod, &m.Sales, &m.TotalCents); err != nil {
			return domain.DaySummary{}, err
		}
		summary.ByPaymentMethod = append(summary.ByPaymentMethod, m)
	}
	if err := rows.Err(); err != nil {
		return domain.DaySummary{}, err
	}
	return summary, nil
}

const stockAuditColumns = `id, product_id, barcode, product_name, before_qty, after_qty, delta,
	changed_by, role, reason, coalesce(sale_id, ''), created_at`

func (s *Store) listStockAudits(ctx context.Context, productID string, limit int) ([]domain.StockAuditEntry, error) {
	query := `
		SELECT ` + stockAuditColumns + `
		FROM stock_audits`
	args := []any{}
	if productID != "" {
		args = append(args, productID)
		query += ` WHERE product_id = $1`
	}
	args = append(args, capLimit(limit))
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockAuditEntry, 0, 64)
	for rows.Next() {
		var e domain.StockAuditEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Barcode, &e.ProductName, &e.BeforeQty, &e.AfterQty, &e.Delta,
			&e.ChangedBy, &e.Role, &e.Reason, &e.SaleID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListStockAudits(ctx context.Context, limit int) ([]domain.StockAuditEntry, error) {
	return s.listStockAudits(ctx, "", limit)
}

func (s *Store) ListStockAuditsForProduct(ctx context.Context, productID string, limit int) ([]domain.StockAuditEntry, error) {
	return s.listStockAudits(ctx, productID, limit)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_name, role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ActorID, entry.ActorName, entry.Role, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_name, role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, capLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLogEntry, 0, 64)
	for rows.Next() {
		var e domain.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Role, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password_hash, display_name, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Username, user.PasswordHash, user.DisplayName, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, display_name, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.DisplayName, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsersByRole(ctx context.Context, roles ...string) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, display_name, role, active, created_at
		FROM app_users
		WHERE role = ANY($1)
		ORDER BY username ASC
	`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.DisplayName, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func insertStockAudit(ctx context.Context, tx *sql.Tx, audit domain.StockAuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_audits (
			id, product_id, barcode, product_name, before_qty, after_qty, delta,
			changed_by, role, reason, sale_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, audit.ID, audit.ProductID, audit.Barcode, audit.ProductName, audit.BeforeQty, audit.AfterQty, audit.Delta,
		audit.ChangedBy, audit.Role, audit.Reason, nullIfEmpty(audit.SaleID), audit.CreatedAt)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func capLimit(limit int) int {
	if limit < 1 || limit > 500 {
		return 100
	}
	return limit
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
