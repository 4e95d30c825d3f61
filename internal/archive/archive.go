package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tokokasir/backend/internal/domain"
)

// Store persists the catalog and the sale ledger to Postgres so the
// data survives restarts. The running process reads and writes its
// in-memory state; the archive is write-behind for sales and read-once
// at boot for products.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			price      BIGINT NOT NULL,
			stock      INTEGER NOT NULL,
			category   TEXT NOT NULL,
			barcode    TEXT,
			image_url  TEXT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS sales (
			id             TEXT PRIMARY KEY,
			store_id       TEXT NOT NULL,
			terminal_id    TEXT,
			cashier_name   TEXT,
			lines          JSONB NOT NULL,
			subtotal       BIGINT NOT NULL,
			tax            BIGINT NOT NULL,
			total          BIGINT NOT NULL,
			payment_method TEXT NOT NULL,
			tendered       BIGINT NOT NULL,
			change         BIGINT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

// SaveProduct upserts the current state of one product.
func (s *Store) SaveProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, category, barcode, image_url, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			category = EXCLUDED.category,
			barcode = EXCLUDED.barcode,
			image_url = EXCLUDED.image_url,
			updated_at = now()
	`, p.ID, p.Name, p.Price, p.Stock, p.Category, nullable(p.Barcode), nullable(p.ImageURL))
	return err
}

// LoadProducts returns every archived product, for catalog warm-up at
// boot.
func (s *Store) LoadProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, stock, category, COALESCE(barcode, ''), COALESCE(image_url, '')
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category, &p.Barcode, &p.ImageURL); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// SaveSale appends one confirmed sale. Sales are insert-only; a replay
// of an already archived id is a no-op.
func (s *Store) SaveSale(ctx context.Context, rec domain.SaleRecord) error {
	lines, err := json.Marshal(rec.Lines)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, store_id, terminal_id, cashier_name, lines, subtotal, tax, total, payment_method, tendered, change, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.StoreID, nullable(rec.TerminalID), nullable(rec.CashierName), lines,
		rec.Subtotal, rec.Tax, rec.Total, rec.PaymentMethod, rec.Tendered, rec.Change, rec.CreatedAt)
	return err
}

// LoadSales returns archived sales for one store, oldest first, for
// ledger warm-up at boot.
func (s *Store) LoadSales(ctx context.Context, storeID string) ([]domain.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, COALESCE(terminal_id, ''), COALESCE(cashier_name, ''), lines, subtotal, tax, total, payment_method, tendered, change, created_at
		FROM sales
		WHERE store_id = $1
		ORDER BY created_at, id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SaleRecord, 0, 128)
	for rows.Next() {
		var rec domain.SaleRecord
		var lines []byte
		if err := rows.Scan(&rec.ID, &rec.StoreID, &rec.TerminalID, &rec.CashierName, &lines,
			&rec.Subtotal, &rec.Tax, &rec.Total, &rec.PaymentMethod, &rec.Tendered, &rec.Change, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &rec.Lines); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
