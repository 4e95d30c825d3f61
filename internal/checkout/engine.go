package checkout

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"tokokasir/backend/internal/cart"
	"tokokasir/backend/internal/catalog"
	"tokokasir/backend/internal/domain"
	"tokokasir/backend/internal/ledger"
	"tokokasir/backend/internal/xid"
)

// TaxRatePercent is the PPN rate applied to every sale.
const TaxRatePercent = 10.0

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrUnknownPayment      = errors.New("unknown payment method")
	ErrInsufficientPayment = errors.New("tendered cash is less than the total")
	ErrStockChanged        = errors.New("stock changed since the cart was built")
	ErrSaleNotFound        = errors.New("sale not found")
)

// SaleArchiver persists confirmed sales outside the process. Archive
// failures never fail a checkout; the in-memory ledger is the source
// of truth for the running day.
type SaleArchiver interface {
	SaveSale(ctx context.Context, rec domain.SaleRecord) error
}

// Engine drives a cart through quote, payment validation, atomic stock
// decrement, and ledger append.
type Engine struct {
	storeID string
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	archive SaleArchiver
	logger  *log.Logger
}

func NewEngine(storeID string, cat *catalog.Catalog, led *ledger.Ledger, archive SaleArchiver, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		storeID: storeID,
		catalog: cat,
		ledger:  led,
		archive: archive,
		logger:  logger,
	}
}

// Quote computes the totals for a set of cart lines. Tax rounds half
// up to the nearest Rupiah.
func Quote(lines []domain.CartLine) domain.Quote {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}
	tax := int64(math.Round(float64(subtotal) * TaxRatePercent / 100))
	return domain.Quote{Subtotal: subtotal, Tax: tax, Total: subtotal + tax}
}

// ValidatePayment checks the method against the total and returns the
// change due. Cash must cover the total; qris and debit are treated as
// exact electronic payments.
func ValidatePayment(method string, total, tendered int64) (int64, error) {
	switch method {
	case domain.PayCash:
		if tendered < total {
			return 0, fmt.Errorf("%w: tendered %d, total %d", ErrInsufficientPayment, tendered, total)
		}
		return tendered - total, nil
	case domain.PayQRIS, domain.PayDebit:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPayment, method)
	}
}

// Confirm settles the cart: it revalidates payment, decrements every
// line's stock atomically, appends the sale to the ledger, and empties
// the cart. On any error nothing is decremented, appended, or cleared.
func (e *Engine) Confirm(ctx context.Context, crt *cart.Cart, req domain.CheckoutRequest, cashierName string) (domain.CheckoutResponse, error) {
	lines := crt.Lines()
	if len(lines) == 0 {
		return domain.CheckoutResponse{}, ErrEmptyCart
	}

	decrements := make(map[string]int, len(lines))
	for _, line := range lines {
		decrements[line.ProductID] += line.Quantity
	}
	// Stock is checked before payment, so a cart that is both stale and
	// underpaid reports the stock problem first. DecrementAll below
	// remains the authoritative check under the product locks.
	for id, qty := range decrements {
		stock, err := e.catalog.StockOf(id)
		if err != nil || stock < qty {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: %s has %d left, want %d", ErrStockChanged, id, stock, qty)
		}
	}

	quote := Quote(lines)
	change, err := ValidatePayment(req.PaymentMethod, quote.Total, req.Tendered)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if err := e.catalog.DecrementAll(decrements); err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) || errors.Is(err, catalog.ErrNotFound) {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: %v", ErrStockChanged, err)
		}
		return domain.CheckoutResponse{}, err
	}

	saleLines := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		saleLines = append(saleLines, domain.SaleLine{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}

	tendered := req.Tendered
	if req.PaymentMethod != domain.PayCash {
		tendered = quote.Total
	}
	rec := domain.SaleRecord{
		ID:            xid.New("TRX"),
		StoreID:       e.storeID,
		TerminalID:    strings.TrimSpace(req.TerminalID),
		CashierName:   cashierName,
		Lines:         saleLines,
		Subtotal:      quote.Subtotal,
		Tax:           quote.Tax,
		Total:         quote.Total,
		PaymentMethod: req.PaymentMethod,
		Tendered:      tendered,
		Change:        change,
		CreatedAt:     time.Now().UTC(),
	}

	e.ledger.Append(rec)
	if e.archive != nil {
		if err := e.archive.SaveSale(ctx, rec); err != nil {
			e.logger.Printf("[checkout] archive sale %s failed: %v", rec.ID, err)
		}
	}
	crt.Clear()

	e.logger.Printf("[checkout] sale %s confirmed: total=%d method=%s items=%d", rec.ID, rec.Total, rec.PaymentMethod, len(rec.Lines))
	return domain.CheckoutResponse{Sale: rec, Receipt: receiptText(rec)}, nil
}

// Receipt rebuilds the printable receipt for a past sale.
func (e *Engine) Receipt(saleID string) (domain.ReceiptResponse, error) {
	rec, ok := e.ledger.Get(strings.TrimSpace(saleID))
	if !ok {
		return domain.ReceiptResponse{}, ErrSaleNotFound
	}
	preview := receiptText(rec)
	return domain.ReceiptResponse{
		SaleID:       rec.ID,
		PreviewText:  preview,
		EscposBase64: base64.StdEncoding.EncodeToString(escposBytes(preview)),
	}, nil
}

func receiptText(rec domain.SaleRecord) string {
	lines := []string{
		"TokoKasir",
		"========================",
		"TRX: " + rec.ID,
		"Toko: " + rec.StoreID,
	}
	if rec.TerminalID != "" {
		lines = append(lines, "Kasir: "+rec.TerminalID)
	}
	lines = append(lines,
		"Tanggal: "+rec.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	)
	for _, item := range rec.Lines {
		lines = append(lines, fmt.Sprintf("%s x%d", item.ProductName, item.Quantity))
		lines = append(lines, fmt.Sprintf("  %d", item.UnitPrice*int64(item.Quantity)))
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Subtotal : %d", rec.Subtotal),
		fmt.Sprintf("PPN 10%%  : %d", rec.Tax),
		fmt.Sprintf("Total    : %d", rec.Total),
		fmt.Sprintf("Bayar    : %d (%s)", rec.Tendered, rec.PaymentMethod),
		fmt.Sprintf("Kembali  : %d", rec.Change),
		"========================",
		"Terima kasih",
		"",
	)
	return strings.Join(lines, "\n")
}

func escposBytes(preview string) []byte {
	out := []byte{0x1b, 0x40}
	out = append(out, []byte(preview)...)
	out = append(out, '\n')
	out = append(out, []byte{0x1d, 0x56, 0x41, 0x10}...)
	return out
}
