package domain

import "time"

// Product is the authoritative catalog entry for one sellable item.
// Prices are whole Rupiah; stock is never negative.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
	Category string `json:"category"`
	Barcode  string `json:"barcode,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type ProductUpsertRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
	Category string `json:"category"`
	Barcode  string `json:"barcode,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type SetStockRequest struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

// CartLine is one entry of a building cart. UnitPrice is snapshotted
// from the product at add time and survives later price edits.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type CartView struct {
	TerminalID string     `json:"terminal_id"`
	Lines      []CartLine `json:"lines"`
	Total      int64      `json:"total"`
	ItemCount  int        `json:"item_count"`
}

type CartAddRequest struct {
	TerminalID string `json:"terminal_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

type CartSetQuantityRequest struct {
	TerminalID string `json:"terminal_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
}

// Payment methods accepted at the counter.
const (
	PayCash  = "cash"
	PayQRIS  = "qris"
	PayDebit = "debit"
)

type Quote struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

type CheckoutRequest struct {
	TerminalID    string `json:"terminal_id"`
	PaymentMethod string `json:"payment_method"`
	Tendered      int64  `json:"tendered,omitempty"`
}

type SaleLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// SaleRecord is immutable once appended to the ledger.
type SaleRecord struct {
	ID            string     `json:"id"`
	StoreID       string     `json:"store_id"`
	TerminalID    string     `json:"terminal_id,omitempty"`
	CashierName   string     `json:"cashier_name,omitempty"`
	Lines         []SaleLine `json:"lines"`
	Subtotal      int64      `json:"subtotal"`
	Tax           int64      `json:"tax"`
	Total         int64      `json:"total"`
	PaymentMethod string     `json:"payment_method"`
	Tendered      int64      `json:"tendered,omitempty"`
	Change        int64      `json:"change,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type CheckoutResponse struct {
	Sale    SaleRecord `json:"sale"`
	Receipt string     `json:"receipt"`
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

// UserAccount is an internal model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type SalesSummary struct {
	StoreID      string `json:"store_id"`
	Date         string `json:"date"`
	Transactions int    `json:"transactions"`
	Revenue      int64  `json:"revenue"`
	Tax          int64  `json:"tax"`
	ItemsSold    int    `json:"items_sold"`
}

type TopProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Sold      int    `json:"sold"`
	Revenue   int64  `json:"revenue"`
}

type TopProductsReport struct {
	StoreID  string       `json:"store_id"`
	From     string       `json:"from"`
	To       string       `json:"to"`
	Products []TopProduct `json:"products"`
}

type PeriodBucket struct {
	Label        string `json:"label"`
	Transactions int    `json:"transactions"`
	Revenue      int64  `json:"revenue"`
}

type SalesRollup struct {
	StoreID string         `json:"store_id"`
	Period  string         `json:"period"`
	Buckets []PeriodBucket `json:"buckets"`
}

type ReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
}
