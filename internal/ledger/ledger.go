package ledger

import (
	"sync"
	"time"

	"tokokasir/backend/internal/domain"
)

// Ledger is the append-only record of completed sales. Records are
// never updated or removed; refunds, if ever needed, would land as new
// compensating records.
type Ledger struct {
	mu      sync.RWMutex
	records []domain.SaleRecord
}

func New() *Ledger {
	return &Ledger{}
}

// Append adds one completed sale. Records keep arrival order, which is
// also chronological order since sales are appended at confirm time.
func (l *Ledger) Append(rec domain.SaleRecord) {
	l.mu.Lock()
	l.records = append(l.records, cloneRecord(rec))
	l.mu.Unlock()
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// All returns every record, oldest first. Callers get clones and may
// mutate them freely.
func (l *Ledger) All() []domain.SaleRecord {
	return l.Query(func(domain.SaleRecord) bool { return true })
}

// Query returns the records matching keep, oldest first.
func (l *Ledger) Query(keep func(domain.SaleRecord) bool) []domain.SaleRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var result []domain.SaleRecord
	for _, rec := range l.records {
		if keep(rec) {
			result = append(result, cloneRecord(rec))
		}
	}
	return result
}

// Since returns the records created at or after the cutoff.
func (l *Ledger) Since(cutoff time.Time) []domain.SaleRecord {
	return l.Query(func(rec domain.SaleRecord) bool {
		return !rec.CreatedAt.Before(cutoff)
	})
}

// Get returns the record with the given sale id, or false.
func (l *Ledger) Get(id string) (domain.SaleRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, rec := range l.records {
		if rec.ID == id {
			return cloneRecord(rec), true
		}
	}
	return domain.SaleRecord{}, false
}

func cloneRecord(rec domain.SaleRecord) domain.SaleRecord {
	out := rec
	out.Lines = make([]domain.SaleLine, len(rec.Lines))
	copy(out.Lines, rec.Lines)
	return out
}
