package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

var (
	invoiceMu   sync.Mutex
	invoiceDay  string
	invoiceNext int
)

// Invoice returns a human-readable invoice number of the form
// INV-YYYYMMDD-NNNN. The sequence restarts at 0001 each day. Uniqueness
// holds per process; the persistent sale ID remains the canonical key.
func Invoice(at time.Time) string {
	day := at.UTC().Format("20060102")

	invoiceMu.Lock()
	defer invoiceMu.Unlock()
	if day != invoiceDay {
		invoiceDay = day
		invoiceNext = 0
	}
	invoiceNext++
	return fmt.Sprintf("INV-%s-%04d", day, invoiceNext)
}
