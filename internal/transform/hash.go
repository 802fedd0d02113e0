package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// lineHashSep separates field components in the canonical hash input.
// ASCII Unit Separator cannot appear in spreadsheet cell text.
const lineHashSep = "\x1f"

// LineHash computes the stable natural key for one fact row: a SHA-256 over
// invoice number, stock code, customer id, the canonical invoice date, and
// the source line number. Reprocessing the same batch after a partial failure
// produces the same hash, so the fact table's unique(line_hash) constraint
// absorbs the duplicates instead of minting new surrogate keys.
//
// Field names are included in the canonical form so an empty value in one
// field cannot collide with a shifted value in another.
func LineHash(invoiceNo, stockCode string, customerID int64, invoiceDate string, line int64) string {
	var b strings.Builder
	b.Grow(128)

	b.WriteString("invoice_no=")
	b.WriteString(strings.TrimSpace(invoiceNo))
	b.WriteString(lineHashSep)
	b.WriteString("stock_code=")
	b.WriteString(strings.TrimSpace(stockCode))
	b.WriteString(lineHashSep)
	b.WriteString("customer_id=")
	b.WriteString(strconv.FormatInt(customerID, 10))
	b.WriteString(lineHashSep)
	b.WriteString("invoice_date=")
	b.WriteString(strings.TrimSpace(invoiceDate))
	b.WriteString(lineHashSep)
	b.WriteString("line=")
	b.WriteString(strconv.FormatInt(line, 10))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
