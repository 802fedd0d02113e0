package transform

// Canonical staging columns, in order. The names are fixed by contract with
// the upstream data export; parsers map source headers onto this layout and
// every downstream index below depends on the order staying put.
var Columns = []string{
	"invoice_no",
	"stock_code",
	"description",
	"quantity",
	"invoice_date",
	"unit_price",
	"customer_id",
	"country",
}

const (
	ColInvoiceNo = iota
	ColStockCode
	ColDescription
	ColQuantity
	ColInvoiceDate
	ColUnitPrice
	ColCustomerID
	ColCountry
)

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace.
// It lets hot paths skip strings.TrimSpace for the common clean case.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	if isSpace(s[0]) {
		return true
	}
	return isSpace(s[len(s)-1])
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
