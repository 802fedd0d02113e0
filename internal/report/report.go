// Package report defines the read-only aggregate queries served to the
// dashboard and ML consumers of the warehouse. The SQL builders are pure so
// the statements can be unit tested without a database; each warehouse
// backend executes them and scans into the row types here.
package report

// CustomerAggregate is one row of the per-customer spending summary used for
// customer segmentation: how much a customer spent and how many fact lines
// they account for.
type CustomerAggregate struct {
	CustomerID int64
	Country    string
	Purchases  int64
	TotalSpent float64
}

// MonthlySale is one row of the per-month revenue series used for sales
// forecasting.
type MonthlySale struct {
	Year       int64
	Month      string
	TotalSales float64
}

// CustomerAggregatesSQL builds the segmentation query. fact and customers
// must be fully qualified table names validated by the caller.
//
// The statement sticks to aggregates every supported backend implements
// identically, so one builder serves postgres, sqlite and mssql.
func CustomerAggregatesSQL(fact, customers string) string {
	return `SELECT c.customer_id, c.country, COUNT(*) AS purchases, SUM(f.total_amount) AS total_spent` +
		` FROM ` + fact + ` f` +
		` JOIN ` + customers + ` c ON c.customer_id = f.customer_id` +
		` GROUP BY c.customer_id, c.country` +
		` ORDER BY total_spent DESC`
}

// MonthlySalesSQL builds the revenue series query. fact and timeTable must
// be fully qualified table names validated by the caller.
//
// Ordering rides on MIN(invoice_date): dim_time stores dates as DATE (or an
// ISO-8601 TEXT on sqlite), so the minimum sorts months chronologically on
// every backend without backend-specific date functions.
func MonthlySalesSQL(fact, timeTable string) string {
	return `SELECT t.year, t.month, SUM(f.total_amount) AS total_sales` +
		` FROM ` + fact + ` f` +
		` JOIN ` + timeTable + ` t ON t.time_id = f.time_id` +
		` GROUP BY t.year, t.month` +
		` ORDER BY t.year, MIN(t.invoice_date)`
}
