package report

import (
	"strings"
	"testing"
)

func TestCustomerAggregatesSQL(t *testing.T) {
	sql := CustomerAggregatesSQL(`"fact_sales"`, `"dim_customers"`)
	for _, frag := range []string{
		`SELECT c.customer_id, c.country, COUNT(*) AS purchases, SUM(f.total_amount) AS total_spent`,
		`FROM "fact_sales" f`,
		`JOIN "dim_customers" c ON c.customer_id = f.customer_id`,
		`GROUP BY c.customer_id, c.country`,
		`ORDER BY total_spent DESC`,
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("query missing %s:\n%s", frag, sql)
		}
	}
}

func TestMonthlySalesSQL(t *testing.T) {
	sql := MonthlySalesSQL(`[dw].[fact_sales]`, `[dw].[dim_time]`)
	for _, frag := range []string{
		`SELECT t.year, t.month, SUM(f.total_amount) AS total_sales`,
		`FROM [dw].[fact_sales] f`,
		`JOIN [dw].[dim_time] t ON t.time_id = f.time_id`,
		`GROUP BY t.year, t.month`,
		`ORDER BY t.year, MIN(t.invoice_date)`,
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("query missing %s:\n%s", frag, sql)
		}
	}
}
