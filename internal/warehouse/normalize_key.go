package warehouse

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeKey converts a dimension key value to a canonical string form,
// suitable for in-memory lookup maps (e.g. "Germany", "17850", "2011-03-05").
//
// Backends must not assume a particular underlying type for keys: pgx scans
// DATE as time.Time, sqlite hands back TEXT, mssql can surface []byte. This
// helper keeps lookup maps consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return fmt.Sprintf("%d", t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return fmt.Sprintf("%d", t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
