package postgres

import "retailwh/internal/warehouse"

func init() {
	// registers the postgres backend factory
	warehouse.Register("postgres", New)
}
