// Package all registers every warehouse backend. Blank-import it from a
// main package to make all kinds available to warehouse.New.
package all

import (
	_ "retailwh/internal/warehouse/mssql"
	_ "retailwh/internal/warehouse/postgres"
	_ "retailwh/internal/warehouse/sqlite"
)
