// The TableSpec types live here so backend packages can import them without
// circular deps.
package warehouse

// TableSpec describes one warehouse table in backend-neutral terms. Backends
// translate the portable column types to their own dialect (serial, DATE and
// TEXT differ across postgres, sqlite and mssql).
type TableSpec struct {
	Name        string
	Surrogate   *SurrogateSpec
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

// SurrogateSpec is an auto-incrementing integer primary key (sales_id,
// time_id). Tables with a natural primary key mark it on the ColumnSpec
// instead.
type SurrogateSpec struct {
	Name string
}

type ColumnSpec struct {
	Name       string
	Type       string // portable: BIGINT, INT, TEXT, DOUBLE PRECISION, DATE
	PrimaryKey bool
	Nullable   bool
	References string // "table(column)", resolved against the same namespace
}

type ConstraintSpec struct {
	Kind    string // "unique"
	Columns []string
}
