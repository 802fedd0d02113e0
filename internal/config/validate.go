package config

import "fmt"

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding with a JSON-ish path for context.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var supportedBackends = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"mssql":    true,
}

// ValidatePipeline checks a decoded pipeline config and returns all findings.
// A config with any error-severity issue must not start a run; missing or
// malformed connection settings are caught here rather than mid-pipeline.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if p.Job == "" {
		warnf("job", "empty job name; metrics will use the default")
	}
	if p.Input.Dir == "" {
		errf("input.dir", "input directory is required")
	}
	if p.Cleaned.Dir == "" {
		errf("cleaned.dir", "cleaned output directory is required")
	}
	if p.Warehouse.Kind == "" {
		errf("warehouse.kind", "backend kind is required")
	} else if !supportedBackends[p.Warehouse.Kind] {
		errf("warehouse.kind", "unsupported backend %q", p.Warehouse.Kind)
	}
	if p.Warehouse.DSN == "" {
		errf("warehouse.dsn", "connection string is required")
	}
	if enc := p.Parser.Options.String("encoding", ""); enc != "" {
		switch enc {
		case "utf-8", "windows-1252", "latin-1", "iso-8859-1":
		default:
			errf("parser.options.encoding", "unsupported encoding %q", enc)
		}
	}

	return issues
}
