package config

import (
	"strings"
	"testing"
)

const sampleConfig = `{
	"job": "online_retail",
	"input": {"dir": "data/raw"},
	"cleaned": {"dir": "data/cleaned"},
	"parser": {"options": {"encoding": "windows-1252", "has_header": true}},
	"warehouse": {"kind": "postgres", "dsn": "${DATABASE_URL}"}
}`

func TestDecode(t *testing.T) {
	p, err := Decode(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Job != "online_retail" || p.Input.Dir != "data/raw" || p.Cleaned.Dir != "data/cleaned" {
		t.Errorf("decoded = %+v", p)
	}
	if p.Warehouse.Schema != DefaultSchema {
		t.Errorf("schema = %q, want default %q", p.Warehouse.Schema, DefaultSchema)
	}
	if !p.Parser.Options.Bool("has_header", false) {
		t.Error("has_header option lost")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"jobb": "typo"}`))
	if err == nil {
		t.Fatal("want error for unknown field")
	}
}

func TestDecodeKeepsExplicitSchema(t *testing.T) {
	p, err := Decode(strings.NewReader(`{"warehouse": {"schema": "dw_custom"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Warehouse.Schema != "dw_custom" {
		t.Errorf("schema = %q", p.Warehouse.Schema)
	}
}

func validPipeline() Pipeline {
	return Pipeline{
		Job:       "online_retail",
		Input:     InputConfig{Dir: "data/raw"},
		Cleaned:   CleanedConfig{Dir: "data/cleaned"},
		Warehouse: WarehouseConfig{Kind: "sqlite", DSN: "warehouse.db", Schema: DefaultSchema},
	}
}

func countSeverity(issues []Issue, s Severity) int {
	n := 0
	for _, i := range issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}

func TestValidatePipelineClean(t *testing.T) {
	if issues := ValidatePipeline(validPipeline()); len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
}

func TestValidatePipelineRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Pipeline)
		path   string
	}{
		{"input dir", func(p *Pipeline) { p.Input.Dir = "" }, "input.dir"},
		{"cleaned dir", func(p *Pipeline) { p.Cleaned.Dir = "" }, "cleaned.dir"},
		{"kind", func(p *Pipeline) { p.Warehouse.Kind = "" }, "warehouse.kind"},
		{"bad kind", func(p *Pipeline) { p.Warehouse.Kind = "oracle" }, "warehouse.kind"},
		{"dsn", func(p *Pipeline) { p.Warehouse.DSN = "" }, "warehouse.dsn"},
		{"bad encoding", func(p *Pipeline) {
			p.Parser.Options = Options{"encoding": "ebcdic"}
		}, "parser.options.encoding"},
	}
	for _, c := range cases {
		p := validPipeline()
		c.mutate(&p)
		issues := ValidatePipeline(p)
		if countSeverity(issues, SeverityError) == 0 {
			t.Errorf("%s: no error issue: %v", c.name, issues)
			continue
		}
		found := false
		for _, i := range issues {
			if i.Path == c.path && i.Severity == SeverityError {
				found = true
			}
		}
		if !found {
			t.Errorf("%s: no error at path %s: %v", c.name, c.path, issues)
		}
	}
}

func TestValidatePipelineEmptyJobWarns(t *testing.T) {
	p := validPipeline()
	p.Job = ""
	issues := ValidatePipeline(p)
	if countSeverity(issues, SeverityError) != 0 {
		t.Errorf("empty job must not be an error: %v", issues)
	}
	if countSeverity(issues, SeverityWarning) != 1 {
		t.Errorf("issues = %v, want one warning", issues)
	}
}
