package tmsl

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCleanPassesValidJSON(t *testing.T) {
	in := `{"model": {"tables": []}}`
	out, err := Clean(in)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out != in {
		t.Fatalf("clean changed valid JSON: %q", out)
	}
}

func TestCleanNormalizesLineEndings(t *testing.T) {
	out, err := Clean("{\r\n  \"model\": {}\r\n}\r\n")
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if strings.Contains(out, "\r") {
		t.Fatalf("carriage returns survived: %q", out)
	}
}

func TestCleanDecodesDoubleEncodedDocument(t *testing.T) {
	inner := `{"model": {"tables": []}}`
	payload, _ := json.Marshal(inner)

	out, err := Clean(string(payload))
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out != inner {
		t.Fatalf("clean = %q, want inner document", out)
	}
}

func TestCleanUnescapesEscapedPayload(t *testing.T) {
	out, err := Clean(`{\"model\": {\"tables\": []}}`)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if !json.Valid([]byte(out)) {
		t.Fatalf("clean output is not valid JSON: %q", out)
	}
}

func TestCleanRejectsGarbage(t *testing.T) {
	if _, err := Clean("not json at all {{{"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Clean("   "); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestParse(t *testing.T) {
	doc, err := Parse(`{"model": {"tables": [{"name": "Sales"}]}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	model, ok := Model(doc)
	if !ok {
		t.Fatal("model not found")
	}
	if tables := objects(model, "tables"); len(tables) != 1 || stringField(tables[0], "name") != "Sales" {
		t.Fatalf("tables = %+v", objects(model, "tables"))
	}
}

func TestModelUnderCreateOrReplace(t *testing.T) {
	doc, err := Parse(`{"createOrReplace": {"database": {"name": "m", "model": {"tables": []}}}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := Model(doc); !ok {
		t.Fatal("model not found under createOrReplace.database")
	}
}

func TestExpressionText(t *testing.T) {
	if got := ExpressionString([]any{"let", "x", "in", "x"}); got != "let x in x" {
		t.Fatalf("ExpressionString = %q", got)
	}
	if got := ExpressionString("Sql.Database(a, b)"); got != "Sql.Database(a, b)" {
		t.Fatalf("ExpressionString = %q", got)
	}
	if got := ExpressionString(nil); got != "" {
		t.Fatalf("ExpressionString(nil) = %q", got)
	}
}
