package feed

import (
	"testing"
)

func TestParseBasic(t *testing.T) {
	rows := Parse("stop_id,stop_name\n1,Central\n2,Harbor\n")

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Get("stop_id") != "1" || rows[0].Get("stop_name") != "Central" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1].Get("stop_name") != "Harbor" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestParseQuotedFields(t *testing.T) {
	rows := Parse("stop_id,stop_name\n1,\"Central, Main Entrance\"\n")

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0].Get("stop_name"); got != "Central, Main Entrance" {
		t.Errorf("quoted field with delimiter = %q", got)
	}
}

func TestParseEscapedQuote(t *testing.T) {
	rows := Parse("stop_id,stop_name\n1,\"The \"\"Hub\"\"\"\n")

	if got := rows[0].Get("stop_name"); got != `The "Hub"` {
		t.Errorf("escaped quote = %q", got)
	}
}

func TestParseNewlineInsideQuotes(t *testing.T) {
	rows := Parse("stop_id,stop_name\n1,\"Central\nStation\"\n2,Harbor\n")

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if got := rows[0].Get("stop_name"); got != "Central\nStation" {
		t.Errorf("multiline field = %q", got)
	}
	if rows[1].Get("stop_id") != "2" {
		t.Errorf("row after multiline field = %v", rows[1])
	}
}

func TestParseCRLF(t *testing.T) {
	rows := Parse("stop_id,stop_name\r\n1,Central\r\n")

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0].Get("stop_name"); got != "Central" {
		t.Errorf("value with CRLF line ending = %q", got)
	}
}

func TestParseShortRowPadded(t *testing.T) {
	rows := Parse("stop_id,stop_name,stop_lat\n1,Central\n")

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got, ok := rows[0]["stop_lat"]; !ok || got != "" {
		t.Errorf("missing field should be present and empty, got %q ok=%v", got, ok)
	}
}

func TestParseExtraFieldsDropped(t *testing.T) {
	rows := Parse("stop_id,stop_name\n1,Central,overflow,ignored\n")

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if len(rows[0]) != 2 {
		t.Errorf("row has %d fields, want 2: %v", len(rows[0]), rows[0])
	}
}

func TestParseSkipsEmptyLines(t *testing.T) {
	rows := Parse("stop_id,stop_name\n\n1,Central\n\n\n2,Harbor\n")

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestParseUnmatchedQuoteTolerated(t *testing.T) {
	// A dangling quote swallows the rest of the input into one field rather
	// than failing the whole parse.
	rows := Parse("stop_id,stop_name\n1,\"Central\n")

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0].Get("stop_name"); got != "Central" {
		t.Errorf("unmatched quote field = %q", got)
	}
}

func TestParseTrimsWhitespace(t *testing.T) {
	rows := Parse(" stop_id , stop_name \n 1 , Central \n")

	if got := rows[0].Get("stop_id"); got != "1" {
		t.Errorf("trimmed id = %q", got)
	}
	if got := rows[0].Get("stop_name"); got != "Central" {
		t.Errorf("trimmed name = %q", got)
	}
}

func TestParseEmptyInput(t *testing.T) {
	if rows := Parse(""); rows != nil {
		t.Errorf("empty input = %v, want nil", rows)
	}
	if rows := Parse("stop_id,stop_name\n"); len(rows) != 0 {
		t.Errorf("header only = %v, want no rows", rows)
	}
}

func TestParseDelimSemicolon(t *testing.T) {
	rows := ParseDelim("stop_id;stop_name\n1;Central\n", ';')

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0].Get("stop_name"); got != "Central" {
		t.Errorf("semicolon-delimited value = %q", got)
	}
}
