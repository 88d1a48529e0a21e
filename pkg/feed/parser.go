package feed

import "strings"

// Row maps a header field name to its trimmed string value.
type Row map[string]string

// Get returns the value for a field, or "" when the column is absent.
func (r Row) Get(field string) string {
	return r[field]
}

// Parse turns raw comma-delimited table text into rows keyed by the header
// line. The parser is deliberately lenient: quoting errors never fail,
// short rows are padded with empty strings to header width, and fields
// beyond the header count are dropped. Feeds in the wild are sanitized
// upstream; strict validation here would only turn usable data into
// nothing.
func Parse(content string) []Row {
	return ParseDelim(content, ',')
}

// ParseDelim is Parse with an explicit field delimiter.
func ParseDelim(content string, delim byte) []Row {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	header := splitFields(lines[0], delim)
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		fields := splitFields(line, delim)
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(fields) {
				row[name] = strings.TrimSpace(fields[i])
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// splitLines breaks the text into logical lines. A newline ends a line only
// outside an open quoted field; a doubled quote inside a quoted field is an
// escaped literal and does not close it. An unmatched quote at end of input
// is tolerated.
func splitLines(content string) []string {
	var lines []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(content); i++ {
		ch := content[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(content) && content[i+1] == '"' {
				cur.WriteString(`""`)
				i++
			} else {
				inQuotes = !inQuotes
				cur.WriteByte(ch)
			}
		case ch == '\n' && !inQuotes:
			lines = append(lines, strings.TrimSuffix(cur.String(), "\r"))
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, strings.TrimSuffix(cur.String(), "\r"))
	}
	return lines
}

// splitFields breaks one logical line into fields on the delimiter, with
// the same quote and escape rules as splitLines. Surrounding quotes are
// stripped from the field value.
func splitFields(line string, delim byte) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == delim && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	fields = append(fields, cur.String())
	return fields
}
