package batch

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

var insertHeaderPattern = regexp.MustCompile(`(?is)^(insert\s+into\s+[^(]+\([^)]*\)\s*values)\s*`)

// SplitScript cuts a multi-row INSERT script into parts that each stay under
// maxBytes. Splits happen only between value rows, so every part is a
// complete, independently executable statement carrying the original header.
// A script already under the cap comes back unchanged in a single part.
func SplitScript(script string, maxBytes int) ([]string, error) {
	script = strings.TrimSpace(script)
	if maxBytes <= 0 || len(script) <= maxBytes {
		return []string{script}, nil
	}

	header, rows, err := parseInsert(script)
	if err != nil {
		return nil, err
	}

	var parts []string
	var current strings.Builder
	rowCount := 0

	flush := func() {
		if rowCount == 0 {
			return
		}
		current.WriteString(";")
		parts = append(parts, current.String())
		current.Reset()
		rowCount = 0
	}

	for _, row := range rows {
		// header + row + terminator is the minimum a part can hold.
		if len(header)+1+len(row)+1 > maxBytes {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("value row of %d bytes exceeds the %d byte part limit", len(row), maxBytes),
				nil)
		}
		projected := current.Len() + 2 + len(row) + 1
		if rowCount > 0 && projected > maxBytes {
			flush()
		}
		if rowCount == 0 {
			current.WriteString(header)
			current.WriteString("\n")
		} else {
			current.WriteString(",\n")
		}
		current.WriteString(row)
		rowCount++
	}
	flush()

	return parts, nil
}

// parseInsert separates the INSERT header from its parenthesized value rows.
func parseInsert(script string) (string, []string, error) {
	script = strings.TrimSuffix(strings.TrimSpace(script), ";")
	loc := insertHeaderPattern.FindStringSubmatchIndex(script)
	if loc == nil {
		return "", nil, apperrors.NewValidationError("script is not a multi-row INSERT statement", nil)
	}
	header := strings.TrimSpace(script[loc[2]:loc[3]])
	body := script[loc[1]:]

	rows, err := splitValueRows(body)
	if err != nil {
		return "", nil, err
	}
	if len(rows) == 0 {
		return "", nil, apperrors.NewValidationError("INSERT statement has no value rows", nil)
	}
	return header, rows, nil
}

// splitValueRows walks the VALUES body collecting top-level parenthesized
// groups. Quotes and nested parentheses inside a row never split it.
func splitValueRows(body string) ([]string, error) {
	var rows []string
	var current strings.Builder
	depth := 0
	inQuote := false

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			current.WriteByte(c)
		case inQuote:
			current.WriteByte(c)
		case c == '(':
			depth++
			current.WriteByte(c)
		case c == ')':
			depth--
			current.WriteByte(c)
			if depth < 0 {
				return nil, apperrors.NewValidationError("unbalanced parentheses in VALUES clause", nil)
			}
			if depth == 0 {
				rows = append(rows, strings.TrimSpace(current.String()))
				current.Reset()
			}
		case depth > 0:
			current.WriteByte(c)
		default:
			// Separators between rows: commas and whitespace only.
			if c != ',' && c != ' ' && c != '\n' && c != '\t' && c != '\r' {
				return nil, apperrors.NewValidationError("unexpected content between value rows", nil)
			}
		}
	}
	if depth != 0 || inQuote {
		return nil, apperrors.NewValidationError("unterminated value row", nil)
	}
	return rows, nil
}
