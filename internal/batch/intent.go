package batch

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

// Intent is one parsed correction: a set of column values keyed to a tracker
// issue. Scripts are sequences of single-row UPDATE statements produced by
// export tooling; each statement targets exactly one issue key.
type Intent struct {
	ExternalKey string
	Set         map[string]string
	// Statement is the 1-based position within the script, for reporting.
	Statement int
}

var updatePattern = regexp.MustCompile(
	`(?is)^update\s+tickets\s+set\s+(.+)\s+where\s+jira_issue_key\s*=\s*'([^']+)'$`)

// ParseScript parses a correction script into intents. Statements that are
// not single-key ticket updates fail the whole parse: a script with unknown
// statements is a script the executor must not guess at.
func ParseScript(script string) ([]Intent, error) {
	statements := splitStatements(script)
	intents := make([]Intent, 0, len(statements))
	for i, stmt := range statements {
		matches := updatePattern.FindStringSubmatch(stmt)
		if matches == nil {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("statement %d is not a single-key ticket update", i+1),
				map[string]any{"statement": truncateStatement(stmt)})
		}
		set, err := parseAssignments(matches[1])
		if err != nil {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("statement %d: %v", i+1, err),
				map[string]any{"statement": truncateStatement(stmt)})
		}
		intents = append(intents, Intent{
			ExternalKey: matches[2],
			Set:         set,
			Statement:   i + 1,
		})
	}
	return intents, nil
}

// splitStatements cuts the script on semicolons outside string literals.
// Comment lines and blank statements are dropped.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inQuote := false

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			current.WriteByte(c)
		case c == ';' && !inQuote:
			if stmt := cleanStatement(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if stmt := cleanStatement(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

func cleanStatement(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, " ")
}

// parseAssignments parses "col='value', other=NULL" pairs. Values may be
// quoted strings (with '' as the escaped quote), NULL, or bare literals such
// as numbers. NULL becomes the empty string, matching how the executor reads
// current values back for comparison.
func parseAssignments(clause string) (map[string]string, error) {
	set := make(map[string]string)
	for _, part := range splitAssignments(clause) {
		eq := strings.Index(part, "=")
		if eq < 0 {
			return nil, fmt.Errorf("malformed assignment %q", part)
		}
		column := strings.ToLower(strings.TrimSpace(part[:eq]))
		if column == "" {
			return nil, fmt.Errorf("malformed assignment %q", part)
		}
		value, err := parseValue(strings.TrimSpace(part[eq+1:]))
		if err != nil {
			return nil, err
		}
		set[column] = value
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("empty SET clause")
	}
	return set, nil
}

func splitAssignments(clause string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	for i := 0; i < len(clause); i++ {
		c := clause[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			current.WriteByte(c)
		case c == ',' && !inQuote:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	parts = append(parts, current.String())
	return parts
}

func parseValue(raw string) (string, error) {
	if strings.EqualFold(raw, "null") {
		return "", nil
	}
	if strings.HasPrefix(raw, "'") {
		if len(raw) < 2 || !strings.HasSuffix(raw, "'") {
			return "", fmt.Errorf("unterminated string literal %q", raw)
		}
		return strings.ReplaceAll(raw[1:len(raw)-1], "''", "'"), nil
	}
	if raw == "" {
		return "", fmt.Errorf("missing value")
	}
	return raw, nil
}

func truncateStatement(stmt string) string {
	const max = 200
	if len(stmt) <= max {
		return stmt
	}
	return stmt[:max]
}
