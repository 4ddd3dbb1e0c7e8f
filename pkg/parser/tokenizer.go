package parser

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when an artifact has no usable lines.
var ErrEmptyInput = errors.New("file has no data lines")

const commentMarker = "#"

// byteOrderMark is written by spreadsheet "CSV UTF-8" exports.
const byteOrderMark = "\ufeff"

// Table is a tokenized artifact: the header line and the raw data rows.
type Table struct {
	Headers []string
	Rows    [][]string
	// Delimiter is zero for spreadsheet sources.
	Delimiter rune
}

// Tokenize splits delimited text into a header list and data rows.
//
// The delimiter is chosen once from the header line (semicolon when present,
// comma otherwise) and applied to every line. Quote characters are stripped
// from tokens, not interpreted. A leading byte order mark is dropped.
func Tokenize(text string) (*Table, error) {
	lines := usableLines(strings.TrimPrefix(text, byteOrderMark))
	if len(lines) == 0 {
		return nil, ErrEmptyInput
	}

	delim := DetectDelimiter(lines[0])
	t := &Table{
		Headers:   splitTokens(lines[0], delim),
		Rows:      make([][]string, 0, len(lines)-1),
		Delimiter: delim,
	}
	for _, line := range lines[1:] {
		t.Rows = append(t.Rows, splitTokens(line, delim))
	}
	return t, nil
}

// DetectDelimiter picks ';' when the header contains one, ',' otherwise.
func DetectDelimiter(header string) rune {
	if strings.ContainsRune(header, ';') {
		return ';'
	}
	return ','
}

func usableLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if skipLine(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func skipLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, commentMarker)
}

func splitTokens(line string, delim rune) []string {
	parts := strings.Split(line, string(delim))
	for i, p := range parts {
		parts[i] = CleanToken(p)
	}
	return parts
}

// CleanToken trims whitespace and removes every literal double quote.
func CleanToken(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), `"`, "")
	return strings.TrimSpace(s)
}
