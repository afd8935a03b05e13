package editor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ParseError locates a syntax error in edited JSON. Line and Column are
// 1-based.
type ParseError struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int    `json:"offset"`
	Reason string `json:"reason"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Reason)
}

// Validate checks that text holds exactly one JSON value. It returns nil for
// valid input.
func Validate(text string) *ParseError {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return parseError(text, err, dec)
	}
	if _, err := dec.Token(); err != io.EOF {
		offset := int(dec.InputOffset())
		return locate(text, offset, "unexpected content after JSON value")
	}
	return nil
}

func parseError(text string, err error, dec *json.Decoder) *ParseError {
	switch e := err.(type) {
	case *json.SyntaxError:
		// Offset counts the offending byte.
		return locate(text, int(e.Offset)-1, strings.TrimPrefix(e.Error(), "json: "))
	case *json.UnmarshalTypeError:
		return locate(text, int(e.Offset), e.Error())
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return locate(text, len(text), "unexpected end of input")
	}
	return locate(text, int(dec.InputOffset()), err.Error())
}

// locate converts a byte offset into a line and column.
func locate(text string, offset int, reason string) *ParseError {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	line := 1 + strings.Count(text[:offset], "\n")
	col := offset + 1
	if nl := strings.LastIndexByte(text[:offset], '\n'); nl >= 0 {
		col = offset - nl
	}
	return &ParseError{Line: line, Column: col, Offset: offset, Reason: reason}
}

// Canonicalize re-indents valid JSON with two spaces, keeping key order and
// number formatting.
func Canonicalize(text string) (string, error) {
	if perr := Validate(text); perr != nil {
		return "", perr
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(text)), "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
