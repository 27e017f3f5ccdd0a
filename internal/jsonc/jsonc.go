// Package jsonc decodes JSON with comments and trailing commas, as found in
// tsconfig.json files.
package jsonc

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/jsonc"
)

// Unmarshal strips comments and trailing commas from src and decodes the
// result into v. The stripped input keeps every byte offset of src, so the
// offsets of syntax errors refer to the original input.
func Unmarshal(src []byte, v any) error {
	return json.Unmarshal(jsonc.ToJSON(src), v)
}

// Position converts a byte offset into a 1-based line and column.
func Position(src []byte, offset int64) (line int, column int) {
	if offset > int64(len(src)) {
		offset = int64(len(src))
	}
	line, column = 1, 1
	for _, c := range src[:offset] {
		if c == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return
}

// ErrorPosition returns the position of a json syntax or type error in src.
func ErrorPosition(src []byte, err error) (line int, column int, ok bool) {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, column = Position(src, syntaxErr.Offset)
		return line, column, true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, column = Position(src, typeErr.Offset)
		return line, column, true
	}
	return 0, 0, false
}
