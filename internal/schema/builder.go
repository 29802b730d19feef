package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/joseph-ayodele/doc-extractor/constants"
	"github.com/joseph-ayodele/doc-extractor/internal/common"
)

// Build turns the request's mode input into a validated schema.
func Build(mode, input string) (*Schema, error) {
	switch mode {
	case constants.ModeHeadings:
		return FromHeadings(input)
	case constants.ModeJSON:
		return FromJSON(input)
	default:
		return nil, common.Errorf(common.KindInvalidRequest, "Unknown mode %q: expected %s or %s", mode, constants.ModeHeadings, constants.ModeJSON)
	}
}

// FromHeadings builds a schema of required string properties from a comma-separated list.
func FromHeadings(input string) (*Schema, error) {
	s := New()
	for _, tok := range strings.Split(input, ",") {
		name := strings.TrimSpace(tok)
		if name == "" {
			continue
		}
		if _, dup := s.Field(name); dup {
			continue
		}
		s.Add(Field{Name: name, Type: String})
		s.Required = append(s.Required, name)
	}
	if s.Len() == 0 {
		return nil, common.NewAppError(common.KindEmptyHeadingList, "Please provide at least one heading", common.ErrInvalidInput)
	}
	return s, nil
}

// FromJSON parses and validates a user-authored schema, keeping property order.
func FromJSON(input string) (*Schema, error) {
	raw := []byte(input)
	if err := ValidateJSON(raw); err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(raw)
	s := New()
	root.Get("properties").ForEach(func(key, value gjson.Result) bool {
		f := Field{
			Name: key.String(),
			Type: FieldType(value.Get("type").String()),
			raw:  json.RawMessage(value.Raw),
		}
		if d := value.Get("description"); d.Type == gjson.String {
			f.Description = d.String()
		}
		s.Add(f)
		return true
	})
	if req := root.Get("required"); req.IsArray() {
		for _, r := range req.Array() {
			if r.Type == gjson.String {
				s.Required = append(s.Required, r.String())
			}
		}
	}
	return s, s.Validate()
}

func malformed(raw []byte, err error) error {
	off := int64(len(raw))
	var se *json.SyntaxError
	switch {
	case errors.As(err, &se):
		off = se.Offset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		msg := "unexpected end of JSON input"
		if len(strings.TrimSpace(string(raw))) == 0 {
			msg = "empty input"
		}
		err = errors.New(msg)
	}
	line, col := Position(raw, off)
	return common.NewAppError(common.KindMalformedJSON,
		fmt.Sprintf("Invalid JSON schema: %s at line %d, column %d", err.Error(), line, col),
		err)
}

// Position converts a byte offset into a 1-based line and rune column.
func Position(raw []byte, off int64) (line, col int) {
	if off < 0 {
		off = 0
	}
	if off > int64(len(raw)) {
		off = int64(len(raw))
	}
	head := raw[:off]
	line = 1
	lineStart := 0
	for i, b := range head {
		if b == '\n' {
			line++
			lineStart = i + 1
		}
	}
	col = utf8.RuneCount(head[lineStart:]) + 1
	return line, col
}
