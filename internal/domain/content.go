package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ContentKind tags the shape held by a Content value.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentStructured
)

func (k ContentKind) String() string {
	switch k {
	case ContentStructured:
		return "structured"
	default:
		return "text"
	}
}

// Record is a structured memory value: a JSON object whose values follow the
// encoding/json generic model (map[string]any, []any, json.Number, string, bool, nil).
// Numbers stay json.Number so they re-encode digit for digit.
type Record = map[string]any

// Content is the value of a memory: either opaque text or a structured record.
//
// Text is persisted verbatim. Records are persisted as compact JSON with sorted
// keys and are restored as records on read. Stored text that happens to be a
// JSON object is indistinguishable from a record and is read back as one.
type Content struct {
	kind   ContentKind
	text   string
	record Record
}

// TextContent wraps plain text.
func TextContent(s string) Content {
	return Content{kind: ContentText, text: s}
}

// StructuredContent builds a record from any value that marshals to a JSON
// object (maps, structs). The value is normalized through encoding/json so a
// stored record and the record read back are deep-equal.
func StructuredContent(v any) (Content, error) {
	if c, ok := v.(Content); ok {
		return c, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Content{}, fmt.Errorf("%w: structured content: %v", ErrInvalidArgument, err)
	}
	record, ok := parseRecord(raw)
	if !ok {
		return Content{}, fmt.Errorf("%w: structured content must be a JSON object", ErrInvalidArgument)
	}
	return Content{kind: ContentStructured, record: record}, nil
}

// MustStructured is like StructuredContent but panics on error.
func MustStructured(v any) Content {
	c, err := StructuredContent(v)
	if err != nil {
		panic(err)
	}
	return c
}

// DecodeContent restores a stored value. A JSON object becomes a record;
// anything else, including JSON scalars and arrays, stays text unchanged.
func DecodeContent(raw string) Content {
	if record, ok := parseRecord([]byte(raw)); ok {
		return Content{kind: ContentStructured, record: record}
	}
	return TextContent(raw)
}

// Kind reports which shape the content holds.
func (c Content) Kind() ContentKind { return c.kind }

// IsStructured reports whether the content is a record.
func (c Content) IsStructured() bool { return c.kind == ContentStructured }

// Text returns the plain text, or "" for a record.
func (c Content) Text() string {
	if c.kind == ContentStructured {
		return ""
	}
	return c.text
}

// Record returns the structured record, or nil for text.
func (c Content) Record() Record {
	if c.kind != ContentStructured {
		return nil
	}
	return c.record
}

// Encode returns the textual form persisted in storage.
func (c Content) Encode() (string, error) {
	if c.kind != ContentStructured {
		return c.text, nil
	}
	b, err := encodeRecord(c.record)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// String returns the stored textual form; records render as JSON.
func (c Content) String() string {
	s, err := c.Encode()
	if err != nil {
		return fmt.Sprintf("%%!content(%v)", err)
	}
	return s
}

// decode unmarshals a record into v.
func (c Content) decode(v any) error {
	if c.kind != ContentStructured {
		return errors.New("content is text, not a structured record")
	}
	b, err := encodeRecord(c.record)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// MarshalJSON renders text as a JSON string and a record as a JSON object.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.kind == ContentStructured {
		return encodeRecord(c.record)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a JSON string (text) or a JSON object (record).
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*c = TextContent("")
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	case trimmed[0] == '{':
		record, err := decodeRecord(trimmed)
		if err != nil {
			return err
		}
		*c = Content{kind: ContentStructured, record: record}
		return nil
	default:
		return fmt.Errorf("%w: content must be a string or an object", ErrInvalidArgument)
	}
}

func parseRecord(raw []byte) (Record, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	record, err := decodeRecord(trimmed)
	if err != nil {
		return nil, false
	}
	return record, true
}

// decodeRecord parses exactly one JSON object, keeping numbers as json.Number.
func decodeRecord(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var record Record
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return record, nil
}

// encodeRecord writes compact JSON without HTML escaping so a substring search
// sees characters like '<' and '&' as the caller wrote them.
func encodeRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return []byte(strings.TrimSuffix(buf.String(), "\n")), nil
}
