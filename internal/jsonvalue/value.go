// Package jsonvalue holds untyped JSON documents with object key order
// preserved, so provider responses whose shape drifts between API versions can
// be searched depth-first in document order.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind is the JSON type of a Value
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "unknown"
}

// Member is one key of an object, in document order
type Member struct {
	Key   string
	Value *Value
}

// Value is a parsed JSON node. A nil *Value behaves like JSON null so lookups
// can be chained without checks.
type Value struct {
	kind    Kind
	text    string // string contents or number literal
	boolean bool
	items   []*Value
	members []Member
}

// Parse decodes a complete JSON document
func Parse(data []byte) (*Value, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a single JSON document from r
func Decode(r io.Reader) (*Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("jsonvalue: trailing data after document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("jsonvalue: %w", err)
	}

	switch t := tok.(type) {
	case nil:
		return &Value{kind: Null}, nil
	case bool:
		return &Value{kind: Bool, boolean: t}, nil
	case json.Number:
		return &Value{kind: Number, text: t.String()}, nil
	case string:
		return &Value{kind: String, text: t}, nil
	case json.Delim:
		switch t {
		case '[':
			v := &Value{kind: Array}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				v.items = append(v.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("jsonvalue: %w", err)
			}
			return v, nil
		case '{':
			v := &Value{kind: Object}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("jsonvalue: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("jsonvalue: unexpected object key %v", keyTok)
				}
				member, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				v.members = append(v.members, Member{Key: key, Value: member})
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("jsonvalue: %w", err)
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("jsonvalue: unexpected token %v", tok)
}

// Kind returns the node's type; nil reports Null
func (v *Value) Kind() Kind {
	if v == nil {
		return Null
	}
	return v.kind
}

// IsNull reports whether v is absent or JSON null
func (v *Value) IsNull() bool {
	return v.Kind() == Null
}

// Len returns the number of array items or object members
func (v *Value) Len() int {
	switch v.Kind() {
	case Array:
		return len(v.items)
	case Object:
		return len(v.members)
	}
	return 0
}

// Get returns the member named key, or nil when v is not an object or the
// key is missing. Duplicate keys resolve to the first occurrence.
func (v *Value) Get(key string) *Value {
	if v.Kind() != Object {
		return nil
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// Index returns the i-th array item or nil
func (v *Value) Index(i int) *Value {
	if v.Kind() != Array || i < 0 || i >= len(v.items) {
		return nil
	}
	return v.items[i]
}

// Members returns the object's members in document order
func (v *Value) Members() []Member {
	if v.Kind() != Object {
		return nil
	}
	return v.members
}

// Items returns the array's items
func (v *Value) Items() []*Value {
	if v.Kind() != Array {
		return nil
	}
	return v.items
}

// Str returns the contents of a string node
func (v *Value) Str() (string, bool) {
	if v.Kind() != String {
		return "", false
	}
	return v.text, true
}

// Text renders scalars as text: strings verbatim, numbers as their literal,
// booleans as true/false. Containers and null yield "".
func (v *Value) Text() string {
	switch v.Kind() {
	case String, Number:
		return v.text
	case Bool:
		return strconv.FormatBool(v.boolean)
	}
	return ""
}

// FirstString returns v itself when it is a string, or the first string item
// when v is an array.
func (v *Value) FirstString() (string, bool) {
	switch v.Kind() {
	case String:
		return v.text, true
	case Array:
		for _, item := range v.items {
			if s, ok := item.Str(); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Lookup resolves a dotted path with optional indexes, e.g.
// "results.channels[0].alternatives[0].transcript". Missing steps yield nil.
func (v *Value) Lookup(path string) *Value {
	cur := v
	for _, part := range strings.Split(path, ".") {
		name, indexes, err := splitIndexes(part)
		if err != nil {
			return nil
		}
		if name != "" {
			cur = cur.Get(name)
		}
		for _, i := range indexes {
			cur = cur.Index(i)
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func splitIndexes(part string) (string, []int, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return part, nil, nil
	}
	name := part[:open]
	var indexes []int
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("malformed path segment %q", part)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, fmt.Errorf("malformed path segment %q", part)
		}
		i, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, err
		}
		indexes = append(indexes, i)
		rest = rest[end+1:]
	}
	return name, indexes, nil
}

// Find searches depth-first for the first non-null member named key. At each
// object its own members are checked before any child is entered; children are
// then visited in document order. The returned path uses Lookup syntax.
func (v *Value) Find(key string) (*Value, string, bool) {
	return v.find(key, "")
}

func (v *Value) find(key, prefix string) (*Value, string, bool) {
	switch v.Kind() {
	case Object:
		for _, m := range v.members {
			if m.Key == key && !m.Value.IsNull() {
				return m.Value, join(prefix, m.Key), true
			}
		}
		for _, m := range v.members {
			if found, path, ok := m.Value.find(key, join(prefix, m.Key)); ok {
				return found, path, true
			}
		}
	case Array:
		for i, item := range v.items {
			if found, path, ok := item.find(key, fmt.Sprintf("%s[%d]", prefix, i)); ok {
				return found, path, true
			}
		}
	}
	return nil, "", false
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
