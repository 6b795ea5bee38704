// Package document models semi-structured item payloads as an ordered tree.
//
// Payloads come from several uncoordinated ingestion paths, so nothing about
// their shape can be assumed. A Node is a tagged union over the JSON value
// kinds; object members keep their document order so that every "first match
// wins" lookup over a payload is deterministic.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Node.
type Kind uint8

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
	default:
		return "unknown"
	}
}

// Field is a single object member.
type Field struct {
	Key   string
	Value *Node
}

// Node is one value in a payload tree. A nil *Node behaves as Null.
type Node struct {
	kind   Kind
	str    string // string value, or the literal text of a number
	num    float64
	truth  bool
	items  []*Node
	fields []Field
}

// NewString returns a string node.
func NewString(s string) *Node { return &Node{kind: String, str: s} }

// NewNumber returns a number node.
func NewNumber(f float64) *Node {
	return &Node{kind: Number, num: f, str: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NewBool returns a boolean node.
func NewBool(b bool) *Node { return &Node{kind: Bool, truth: b} }

// NewArray returns an array node holding items in order.
func NewArray(items ...*Node) *Node { return &Node{kind: Array, items: items} }

// NewObject returns an object node holding fields in order.
func NewObject(fields ...Field) *Node { return &Node{kind: Object, fields: fields} }

// Kind reports the node variant.
func (n *Node) Kind() Kind {
	if n == nil {
		return Null
	}
	return n.kind
}

// IsNull reports whether n is absent or JSON null.
func (n *Node) IsNull() bool { return n.Kind() == Null }

// Str returns the value of a string node.
func (n *Node) Str() (string, bool) {
	if n.Kind() != String {
		return "", false
	}
	return n.str, true
}

// Scalar renders string and number nodes as text. Numbers keep the literal
// spelling they had in the source document.
func (n *Node) Scalar() (string, bool) {
	switch n.Kind() {
	case String, Number:
		return n.str, true
	default:
		return "", false
	}
}

// Float returns the numeric value of a number node.
func (n *Node) Float() (float64, bool) {
	if n.Kind() != Number {
		return 0, false
	}
	return n.num, true
}

// Items returns the elements of an array node.
func (n *Node) Items() []*Node {
	if n.Kind() != Array {
		return nil
	}
	return n.items
}

// Fields returns the members of an object node in document order.
func (n *Node) Fields() []Field {
	if n.Kind() != Object {
		return nil
	}
	return n.fields
}

// Len returns the number of elements or members of a container node.
func (n *Node) Len() int {
	switch n.Kind() {
	case Array:
		return len(n.items)
	case Object:
		return len(n.fields)
	default:
		return 0
	}
}

// Get returns the first member named key, or nil.
func (n *Node) Get(key string) *Node {
	for _, f := range n.Fields() {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Lookup follows a path of object keys from n. It returns nil as soon as a
// segment is missing or crosses a non-object node.
func (n *Node) Lookup(path ...string) *Node {
	cur := n
	for _, key := range path {
		cur = cur.Get(key)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Search walks n depth-first in document order and returns the first string
// leaf accepted by match. Object members whose key is rejected by enter are
// skipped together with their subtree. maxDepth bounds the number of
// container levels descended below n.
func Search(n *Node, maxDepth int, enter func(key string) bool, match func(s string) bool) (string, bool) {
	return search(n, 0, maxDepth, enter, match)
}

func search(n *Node, depth, maxDepth int, enter func(string) bool, match func(string) bool) (string, bool) {
	switch n.Kind() {
	case String:
		if match(n.str) {
			return n.str, true
		}
	case Array:
		if depth >= maxDepth {
			return "", false
		}
		for _, it := range n.items {
			if s, ok := search(it, depth+1, maxDepth, enter, match); ok {
				return s, true
			}
		}
	case Object:
		if depth >= maxDepth {
			return "", false
		}
		for _, f := range n.fields {
			if enter != nil && !enter(f.Key) {
				continue
			}
			if s, ok := search(f.Value, depth+1, maxDepth, enter, match); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Parse decodes a JSON document into a tree, preserving member order.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decode(dec)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("document: trailing data after top-level value")
	}
	return n, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// literals in tests and fixtures.
func MustParse(s string) *Node {
	n, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return n
}

func decode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &Node{kind: Object}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v is not a string", kt)
				}
				val, err := decode(dec)
				if err != nil {
					return nil, err
				}
				n.fields = append(n.fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &Node{kind: Array}
			for dec.More() {
				val, err := decode(dec)
				if err != nil {
					return nil, err
				}
				n.items = append(n.items, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return NewString(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", v, err)
		}
		return &Node{kind: Number, num: f, str: v.String()}, nil
	case bool:
		return NewBool(v), nil
	case nil:
		return &Node{kind: Null}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// MarshalJSON encodes the tree with members in document order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces n with the decoded document.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}

func (n *Node) encode(buf *bytes.Buffer) error {
	switch n.Kind() {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(n.truth))
	case Number:
		buf.WriteString(n.str)
	case String:
		b, err := json.Marshal(n.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, it := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, f := range n.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// String renders the node as compact JSON, for logs.
func (n *Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return strings.TrimSpace(string(b))
}
