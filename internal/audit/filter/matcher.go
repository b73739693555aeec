package filter

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidFilter is returned by Compile for malformed filter documents.
var ErrInvalidFilter = errors.New("invalid audit filter")

// Matcher evaluates a compiled query document against encoded events.
// A nil Matcher matches everything.
type Matcher struct {
	src  string
	root node
}

type node interface {
	match(doc gjson.Result) bool
}

type andNode []node

func (n andNode) match(doc gjson.Result) bool {
	for _, c := range n {
		if !c.match(doc) {
			return false
		}
	}
	return true
}

type orNode []node

func (n orNode) match(doc gjson.Result) bool {
	for _, c := range n {
		if c.match(doc) {
			return true
		}
	}
	return false
}

type fieldNode struct {
	path []string
	ops  []operator
}

type operator struct {
	name string
	arg  gjson.Result
}

func (n fieldNode) match(doc gjson.Result) bool {
	vals, exists := resolve(doc, n.path)
	for _, op := range n.ops {
		if !op.eval(vals, exists) {
			return false
		}
	}
	return true
}

// Compile parses a JSON filter document. An empty string or "{}" yields a
// nil Matcher.
func Compile(src string) (*Matcher, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	if !gjson.Valid(src) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidFilter)
	}
	doc := gjson.Parse(src)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: must be a document", ErrInvalidFilter)
	}
	root, err := compileDoc(doc)
	if err != nil {
		return nil, err
	}
	if len(root) == 0 {
		return nil, nil
	}
	return &Matcher{src: src, root: root}, nil
}

// Match reports whether the encoded event satisfies the filter.
func (m *Matcher) Match(line []byte) bool {
	if m == nil {
		return true
	}
	return m.root.match(gjson.ParseBytes(line))
}

// String returns the filter source, or "{}" for the match-all filter.
func (m *Matcher) String() string {
	if m == nil {
		return "{}"
	}
	return m.src
}

func compileDoc(doc gjson.Result) (andNode, error) {
	var out andNode
	var err error
	doc.ForEach(func(key, value gjson.Result) bool {
		var n node
		n, err = compileClause(key.String(), value)
		if err != nil {
			return false
		}
		out = append(out, n)
		return true
	})
	return out, err
}

func compileClause(key string, value gjson.Result) (node, error) {
	switch key {
	case "$and", "$or":
		if !value.IsArray() || len(value.Array()) == 0 {
			return nil, fmt.Errorf("%w: %s needs a non-empty array", ErrInvalidFilter, key)
		}
		var children []node
		for _, el := range value.Array() {
			if !el.IsObject() {
				return nil, fmt.Errorf("%w: %s entries must be documents", ErrInvalidFilter, key)
			}
			c, err := compileDoc(el)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		if key == "$and" {
			return andNode(children), nil
		}
		return orNode(children), nil
	}
	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("%w: unknown top-level operator %s", ErrInvalidFilter, key)
	}

	fn := fieldNode{path: strings.Split(key, ".")}
	if !isOperatorDoc(value) {
		fn.ops = []operator{{name: "$eq", arg: value}}
		return fn, nil
	}
	var err error
	value.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		switch name {
		case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte":
		case "$in", "$nin":
			if !v.IsArray() {
				err = fmt.Errorf("%w: %s needs an array", ErrInvalidFilter, name)
				return false
			}
		case "$exists":
		default:
			err = fmt.Errorf("%w: unknown operator %s", ErrInvalidFilter, name)
			return false
		}
		fn.ops = append(fn.ops, operator{name: name, arg: v})
		return true
	})
	if err != nil {
		return nil, err
	}
	return fn, nil
}

func isOperatorDoc(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	ops := false
	v.ForEach(func(k, _ gjson.Result) bool {
		ops = strings.HasPrefix(k.String(), "$")
		return false
	})
	return ops
}

func (op operator) eval(vals []gjson.Result, exists bool) bool {
	switch op.name {
	case "$exists":
		return exists == op.arg.Bool()
	case "$eq":
		return anyMatch(vals, func(v gjson.Result) bool { return equal(v, op.arg) })
	case "$ne":
		return !anyMatch(vals, func(v gjson.Result) bool { return equal(v, op.arg) })
	case "$in":
		return anyMatch(vals, func(v gjson.Result) bool { return inArray(v, op.arg) })
	case "$nin":
		return !anyMatch(vals, func(v gjson.Result) bool { return inArray(v, op.arg) })
	case "$gt":
		return ordered(vals, op.arg, func(c int) bool { return c > 0 })
	case "$gte":
		return ordered(vals, op.arg, func(c int) bool { return c >= 0 })
	case "$lt":
		return ordered(vals, op.arg, func(c int) bool { return c < 0 })
	case "$lte":
		return ordered(vals, op.arg, func(c int) bool { return c <= 0 })
	}
	return false
}

// resolve walks a dotted path. Arrays met along the way, and at the leaf,
// fan out to their elements so a path matches when any element does.
func resolve(doc gjson.Result, path []string) ([]gjson.Result, bool) {
	if len(path) == 0 {
		if doc.IsArray() {
			return append(doc.Array(), doc), true
		}
		return []gjson.Result{doc}, true
	}
	if doc.IsArray() {
		var out []gjson.Result
		found := false
		for _, el := range doc.Array() {
			vals, ok := resolve(el, path)
			out = append(out, vals...)
			found = found || ok
		}
		return out, found
	}
	next := doc.Get(escapeKey(path[0]))
	if !next.Exists() {
		return nil, false
	}
	return resolve(next, path[1:])
}

func anyMatch(vals []gjson.Result, f func(gjson.Result) bool) bool {
	for _, v := range vals {
		if f(v) {
			return true
		}
	}
	return false
}

func ordered(vals []gjson.Result, arg gjson.Result, pred func(int) bool) bool {
	return anyMatch(vals, func(v gjson.Result) bool {
		c, ok := compare(v, arg)
		return ok && pred(c)
	})
}

func inArray(v, arr gjson.Result) bool {
	for _, el := range arr.Array() {
		if equal(v, el) {
			return true
		}
	}
	return false
}

func equal(a, b gjson.Result) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case gjson.Number:
		return a.Num == b.Num
	case gjson.String:
		return a.Str == b.Str
	case gjson.JSON:
		return reflect.DeepEqual(a.Value(), b.Value())
	default:
		return true
	}
}

func compare(a, b gjson.Result) (int, bool) {
	if a.Type != b.Type {
		return 0, false
	}
	switch a.Type {
	case gjson.Number:
		switch {
		case a.Num < b.Num:
			return -1, true
		case a.Num > b.Num:
			return 1, true
		}
		return 0, true
	case gjson.String:
		return strings.Compare(a.Str, b.Str), true
	}
	return 0, false
}

const gjsonSpecial = `\.*?|#@!=<>%`

func escapeKey(k string) string {
	if !strings.ContainsAny(k, gjsonSpecial) {
		return k
	}
	var sb strings.Builder
	for _, r := range k {
		if strings.ContainsRune(gjsonSpecial, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
