package literal

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Expr is source text rendered verbatim, typically a name bound on the
// remote such as an I2C bus object.
type Expr string

// Kwargs are rendered as keyword arguments by CallExpr.
type Kwargs map[string]interface{}

var (
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	calleeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

	// ErrKwargsPosition is returned when Kwargs appear outside an argument list.
	ErrKwargsPosition = errors.New("keyword arguments only allowed in a call")
)

// UnsupportedTypeError is returned for values the grammar can't express.
type UnsupportedTypeError struct {
	Type reflect.Type
}

// Error implements error.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("literal: unsupported type %v", e.Type)
}

// Format renders v as a Python literal.
func Format(v interface{}) (string, error) {
	var b strings.Builder
	if err := format(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// CallExpr renders a call of name with args. Kwargs anywhere in args are
// rendered as keyword arguments after the positional ones.
func CallExpr(name string, args ...interface{}) (string, error) {
	if !calleeRe.MatchString(name) {
		return "", fmt.Errorf("literal: invalid callee %q", name)
	}
	var (
		b     strings.Builder
		kw    = make(Kwargs)
		count int
	)
	b.WriteString(name)
	b.WriteByte('(')
	for _, arg := range args {
		if kwargs, ok := arg.(Kwargs); ok {
			for k, v := range kwargs {
				if _, dup := kw[k]; dup {
					return "", fmt.Errorf("literal: duplicate keyword %q", k)
				}
				kw[k] = v
			}
			continue
		}
		if count > 0 {
			b.WriteString(", ")
		}
		if err := format(&b, arg); err != nil {
			return "", err
		}
		count++
	}
	keys := make([]string, 0, len(kw))
	for k := range kw {
		if !identRe.MatchString(k) {
			return "", fmt.Errorf("literal: invalid keyword %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if count > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		if err := format(&b, kw[k]); err != nil {
			return "", err
		}
		count++
	}
	b.WriteByte(')')
	return b.String(), nil
}

func format(b *strings.Builder, v interface{}) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
		return nil
	case Expr:
		b.WriteString(string(x))
		return nil
	case Kwargs:
		return ErrKwargsPosition
	case *big.Int:
		if x == nil {
			b.WriteString("None")
		} else {
			b.WriteString(x.String())
		}
		return nil
	}
	return formatValue(b, reflect.ValueOf(v))
}

func formatValue(b *strings.Builder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32:
		b.WriteString(formatFloat(v.Float(), 32))
	case reflect.Float64:
		b.WriteString(formatFloat(v.Float(), 64))
	case reflect.String:
		quote(b, v.String())
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			quoteBytes(b, v.Bytes())
			return nil
		}
		return formatSeq(b, v)
	case reflect.Array:
		return formatSeq(b, v)
	case reflect.Map:
		return formatMap(b, v)
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			b.WriteString("None")
			return nil
		}
		return format(b, v.Elem().Interface())
	default:
		if !v.IsValid() {
			b.WriteString("None")
			return nil
		}
		return &UnsupportedTypeError{Type: v.Type()}
	}
	return nil
}

func formatSeq(b *strings.Builder, v reflect.Value) error {
	b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := format(b, v.Index(i).Interface()); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func formatMap(b *strings.Builder, v reflect.Value) error {
	type entry struct{ key, val string }
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := Format(iter.Key().Interface())
		if err != nil {
			return err
		}
		val, err := Format(iter.Value().Interface())
		if err != nil {
			return err
		}
		entries = append(entries, entry{key: key, val: val})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	b.WriteByte('{')
	for n, e := range entries {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.key)
		b.WriteString(": ")
		b.WriteString(e.val)
	}
	b.WriteByte('}')
	return nil
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsInf(f, 1):
		return "float('inf')"
	case math.IsInf(f, -1):
		return "-float('inf')"
	case math.IsNaN(f):
		return "float('nan')"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func quote(b *strings.Builder, s string) {
	b.WriteByte('\'')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(b, `\x%02x`, s[i])
			i++
			continue
		}
		i += size
		switch {
		case r == '\\' || r == '\'':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
}

func quoteBytes(b *strings.Builder, p []byte) {
	b.WriteString("b'")
	for _, c := range p {
		switch {
		case c == '\\' || c == '\'':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(b, `\x%02x`, c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
}
