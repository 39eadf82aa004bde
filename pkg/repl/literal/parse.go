package literal

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxDepth = 64

// SyntaxError reports text which is not a literal of the grammar.
type SyntaxError struct {
	Offset int
	Msg    string
}

// Error implements error.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("literal: %s at offset %d", e.Msg, e.Offset)
}

// Parse decodes a Python literal as printed by repr: None, True, False,
// integers, floats (inf and nan included), strings, bytes, lists, tuples and dicts.
//
// Results are nil, bool, int64 (*big.Int beyond 64 bits), float64, string,
// []byte, []interface{} for lists and tuples, and map[string]interface{}
// for dicts whose keys are all strings, map[interface{}]interface{} otherwise.
func Parse(text string) (interface{}, error) {
	p := &parser{src: text}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) value(depth int) (interface{}, error) {
	if depth > maxDepth {
		return nil, p.errorf("nested too deep")
	}
	if p.eof() {
		return nil, p.errorf("unexpected end")
	}
	switch c := p.peek(); {
	case c == '[':
		return p.sequence(']', depth)
	case c == '(':
		return p.sequence(')', depth)
	case c == '{':
		return p.mapping(depth)
	case c == '\'' || c == '"':
		s, err := p.quoted(false)
		if err != nil {
			return nil, err
		}
		return string(s), nil
	case (c == 'b' || c == 'B') && p.pos+1 < len(p.src) && (p.src[p.pos+1] == '\'' || p.src[p.pos+1] == '"'):
		p.pos++
		return p.quoted(true)
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		if f, ok := p.special(false); ok {
			return f, nil
		}
		start := p.pos
		for !p.eof() && isIdentPart(p.peek()) {
			p.pos++
		}
		switch word := p.src[start:p.pos]; word {
		case "None":
			return nil, nil
		case "True":
			return true, nil
		case "False":
			return false, nil
		default:
			p.pos = start
			return nil, p.errorf("unexpected name %q", word)
		}
	default:
		return nil, p.errorf("unexpected %q", c)
	}
}

// sequence parses a list or a tuple. A parenthesized single value without a
// trailing comma is just that value.
func (p *parser) sequence(closer byte, depth int) (interface{}, error) {
	p.pos++
	items := []interface{}{}
	comma := false
	for {
		p.skipSpace()
		if p.peek() == closer {
			p.pos++
			break
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			comma = true
			continue
		case closer:
			p.pos++
			comma = false
		default:
			return nil, p.errorf("expected ',' or %q", closer)
		}
		break
	}
	if closer == ')' && len(items) == 1 && !comma {
		return items[0], nil
	}
	return items, nil
}

func (p *parser) mapping(depth int) (interface{}, error) {
	p.pos++
	var (
		keys   []interface{}
		vals   []interface{}
		strKey = true
	)
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			break
		}
		keyPos := p.pos
		k, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		switch k.(type) {
		case string:
		case nil, bool, int64, float64:
			strKey = false
		default:
			p.pos = keyPos
			return nil, p.errorf("unhashable key")
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':'")
		}
		p.pos++
		p.skipSpace()
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		keys, vals = append(keys, k), append(vals, v)
		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if p.peek() != '}' {
			return nil, p.errorf("expected ',' or '}'")
		}
		p.pos++
		break
	}
	if strKey {
		m := make(map[string]interface{}, len(keys))
		for i, k := range keys {
			m[k.(string)] = vals[i]
		}
		return m, nil
	}
	m := make(map[interface{}]interface{}, len(keys))
	for i, k := range keys {
		m[k] = vals[i]
	}
	return m, nil
}

func (p *parser) number() (interface{}, error) {
	start := p.pos
	neg := false
	for !p.eof() && (p.peek() == '-' || p.peek() == '+') {
		if p.peek() == '-' {
			neg = !neg
		}
		p.pos++
		p.skipSpace()
	}
	if f, ok := p.special(neg); ok {
		return f, nil
	}
	body := p.pos
	if p.eof() || !(isDigit(p.peek()) || p.peek() == '.') {
		return nil, p.errorf("malformed number")
	}
	radix := len(p.src) > body+1 && p.src[body] == '0' && strings.ContainsRune("xXoObB", rune(p.src[body+1]))
	for !p.eof() {
		c := p.peek()
		if isIdentPart(c) || c == '.' {
			p.pos++
			continue
		}
		if (c == '+' || c == '-') && !radix && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E') {
			p.pos++
			continue
		}
		break
	}
	tok := p.src[body:p.pos]
	if neg {
		tok = "-" + tok
	}
	if !radix && strings.ContainsAny(tok, ".eE") {
		f, err := strconv.ParseFloat(strings.Replace(tok, "_", "", -1), 64)
		if err != nil {
			p.pos = start
			return nil, p.errorf("malformed float %q", tok)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(tok, 0, 64)
	if err == nil {
		return n, nil
	}
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		if b, ok := new(big.Int).SetString(tok, 0); ok {
			return b, nil
		}
	}
	p.pos = start
	return nil, p.errorf("malformed integer %q", tok)
}

// special parses the inf and nan spellings of repr(float).
func (p *parser) special(neg bool) (float64, bool) {
	rest := p.src[p.pos:]
	for _, word := range []string{"inf", "nan"} {
		if !strings.HasPrefix(rest, word) || (len(rest) > len(word) && isIdentPart(rest[len(word)])) {
			continue
		}
		p.pos += len(word)
		switch {
		case word == "nan":
			return math.NaN(), true
		case neg:
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	return 0, false
}

// quoted parses a string or bytes literal starting at the opening quote.
func (p *parser) quoted(isBytes bool) ([]byte, error) {
	q := p.peek()
	p.pos++
	var out []byte
	for {
		if p.eof() {
			return nil, p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == q:
			p.pos++
			if out == nil {
				out = []byte{}
			}
			return out, nil
		case c == '\n':
			return nil, p.errorf("newline in string")
		case c == '\\':
			var err error
			if out, err = p.escape(out, isBytes); err != nil {
				return nil, err
			}
		case isBytes && c >= 0x80:
			return nil, p.errorf("non-ASCII byte in bytes literal")
		default:
			out = append(out, c)
			p.pos++
		}
	}
}

func (p *parser) escape(out []byte, isBytes bool) ([]byte, error) {
	p.pos++ // backslash
	if p.eof() {
		return nil, p.errorf("unterminated string")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\n':
		return out, nil
	case '\\', '\'', '"':
		return append(out, c), nil
	case 'n':
		return append(out, '\n'), nil
	case 'r':
		return append(out, '\r'), nil
	case 't':
		return append(out, '\t'), nil
	case 'a':
		return append(out, 0x07), nil
	case 'b':
		return append(out, 0x08), nil
	case 'f':
		return append(out, 0x0c), nil
	case 'v':
		return append(out, 0x0b), nil
	case '0', '1', '2', '3', '4', '5', '6', '7':
		end := p.pos
		for end < len(p.src) && end < p.pos+2 && p.src[end] >= '0' && p.src[end] <= '7' {
			end++
		}
		v, _ := strconv.ParseUint(string(c)+p.src[p.pos:end], 8, 16)
		p.pos = end
		return p.appendCode(out, rune(v), isBytes)
	case 'x':
		return p.hexEscape(out, 2, isBytes)
	case 'u', 'U':
		if isBytes {
			return append(out, '\\', c), nil
		}
		if c == 'u' {
			return p.hexEscape(out, 4, false)
		}
		return p.hexEscape(out, 8, false)
	}
	return append(out, '\\', c), nil
}

func (p *parser) hexEscape(out []byte, digits int, isBytes bool) ([]byte, error) {
	if p.pos+digits > len(p.src) {
		return nil, p.errorf("truncated escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil {
		return nil, p.errorf("malformed escape")
	}
	p.pos += digits
	return p.appendCode(out, rune(v), isBytes)
}

func (p *parser) appendCode(out []byte, r rune, isBytes bool) ([]byte, error) {
	if isBytes {
		if r > 0xff {
			return nil, p.errorf("byte escape out of range")
		}
		return append(out, byte(r)), nil
	}
	if !utf8.ValidRune(r) {
		return nil, p.errorf("invalid code point")
	}
	return utf8.AppendRune(out, r), nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
