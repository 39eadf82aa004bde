package sh

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/halspa/halspa.go/pkg/bridge/mqtt"
	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// ParseCallArgs parses command line arguments of a call. Each argument is a
// literal; NAME=LITERAL becomes a keyword argument. Anything else is passed
// as a string.
func ParseCallArgs(args []string) ([]interface{}, error) {
	var (
		res []interface{}
		kw  literal.Kwargs
	)
	for _, arg := range args {
		if key, val, ok := splitKeyword(arg); ok {
			if kw == nil {
				kw = make(literal.Kwargs)
			}
			if _, dup := kw[key]; dup {
				return nil, fmt.Errorf("duplicate keyword %q", key)
			}
			kw[key] = parseArg(val)
			continue
		}
		if kw != nil {
			return nil, fmt.Errorf("positional argument %q after keyword", arg)
		}
		res = append(res, parseArg(arg))
	}
	if kw != nil {
		res = append(res, kw)
	}
	return res, nil
}

func splitKeyword(arg string) (string, string, bool) {
	i := strings.IndexByte(arg, '=')
	if i <= 0 {
		return "", "", false
	}
	key := arg[:i]
	for n, c := range key {
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || n > 0 && c >= '0' && c <= '9') {
			return "", "", false
		}
	}
	return key, arg[i+1:], true
}

func parseArg(s string) interface{} {
	if v, err := literal.Parse(s); err == nil {
		return v
	}
	return s
}

// FormatValue renders a call result as a Python literal, or JSON.
func FormatValue(v interface{}, asJSON bool) (string, error) {
	if !asJSON {
		return literal.Format(v)
	}
	out, err := json.Marshal(jsonable(v))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// jsonable converts values of the literal grammar JSON can't carry.
func jsonable(v interface{}) interface{} {
	switch x := v.(type) {
	case []interface{}:
		res := make([]interface{}, len(x))
		for i, item := range x {
			res[i] = jsonable(item)
		}
		return res
	case map[string]interface{}:
		res := make(map[string]interface{}, len(x))
		for k, item := range x {
			res[k] = jsonable(item)
		}
		return res
	case map[interface{}]interface{}:
		res := make(map[string]interface{}, len(x))
		for k, item := range x {
			key, err := literal.Format(k)
			if err != nil {
				key = fmt.Sprint(k)
			}
			res[key] = jsonable(item)
		}
		return res
	case []byte:
		s, _ := literal.Format(x)
		return s
	case *big.Int:
		return json.Number(x.String())
	}
	return v
}

// FormatMeta prints jig meta into friendly string for display.
func FormatMeta(meta *mqtt.Meta) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s", meta.ID)
	var details []string
	for _, s := range []string{meta.Transport, meta.Host, meta.Firmware} {
		if s != "" {
			details = append(details, s)
		}
	}
	if len(details) > 0 {
		fmt.Fprintf(&w, ": %s", strings.Join(details, ", "))
	}
	return w.String()
}
