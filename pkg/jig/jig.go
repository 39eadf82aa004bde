// Package jig provides proxies of the HALSPA jig peripherals. Each proxy
// binds an object on the remote interpreter and drives it through a
// repl.Executor, so it works the same over a local Session or a bridged
// RemoteSession.
package jig

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/halspa/halspa.go/pkg/repl"
	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// ErrUnexpectedValue is returned when the remote answers with a value of the
// wrong type.
var ErrUnexpectedValue = errors.New("jig: unexpected value")

// boardImports binds the jig I2C bus on the remote.
const boardImports = "from sauce.sauce import i2c"

func argError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{repl.ErrArgument}, args...)...)
}

// bind assigns the result of a constructor call to name on the remote.
func bind(ex repl.Executor, imports, name, ctor string, args ...interface{}) error {
	expr, err := literal.CallExpr(ctor, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", repl.ErrArgument, err)
	}
	code := name + " = " + expr
	if imports != "" {
		code = imports + "\n" + code
	}
	_, err = ex.Execute(code)
	return err
}

func unexpected(what string, v interface{}) error {
	return fmt.Errorf("%w: %s returned %T %v", ErrUnexpectedValue, what, v, v)
}

func toInt(what string, v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case *big.Int:
		if x.IsInt64() {
			return x.Int64(), nil
		}
	}
	return 0, unexpected(what, v)
}

func toFloat(what string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	}
	return 0, unexpected(what, v)
}

func toBool(what string, v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, err := toInt(what, v)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func joinLines(lines ...string) string {
	return strings.Join(lines, "\n")
}
