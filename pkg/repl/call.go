package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/halspa/halspa.go/pkg/repl/literal"
)

// TextExecutor runs program text on a remote interpreter. A zero timeout
// selects the executor's default.
type TextExecutor interface {
	ExecuteTimeout(code string, timeout time.Duration) (string, error)
}

// Executor is what device drivers, scripts and tools consume.
type Executor interface {
	TextExecutor
	Execute(code string) (string, error)
	Call(name string, args ...interface{}) (interface{}, error)
}

// Call invokes name with args on the remote and returns the parsed literal
// it evaluates to. Arguments are rendered with literal.CallExpr, so
// literal.Kwargs become keyword arguments and literal.Expr is passed as is.
//
// When the printed result is not a literal (e.g. an object repr), the
// trimmed text is returned instead of an error.
func Call(ex TextExecutor, name string, args ...interface{}) (interface{}, error) {
	expr, err := literal.CallExpr(name, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArgument, err)
	}
	out, err := ex.ExecuteTimeout("print(repr("+expr+"))", 0)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(out)
	val, err := literal.Parse(text)
	if err != nil {
		glog.V(3).Infof("%s returned non-literal %q: %v", name, text, err)
		return text, nil
	}
	return val, nil
}
